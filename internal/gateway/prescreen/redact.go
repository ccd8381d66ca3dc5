// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package prescreen

import "strings"

// Redact replaces phone numbers and email addresses with a run of asterisks
// of the same length. Only these two simple-pattern categories are redacted
// locally; everything else needs AI judgement and is not the pre-screen's
// business. The second return value reports whether anything was replaced.
func Redact(text string) (string, bool) {
	changed := false

	redacted := emailPattern.ReplaceAllStringFunc(text, func(m string) string {
		changed = true
		return strings.Repeat("*", len(m))
	})

	redacted = phoneCandidate.ReplaceAllStringFunc(redacted, func(m string) string {
		if _, ok := classifyPhone(m); !ok {
			return m
		}
		changed = true
		return strings.Repeat("*", len(m))
	})

	return redacted, changed
}
