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

import (
	"regexp"
	"strings"
)

var (
	// emailPattern is a pragmatic RFC subset; full RFC 5322 matching buys
	// nothing at this stage.
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	// phoneCandidate over-matches on purpose; classifyPhone filters the
	// candidates down to plausible numbers.
	phoneCandidate = regexp.MustCompile(`[+(]?\d[\d\s().\-]{4,}\d`)

	addressPattern = regexp.MustCompile(`(?i)\b\d{1,5}\s+(?:[A-Za-z'.\-]+\s+){0,3}(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|place|pl|square|sq|terrace|ter|way)\b`)

	handlePattern = regexp.MustCompile(`(?:^|[\s:;,("'])@([A-Za-z0-9_][A-Za-z0-9_.]{1,30})`)

	platformURLPattern = regexp.MustCompile(`(?i)\b(?:https?://)?(?:www\.)?(?:instagram\.com|facebook\.com|fb\.com|twitter\.com|x\.com|tiktok\.com|snapchat\.com|t\.me|telegram\.me|discord\.gg)/[A-Za-z0-9_.\-/]+`)

	anyURLHint = regexp.MustCompile(`(?i)https?://|www\.`)
)

// defaultAbuseLexicon is the built-in abusive-token list. Deployments extend
// or replace it through WithAbuseLexicon.
var defaultAbuseLexicon = []string{
	"idiot",
	"moron",
	"stupid",
	"dumbass",
	"asshole",
	"bastard",
	"loser",
	"scumbag",
}

// classifyPhone decides whether a candidate match is a phone number and with
// what confidence. Rules:
//
//   - 7 to 15 digits total, otherwise not a number at all (this is what
//     rejects short runs like "123 456");
//   - hard separators (dash, dot, parens) across 2+ groups, or 3+
//     space-separated groups -> exact hit, confidence 1.0;
//   - anything else (bare or two space-separated runs) -> weak hit.
func classifyPhone(m string) (confidence float64, ok bool) {
	digits := 0
	for _, r := range m {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 7 || digits > 15 {
		return 0, false
	}
	groups := len(digitGroups(m))
	hardSep := strings.ContainsAny(m, "-.()")
	if (hardSep && groups >= 2) || groups >= 3 {
		return 1.0, true
	}
	return 0.6, true
}

// digitGroups returns the maximal digit runs inside a candidate.
func digitGroups(m string) []string {
	var groups []string
	start := -1
	for i, r := range m {
		isDigit := r >= '0' && r <= '9'
		if isDigit && start < 0 {
			start = i
		}
		if !isDigit && start >= 0 {
			groups = append(groups, m[start:i])
			start = -1
		}
	}
	if start >= 0 {
		groups = append(groups, m[start:])
	}
	return groups
}

// maskMatches blanks out every match of re so later scans cannot re-detect
// the same span (emails contain digits, handles contain dots, and so on).
func maskMatches(text string, re *regexp.Regexp) string {
	return re.ReplaceAllStringFunc(text, func(m string) string {
		return strings.Repeat(" ", len(m))
	})
}
