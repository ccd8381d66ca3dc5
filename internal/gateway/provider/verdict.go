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

package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"modgate/internal/gateway/moderation"
)

// parseVerdict extracts the JSON verdict from a model completion. Models
// wrap JSON in prose or markdown fences often enough that we scan for the
// outermost object instead of unmarshalling the raw completion.
func parseVerdict(completion string) (Result, error) {
	s := strings.TrimSpace(completion)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return Result{}, fmt.Errorf("no JSON object in completion %q", truncateForLog(completion))
	}

	var r Result
	if err := json.Unmarshal([]byte(s[start:end+1]), &r); err != nil {
		return Result{}, fmt.Errorf("unmarshal verdict: %w", err)
	}
	if r.IsViolation && r.Reason == "" {
		r.Reason = "content violates policy"
	}
	return normalise(r), nil
}

func truncateForLog(s string) string {
	if len(s) <= 120 {
		return s
	}
	return s[:120] + "..."
}

// permittedCategories renders the policy for the model prompt.
func permittedCategories(p moderation.Policy) string {
	var allowed []string
	if p.AllowAbuse {
		allowed = append(allowed, moderation.FlagAbusiveLanguage)
	}
	if p.AllowPhone {
		allowed = append(allowed, moderation.FlagPhoneNumber)
	}
	if p.AllowEmail {
		allowed = append(allowed, moderation.FlagEmailAddress)
	}
	if p.AllowPhysicalInformation {
		allowed = append(allowed, moderation.FlagPhysicalAddress)
	}
	if p.AllowSocialInformation {
		allowed = append(allowed, moderation.FlagSocialMediaHandle)
	}
	if len(allowed) == 0 {
		return "none"
	}
	return strings.Join(allowed, ", ")
}

// buildTextPrompt assembles the system instruction for a text analysis.
func buildTextPrompt(p moderation.Policy) string {
	var b strings.Builder
	b.WriteString("You are a content moderation engine. Analyze the user message for these categories: ")
	b.WriteString(strings.Join(moderation.KnownFlags[:len(moderation.KnownFlags)-1], ", "))
	b.WriteString(". Permitted categories for this request: ")
	b.WriteString(permittedCategories(p))
	b.WriteString(". Respond with exactly one JSON object: ")
	b.WriteString(`{"isViolation": bool, "flags": [string], "reason": string`)
	if p.ReturnFilteredMessage {
		b.WriteString(`, "filteredContent": string (the message with violating spans replaced by asterisks)`)
	}
	b.WriteString("} and nothing else.")
	return b.String()
}

// buildImagePrompt assembles the instruction for a vision analysis.
func buildImagePrompt(p moderation.Policy) string {
	return "You are a content moderation engine. Analyze the attached image for nsfw, violence, " +
		"inappropriate content and visible personal information. Permitted categories: " +
		permittedCategories(p) +
		`. Respond with exactly one JSON object: {"isViolation": bool, "flags": [string], "reason": string} and nothing else.`
}

// buildUserContent folds the optional history into the analyzed message so
// the model sees conversational context.
func buildUserContent(text string, history []string) string {
	if len(history) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString("Prior messages:\n")
	for _, h := range history {
		b.WriteString("- ")
		b.WriteString(h)
		b.WriteByte('\n')
	}
	b.WriteString("\nMessage to analyze:\n")
	b.WriteString(text)
	return b.String()
}
