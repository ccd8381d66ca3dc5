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

// Package moderation defines the request/response shapes shared by the
// gateway components: the filter request submitted by clients, the policy of
// permit flags it carries, and the verdict returned to the caller.
//
// These are plain value types. Canonicalisation (tier clamping, history
// truncation, strict boolean coercion of policy input) lives here so that
// every entry point — HTTP handlers, batch processing, tests — normalises
// input the same way.
package moderation

import "strings"

// Tier selects the class of external model used for AI escalation.
type Tier string

const (
	TierFast   Tier = "fast"
	TierNormal Tier = "normal"
	TierPro    Tier = "pro"
)

// ClampTier maps an arbitrary input string onto a known tier.
// Unknown values clamp to TierNormal.
func ClampTier(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFast:
		return TierFast
	case TierPro:
		return TierPro
	default:
		return TierNormal
	}
}

// MaxHistory is the maximum number of prior messages considered per request.
const MaxHistory = 15

// Policy is the closed set of permit flags a request asserts. The zero value
// is the most restrictive policy: nothing is permitted, no redacted message
// is returned, images are not analysed.
type Policy struct {
	AllowAbuse               bool
	AllowPhone               bool
	AllowEmail               bool
	AllowPhysicalInformation bool
	AllowSocialInformation   bool
	ReturnFilteredMessage    bool
	AnalyzeImages            bool
}

// Allows reports whether the policy permits content carrying the given flag.
// Flags outside the policy's vocabulary (nsfw, violence, ...) are never
// permitted by policy.
func (p Policy) Allows(flag string) bool {
	switch flag {
	case FlagAbusiveLanguage:
		return p.AllowAbuse
	case FlagPhoneNumber:
		return p.AllowPhone
	case FlagEmailAddress:
		return p.AllowEmail
	case FlagPhysicalAddress:
		return p.AllowPhysicalInformation
	case FlagSocialMediaHandle:
		return p.AllowSocialInformation
	default:
		return false
	}
}

// CoerceBool converts loosely typed wire input into a policy boolean.
// Only the literals true, "true", 1 and "1" enable a flag; everything else —
// including "yes", "True", 2, null and absent values — is false.
func CoerceBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "1"
	case int:
		return t == 1
	case int64:
		return t == 1
	case float64:
		return t == 1
	default:
		return false
	}
}

// Request is the immutable input to the moderation pipeline. At least one of
// Text and Image must be non-empty; the pipeline validates this.
type Request struct {
	Text    string
	Image   string // opaque base64 payload
	Policy  Policy
	History []string
	Tier    Tier
}

// Canonicalise normalises a request in place: the tier is clamped and the
// history is truncated to its most recent MaxHistory entries.
func (r *Request) Canonicalise() {
	r.Tier = ClampTier(string(r.Tier))
	if len(r.History) > MaxHistory {
		r.History = r.History[len(r.History)-MaxHistory:]
	}
}

// HasContent reports whether the request carries anything to moderate.
func (r *Request) HasContent() bool {
	return strings.TrimSpace(r.Text) != "" || r.Image != ""
}

// Response is the verdict returned to the caller.
//
// When Blocked is false, Flags may still be non-empty to annotate sensitive
// content the policy permitted. FilteredMessage is set only when the policy
// requested it and the pipeline produced a redaction.
type Response struct {
	Blocked         bool     `json:"blocked"`
	Reason          string   `json:"reason"`
	Flags           []string `json:"flags"`
	FilteredMessage string   `json:"filteredMessage,omitempty"`
}

// AddFlags unions the given flags into the response, preserving first-seen
// order and never introducing duplicates.
func (r *Response) AddFlags(flags ...string) {
	for _, f := range flags {
		if f == "" {
			continue
		}
		seen := false
		for _, existing := range r.Flags {
			if existing == f {
				seen = true
				break
			}
		}
		if !seen {
			r.Flags = append(r.Flags, f)
		}
	}
}

// HasFlag reports whether the response carries the given flag.
func (r *Response) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
