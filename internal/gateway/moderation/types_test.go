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

package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampTier(t *testing.T) {
	assert.Equal(t, TierFast, ClampTier("fast"))
	assert.Equal(t, TierPro, ClampTier(" PRO "))
	assert.Equal(t, TierNormal, ClampTier("normal"))
	assert.Equal(t, TierNormal, ClampTier("turbo"))
	assert.Equal(t, TierNormal, ClampTier(""))
}

func TestCoerceBool(t *testing.T) {
	for _, v := range []interface{}{true, "true", "1", 1, int64(1), float64(1)} {
		assert.True(t, CoerceBool(v), "%v must coerce to true", v)
	}
	for _, v := range []interface{}{false, "yes", "True", "on", 2, float64(0), nil, "0"} {
		assert.False(t, CoerceBool(v), "%v must coerce to false", v)
	}
}

func TestPolicyAllows(t *testing.T) {
	p := Policy{AllowPhone: true, AllowEmail: true}
	assert.True(t, p.Allows(FlagPhoneNumber))
	assert.True(t, p.Allows(FlagEmailAddress))
	assert.False(t, p.Allows(FlagAbusiveLanguage))

	// Flags outside the policy vocabulary are never permitted.
	assert.False(t, p.Allows(FlagNSFW))
	assert.False(t, p.Allows(FlagViolence))
}

func TestCanonicaliseTruncatesHistory(t *testing.T) {
	history := make([]string, 20)
	for i := range history {
		history[i] = string(rune('a' + i))
	}
	r := Request{Text: "x", History: history, Tier: "weird"}
	r.Canonicalise()

	assert.Equal(t, TierNormal, r.Tier)
	assert.Len(t, r.History, MaxHistory)
	// The most recent entries survive.
	assert.Equal(t, history[5:], r.History)
}

func TestHasContent(t *testing.T) {
	assert.False(t, (&Request{}).HasContent())
	assert.False(t, (&Request{Text: "   "}).HasContent())
	assert.True(t, (&Request{Text: "hi"}).HasContent())
	assert.True(t, (&Request{Image: "aW1n"}).HasContent())
}

func TestAddFlagsDeduplicates(t *testing.T) {
	r := Response{}
	r.AddFlags("phone_number", "", "nsfw", "phone_number")
	assert.Equal(t, []string{"phone_number", "nsfw"}, r.Flags)
	assert.True(t, r.HasFlag("nsfw"))
	assert.False(t, r.HasFlag("pii"))
}

func TestPrefixImageFlags(t *testing.T) {
	out := PrefixImageFlags([]string{"nsfw", "image_violence", "error"})
	assert.Equal(t, []string{"image_nsfw", "image_violence", "image_error"}, out)
}
