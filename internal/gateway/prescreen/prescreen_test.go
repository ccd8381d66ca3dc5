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
	"testing"

	"github.com/stretchr/testify/assert"

	"modgate/internal/gateway/moderation"
)

var restrictive = moderation.Policy{}

func TestEvaluateDeterministic(t *testing.T) {
	s := New()
	text := "Call me at 555-123-4567 or mail a@b.co"
	first := s.Evaluate(text, restrictive)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Evaluate(text, restrictive))
	}
}

func TestCleanTextNoSignal(t *testing.T) {
	s := New()
	res := s.Evaluate("Hello, how are you?", restrictive)
	assert.False(t, res.NeedsReview)
	assert.False(t, res.ShouldBlock)
	assert.Empty(t, res.Flags)
}

func TestShortTextSkipped(t *testing.T) {
	s := New()
	res := s.Evaluate("555-123-4567", restrictive)
	assert.False(t, res.NeedsReview)
	assert.False(t, res.ShouldBlock)
}

func TestPhoneExactMatchBlocks(t *testing.T) {
	s := New()
	res := s.Evaluate("Call me at 555-123-4567", restrictive)
	assert.True(t, res.ShouldBlock)
	assert.False(t, res.NeedsReview)
	assert.Equal(t, []string{moderation.FlagPhoneNumber}, res.Flags)
	assert.Equal(t, 1.0, res.Confidence)
	assert.NotEmpty(t, res.Reason)
}

func TestPhoneSpaceGroups(t *testing.T) {
	s := New()
	res := s.Evaluate("my number is 555 123 4567 ok", restrictive)
	assert.True(t, res.ShouldBlock)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestShortNumberRunIsNotPhone(t *testing.T) {
	s := New()
	res := s.Evaluate("the code is 123 456 today", restrictive)
	assert.False(t, res.ShouldBlock)
	assert.False(t, res.NeedsReview)
	assert.Empty(t, res.Flags)
}

func TestBareDigitRunIsWeakHit(t *testing.T) {
	s := New()
	res := s.Evaluate("you can reach me on 5551234567 anytime", restrictive)
	assert.False(t, res.ShouldBlock)
	assert.True(t, res.NeedsReview)
	assert.Contains(t, res.Flags, moderation.FlagPhoneNumber)
	assert.Less(t, res.Confidence, 0.8)
}

func TestNoDigitsNoReview(t *testing.T) {
	s := New()
	res := s.Evaluate("Hi how are you do you know my no.", restrictive)
	assert.False(t, res.NeedsReview)
	assert.False(t, res.ShouldBlock)
	assert.Empty(t, res.Flags)
}

func TestEmailDetected(t *testing.T) {
	s := New()
	res := s.Evaluate("email me at a@b.co", restrictive)
	assert.True(t, res.ShouldBlock)
	assert.Equal(t, []string{moderation.FlagEmailAddress}, res.Flags)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestEmailPermittedByPolicy(t *testing.T) {
	s := New()
	res := s.Evaluate("email me at a@b.co", moderation.Policy{AllowEmail: true})
	assert.False(t, res.ShouldBlock)
	assert.False(t, res.NeedsReview)
	assert.Equal(t, []string{moderation.FlagEmailAddress}, res.Flags)
	assert.Equal(t, "allowed sensitive information", res.Reason)
}

func TestEmailDoesNotDoubleAsHandle(t *testing.T) {
	s := New()
	res := s.Evaluate("write to someone@example.com please", restrictive)
	assert.Equal(t, []string{moderation.FlagEmailAddress}, res.Flags)
}

func TestPhysicalAddress(t *testing.T) {
	s := New()
	res := s.Evaluate("I live at 221 Baker Street in London", restrictive)
	assert.True(t, res.ShouldBlock)
	assert.Contains(t, res.Flags, moderation.FlagPhysicalAddress)
	assert.GreaterOrEqual(t, res.Confidence, 0.8)
	assert.Less(t, res.Confidence, 0.9)
}

func TestSocialHandle(t *testing.T) {
	s := New()
	res := s.Evaluate("follow me @cool_user ok", restrictive)
	assert.True(t, res.ShouldBlock)
	assert.Contains(t, res.Flags, moderation.FlagSocialMediaHandle)
}

func TestPlatformURL(t *testing.T) {
	s := New()
	res := s.Evaluate("check instagram.com/someuser for pics", restrictive)
	assert.True(t, res.ShouldBlock)
	assert.Contains(t, res.Flags, moderation.FlagSocialMediaHandle)
	assert.InDelta(t, 0.9, res.Confidence, 0.001)
}

func TestAbusiveToken(t *testing.T) {
	s := New()
	res := s.Evaluate("you are such an idiot really", restrictive)
	assert.True(t, res.ShouldBlock)
	assert.Equal(t, []string{moderation.FlagAbusiveLanguage}, res.Flags)
	assert.InDelta(t, 0.8, res.Confidence, 0.001)
}

func TestAbusePermitted(t *testing.T) {
	s := New()
	res := s.Evaluate("you are such an idiot really", moderation.Policy{AllowAbuse: true})
	assert.False(t, res.ShouldBlock)
	assert.Equal(t, "allowed sensitive information", res.Reason)
}

func TestCustomLexicon(t *testing.T) {
	s := New(WithAbuseLexicon([]string{"flibberjab"}))
	res := s.Evaluate("you total flibberjab you", restrictive)
	assert.True(t, res.ShouldBlock)
	assert.Contains(t, res.Flags, moderation.FlagAbusiveLanguage)

	// Default lexicon word is no longer abusive under the custom one.
	res = s.Evaluate("you are such an idiot really", restrictive)
	assert.Empty(t, res.Flags)
}

func TestMultipleDetectionsNoDuplicateFlags(t *testing.T) {
	s := New()
	res := s.Evaluate("mail a@b.co or b@c.org and call 555-123-4567", restrictive)
	seen := map[string]int{}
	for _, f := range res.Flags {
		seen[f]++
	}
	for f, n := range seen {
		assert.Equal(t, 1, n, "flag %s duplicated", f)
	}
}

func TestRedactPhone(t *testing.T) {
	got, changed := Redact("Call me at 555-123-4567")
	assert.True(t, changed)
	assert.Equal(t, "Call me at ************", got)
}

func TestRedactEmail(t *testing.T) {
	got, changed := Redact("mail me at a@b.co now")
	assert.True(t, changed)
	assert.Equal(t, "mail me at ****** now", got)
}

func TestRedactLeavesCleanText(t *testing.T) {
	got, changed := Redact("nothing sensitive here")
	assert.False(t, changed)
	assert.Equal(t, "nothing sensitive here", got)
}

func TestRedactLeavesShortNumberRuns(t *testing.T) {
	got, changed := Redact("the code is 123 456 today")
	assert.False(t, changed)
	assert.Equal(t, "the code is 123 456 today", got)
}
