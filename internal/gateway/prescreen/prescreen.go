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

// Package prescreen is the deterministic first pass of the moderation
// pipeline. It pattern-matches phone numbers, email addresses, physical
// addresses, social handles and abusive tokens, scores each hit with a
// confidence, and applies the policy gating the pipeline relies on: permit,
// block outright, or escalate to AI.
//
// Evaluation is total and deterministic: same text and policy always produce
// the same result, and there is no failure mode.
package prescreen

import (
	"fmt"
	"regexp"
	"strings"

	"modgate/internal/gateway/moderation"
)

// blockConfidence is the gate above which an unpermitted detection blocks
// without AI escalation.
const blockConfidence = 0.8

// Result is the outcome of one evaluation.
//
// The pipeline reads it as a four-way decision:
//
//	Flags empty, NeedsReview false        -> clean, allow
//	Flags set, NeedsReview false, !block  -> permitted sensitive content
//	ShouldBlock                           -> block with Flags/Reason
//	NeedsReview                           -> escalate to AI
type Result struct {
	NeedsReview bool
	ShouldBlock bool
	Flags       []string
	Reason      string
	Confidence  float64
}

// detection is one raw pattern hit before policy gating.
type detection struct {
	flag       string
	confidence float64
}

// Screener holds the compiled patterns and the abuse lexicon.
type Screener struct {
	abuseRe *regexp.Regexp
}

// Option configures a Screener.
type Option func(*options)

type options struct {
	lexicon []string
}

// WithAbuseLexicon replaces the built-in abusive-token list.
func WithAbuseLexicon(words []string) Option {
	return func(o *options) { o.lexicon = words }
}

// New compiles a screener. The default abuse lexicon is used unless
// overridden.
func New(opts ...Option) *Screener {
	o := options{lexicon: defaultAbuseLexicon}
	for _, opt := range opts {
		opt(&o)
	}
	return &Screener{abuseRe: compileLexicon(o.lexicon)}
}

func compileLexicon(words []string) *regexp.Regexp {
	if len(words) == 0 {
		return nil
	}
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(strings.ToLower(w))
		if w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// Evaluate runs the deterministic pre-screen over text under the given
// policy.
func (s *Screener) Evaluate(text string, policy moderation.Policy) Result {
	if !s.hasSignal(text) {
		return Result{Reason: "no pre-screen signal"}
	}

	detections := s.detect(text)
	if len(detections) == 0 {
		return Result{Reason: "no pre-screen signal"}
	}

	res := Result{}
	allPermitted := true
	for _, d := range detections {
		res.Flags = appendUnique(res.Flags, d.flag)
		if d.confidence > res.Confidence {
			res.Confidence = d.confidence
		}
		if policy.Allows(d.flag) {
			continue
		}
		allPermitted = false
		if d.confidence >= blockConfidence {
			res.ShouldBlock = true
		} else {
			res.NeedsReview = true
		}
	}

	switch {
	case allPermitted:
		res.NeedsReview = false
		res.ShouldBlock = false
		res.Reason = "allowed sensitive information"
	case res.ShouldBlock:
		res.NeedsReview = false
		res.Reason = fmt.Sprintf("detected %s", strings.Join(res.Flags, ", "))
	default:
		res.Reason = fmt.Sprintf("possible %s, needs review", strings.Join(res.Flags, ", "))
	}
	return res
}

// hasSignal is the cheap rejection path: very short texts, and texts without
// a digit, handle, URL or abuse token, cannot produce a detection.
func (s *Screener) hasSignal(text string) bool {
	if len(strings.Fields(text)) < 3 {
		return false
	}
	if strings.ContainsAny(text, "0123456789") {
		return true
	}
	if strings.Contains(text, "@") {
		return true
	}
	if anyURLHint.MatchString(text) || platformURLPattern.MatchString(text) {
		return true
	}
	return s.abuseRe != nil && s.abuseRe.MatchString(text)
}

// detect collects raw hits. Emails are masked out before the phone and
// handle scans so one span never produces two competing detections.
func (s *Screener) detect(text string) []detection {
	var found []detection

	if emailPattern.MatchString(text) {
		found = append(found, detection{moderation.FlagEmailAddress, 1.0})
		text = maskMatches(text, emailPattern)
	}

	if urls := platformURLPattern.FindString(text); urls != "" {
		found = append(found, detection{moderation.FlagSocialMediaHandle, 0.9})
		text = maskMatches(text, platformURLPattern)
	} else if handlePattern.MatchString(text) {
		found = append(found, detection{moderation.FlagSocialMediaHandle, 0.8})
		text = maskMatches(text, handlePattern)
	}

	if addressPattern.MatchString(text) {
		found = append(found, detection{moderation.FlagPhysicalAddress, 0.85})
		text = maskMatches(text, addressPattern)
	}

	best := 0.0
	for _, m := range phoneCandidate.FindAllString(text, -1) {
		if conf, ok := classifyPhone(m); ok && conf > best {
			best = conf
		}
	}
	if best > 0 {
		found = append(found, detection{moderation.FlagPhoneNumber, best})
	}

	if s.abuseRe != nil && s.abuseRe.MatchString(text) {
		found = append(found, detection{moderation.FlagAbusiveLanguage, 0.8})
	}

	return found
}

func appendUnique(flags []string, flag string) []string {
	for _, f := range flags {
		if f == flag {
			return flags
		}
	}
	return append(flags, flag)
}
