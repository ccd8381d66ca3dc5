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

// Package provider adapts external AI moderation endpoints behind one
// interface. A Factory maps model tiers onto configured providers and
// normalises every failure into the uniform "AI analysis failed" result the
// pipeline's fail-open/fail-closed policies are written against.
package provider

import (
	"context"

	"modgate/internal/gateway/moderation"
)

// Result is the parsed verdict of one external analysis call.
type Result struct {
	IsViolation     bool     `json:"isViolation"`
	Flags           []string `json:"flags"`
	Reason          string   `json:"reason"`
	FilteredContent string   `json:"filteredContent,omitempty"`
}

// Provider is one external moderation backend with text and vision
// capabilities. Implementations return an error for transport or parse
// failures; mapping those onto the fail result is the Factory's job.
type Provider interface {
	Name() string
	AnalyzeText(ctx context.Context, text string, history []string, policy moderation.Policy, model string) (Result, error)
	AnalyzeImage(ctx context.Context, imageB64 string, policy moderation.Policy) (Result, error)
}

// FailureResult is what callers see when a provider call fails or times
// out. The pipeline treats the error flag as allow-with-flag on the text
// path and block on the image path.
func FailureResult() Result {
	return Result{
		IsViolation: false,
		Flags:       []string{moderation.FlagError},
		Reason:      "AI analysis failed",
	}
}

// normalise lowercases and deduplicates flags coming back from a model,
// which is not guaranteed to echo the vocabulary verbatim.
func normalise(r Result) Result {
	seen := make(map[string]struct{}, len(r.Flags))
	out := r.Flags[:0]
	for _, f := range r.Flags {
		f = moderation.NormalizeFlag(f)
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	r.Flags = out
	return r
}
