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

package cache

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"modgate/internal/gateway/moderation"
)

// Fingerprint construction. The goal is a stable 64-bit key cheap enough for
// the hot path: long texts are sampled rather than hashed whole, the policy
// collapses to one character per enabled flag, and only the tail of the
// history participates.
const (
	textSampleThreshold = 100 // sample texts longer than this
	textSliceLen        = 40

	historyTail     = 3
	historyEntryLen = 20

	// Image sampling bounds: digests of images >= imageSampleThreshold use
	// three 1 kB slices instead of the whole payload.
	imageSampleThreshold = 3 * 1024
	imageSliceLen        = 1024
)

// Fingerprint derives the cache key for a canonicalised request. The same
// semantic request always yields the same key.
func Fingerprint(req *moderation.Request) string {
	var b strings.Builder
	b.WriteString(textDigest(req.Text))
	b.WriteByte('|')
	b.WriteString(policyDigest(req.Policy))
	b.WriteByte('|')
	b.WriteString(historyDigest(req.History))
	b.WriteByte('|')
	if req.Image != "" {
		b.WriteString(ImageDigest(req.Image))
	}
	b.WriteByte('|')
	b.WriteString(string(req.Tier))
	return fmt.Sprintf("%016x", xxhash.Sum64String(b.String()))
}

// textDigest samples long texts with three fixed-width slices from the head,
// middle and tail; short texts participate whole.
func textDigest(text string) string {
	if len(text) <= textSampleThreshold {
		return text
	}
	head := text[:textSliceLen]
	mid := text[(len(text)-textSliceLen)/2 : (len(text)-textSliceLen)/2+textSliceLen]
	tail := text[len(text)-textSliceLen:]
	return fmt.Sprintf("%d:%s%s%s", len(text), head, mid, tail)
}

// policyDigest encodes the policy as one character per enabled flag.
func policyDigest(p moderation.Policy) string {
	var b strings.Builder
	if p.AllowAbuse {
		b.WriteByte('a')
	}
	if p.AllowPhone {
		b.WriteByte('p')
	}
	if p.AllowEmail {
		b.WriteByte('e')
	}
	if p.AllowPhysicalInformation {
		b.WriteByte('h')
	}
	if p.AllowSocialInformation {
		b.WriteByte('s')
	}
	if p.ReturnFilteredMessage {
		b.WriteByte('f')
	}
	if p.AnalyzeImages {
		b.WriteByte('i')
	}
	return b.String()
}

// historyDigest folds in the last historyTail entries, each truncated.
func historyDigest(history []string) string {
	if len(history) == 0 {
		return ""
	}
	start := len(history) - historyTail
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	for _, h := range history[start:] {
		if len(h) > historyEntryLen {
			h = h[:historyEntryLen]
		}
		b.WriteString(h)
		b.WriteByte(';')
	}
	return b.String()
}

// ImageDigest returns a stable digest of a base64 image payload. Large
// payloads are sampled (head, middle and tail slices) together with the
// total length; identical payloads always produce identical digests.
func ImageDigest(imageB64 string) string {
	if len(imageB64) < imageSampleThreshold {
		return fmt.Sprintf("%016x", xxhash.Sum64String(imageB64))
	}
	h := xxhash.New()
	_, _ = h.WriteString(fmt.Sprintf("%d:", len(imageB64)))
	_, _ = h.WriteString(imageB64[:imageSliceLen])
	mid := (len(imageB64) - imageSliceLen) / 2
	_, _ = h.WriteString(imageB64[mid : mid+imageSliceLen])
	_, _ = h.WriteString(imageB64[len(imageB64)-imageSliceLen:])
	return fmt.Sprintf("%016x", h.Sum64())
}
