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

import "strings"

// Canonical flag vocabulary. Flags originating from image analysis carry the
// ImageFlagPrefix so callers can tell the two paths apart.
const (
	FlagPhoneNumber       = "phone_number"
	FlagEmailAddress      = "email_address"
	FlagPhysicalAddress   = "physical_address"
	FlagSocialMediaHandle = "social_media_handle"
	FlagAbusiveLanguage   = "abusive_language"
	FlagInappropriate     = "inappropriate"
	FlagNSFW              = "nsfw"
	FlagViolence          = "violence"
	FlagPII               = "pii"
	FlagError             = "error"

	ImageFlagPrefix = "image_"
)

// KnownFlags lists the canonical non-image flags.
var KnownFlags = []string{
	FlagPhoneNumber,
	FlagEmailAddress,
	FlagPhysicalAddress,
	FlagSocialMediaHandle,
	FlagAbusiveLanguage,
	FlagInappropriate,
	FlagNSFW,
	FlagViolence,
	FlagPII,
	FlagError,
}

// NormalizeFlag lowercases and trims a flag token from an external source
// (AI providers are not guaranteed to echo the vocabulary verbatim).
func NormalizeFlag(f string) string {
	return strings.ToLower(strings.TrimSpace(f))
}

// PrefixImageFlags returns the flags with the image prefix applied, skipping
// flags that already carry it.
func PrefixImageFlags(flags []string) []string {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		f = NormalizeFlag(f)
		if f == "" {
			continue
		}
		if !strings.HasPrefix(f, ImageFlagPrefix) {
			f = ImageFlagPrefix + f
		}
		out = append(out, f)
	}
	return out
}
