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

package api

import (
	"encoding/json"
	"fmt"

	"modgate/internal/gateway/moderation"
)

// filterWire is the request body accepted by the filter endpoints. Clients
// send loosely typed values; decoding is deliberately tolerant, with policy
// booleans coerced strictly (only true/"true"/1/"1" enable a flag).
type filterWire struct {
	Text        string                 `json:"text"`
	Image       string                 `json:"image"`
	Config      map[string]interface{} `json:"config"`
	OldMessages []json.RawMessage      `json:"oldMessages"`
	Model       string                 `json:"model"`
	UserID      string                 `json:"userId"`
}

// historyEntry accepts the string-or-object union used for oldMessages.
type historyEntry struct {
	Text string `json:"text"`
}

func (w *filterWire) toRequest() (*moderation.Request, error) {
	req := &moderation.Request{
		Text:   w.Text,
		Image:  w.Image,
		Tier:   moderation.ClampTier(w.Model),
		Policy: coercePolicy(w.Config),
	}

	for i, raw := range w.OldMessages {
		if len(req.History) >= moderation.MaxHistory {
			break
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			req.History = append(req.History, s)
			continue
		}
		var entry historyEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("oldMessages[%d]: expected string or {text}", i)
		}
		req.History = append(req.History, entry.Text)
	}
	return req, nil
}

func coercePolicy(cfg map[string]interface{}) moderation.Policy {
	return moderation.Policy{
		AllowAbuse:               moderation.CoerceBool(cfg["allowAbuse"]),
		AllowPhone:               moderation.CoerceBool(cfg["allowPhone"]),
		AllowEmail:               moderation.CoerceBool(cfg["allowEmail"]),
		AllowPhysicalInformation: moderation.CoerceBool(cfg["allowPhysicalInformation"]),
		AllowSocialInformation:   moderation.CoerceBool(cfg["allowSocialInformation"]),
		ReturnFilteredMessage:    moderation.CoerceBool(cfg["returnFilteredMessage"]),
		AnalyzeImages:            moderation.CoerceBool(cfg["analyzeImages"]),
	}
}
