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

// Package stats collects per-request moderation events into an in-process
// batch and periodically flushes them to the KV store in one pipelined
// burst. The aggregator later folds these keys into the durable store.
package stats

// KV key layout shared between the recorder and the aggregator.
const (
	KeyRequestsTotal   = "stats:requests:total"
	KeyRequestsBlocked = "stats:requests:blocked"
	KeyRequestsCached  = "stats:requests:cached"
	KeyLatencyAll      = "stats:latency:all"

	KeyUserPrefix  = "stats:requests:user:" // + userID
	KeyFlagPrefix  = "stats:flags:"         // + flag name
	KeyAPIText     = "api:stats:text"
	KeyAPIImage    = "api:stats:image"
	KeyUserPattern = KeyUserPrefix + "*"
	KeyFlagPattern = KeyFlagPrefix + "*"

	FieldCalls     = "calls"
	FieldTotalTime = "total_time"
	FieldErrors    = "errors"
)

// UserKey builds the per-user request counter key.
func UserKey(userID string) string { return KeyUserPrefix + userID }

// FlagKey builds the per-flag counter key.
func FlagKey(flag string) string { return KeyFlagPrefix + flag }
