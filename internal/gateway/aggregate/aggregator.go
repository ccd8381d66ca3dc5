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

package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"modgate/internal/gateway/kv"
	"modgate/internal/gateway/stats"
)

// Mode selects how a run treats the no-data guard.
type Mode string

const (
	// ModeNormal runs the cheap KV pre-check and skips when nothing
	// accumulated since the last run. The database is not touched on skip.
	ModeNormal Mode = "normal"
	// ModeForce aggregates even when the pre-check sees no data.
	ModeForce Mode = "force"
	// ModeSkipDataCheck bypasses the pre-check entirely.
	ModeSkipDataCheck Mode = "skipDataCheck"
)

// Result reports what one aggregation run did.
type Result struct {
	Skipped      bool     `json:"skipped"`
	Reason       string   `json:"reason,omitempty"`
	RequestDaily bool     `json:"requestDaily"`
	APIHourly    bool     `json:"apiHourly"`
	FlagsDaily   bool     `json:"flagsDaily"`
	UserDaily    bool     `json:"userDaily"`
	Errors       []string `json:"errors,omitempty"`
	DurationMs   int64    `json:"durationMs"`
}

// Aggregator folds KV counters into the durable store. One run works in a
// single transaction; consumed KV keys are deleted only after commit.
type Aggregator struct {
	kv     kv.Client
	store  *Store
	logger *zap.Logger
	now    func() time.Time
}

// New creates an aggregator.
func New(kvc kv.Client, store *Store, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{kv: kvc, store: store, logger: logger, now: time.Now}
}

// snapshot is everything one run consumes from KV.
type snapshot struct {
	total, blocked, cached int64
	latencies              []int64
	flags                  map[string]int64 // flag -> count
	users                  map[string]int64 // userID -> count
	text, image            APIDelta

	consumedKeys []string
}

func (s *snapshot) empty() bool {
	return s.total == 0 && s.blocked == 0 && s.cached == 0 &&
		len(s.latencies) == 0 && len(s.flags) == 0 && len(s.users) == 0 &&
		s.text.Calls == 0 && s.image.Calls == 0
}

// Run executes one aggregation pass.
func (a *Aggregator) Run(ctx context.Context, mode Mode) (Result, error) {
	start := a.now()
	res := Result{}

	snap, err := a.collect(ctx)
	if err != nil {
		return res, fmt.Errorf("collect stats: %w", err)
	}

	if mode == ModeNormal && snap.empty() {
		res.Skipped = true
		res.Reason = "no stats accumulated since last run"
		res.DurationMs = a.now().Sub(start).Milliseconds()
		a.logger.Debug("aggregation skipped, no data")
		return res, nil
	}

	tx, err := a.store.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin aggregation transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	day := a.now().UTC()
	hour := day.Truncate(time.Hour)

	if err := a.store.UpsertRequestDaily(ctx, tx, day, RequestDelta{
		Total:    snap.total,
		Blocked:  snap.blocked,
		Cached:   snap.cached,
		AvgMs:    mean(snap.latencies),
		P95Ms:    percentile(snap.latencies, 95),
		LatencyN: int64(len(snap.latencies)),
	}); err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res, err
	}
	res.RequestDaily = true

	for _, api := range []struct {
		name  string
		delta APIDelta
	}{{"text", snap.text}, {"image", snap.image}} {
		if api.delta.Calls == 0 {
			continue
		}
		if err := a.store.UpsertAPIHourly(ctx, tx, hour, api.name, api.delta); err != nil {
			res.Errors = append(res.Errors, err.Error())
			return res, err
		}
	}
	res.APIHourly = true

	for flag, count := range snap.flags {
		if err := a.store.UpsertFlagDaily(ctx, tx, day, flag, count); err != nil {
			res.Errors = append(res.Errors, err.Error())
			return res, err
		}
	}
	res.FlagsDaily = true

	for user, count := range snap.users {
		if err := a.store.UpsertUserDaily(ctx, tx, day, user, count); err != nil {
			res.Errors = append(res.Errors, err.Error())
			return res, err
		}
	}
	res.UserDaily = true

	if err := tx.Commit(); err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res, fmt.Errorf("commit aggregation: %w", err)
	}

	// Reset consumed counters so the next run starts from zero. A failure
	// here means double-counting on the next run, which the accumulating
	// upserts tolerate; log and move on.
	if len(snap.consumedKeys) > 0 {
		if err := a.kv.Del(ctx, snap.consumedKeys...); err != nil {
			a.logger.Warn("failed to reset consumed stats keys", zap.Error(err))
		}
	}

	res.DurationMs = a.now().Sub(start).Milliseconds()
	a.logger.Info("aggregation complete",
		zap.Int64("requests", snap.total),
		zap.Int("flags", len(snap.flags)),
		zap.Int("users", len(snap.users)),
		zap.Int64("duration_ms", res.DurationMs))
	return res, nil
}

// collect reads everything the run will consume out of KV.
func (a *Aggregator) collect(ctx context.Context) (*snapshot, error) {
	snap := &snapshot{
		flags: make(map[string]int64),
		users: make(map[string]int64),
	}

	counters, err := a.kv.MGet(ctx, stats.KeyRequestsTotal, stats.KeyRequestsBlocked, stats.KeyRequestsCached)
	if err != nil {
		return nil, fmt.Errorf("read request counters: %w", err)
	}
	snap.total = parseCount(counters[0])
	snap.blocked = parseCount(counters[1])
	snap.cached = parseCount(counters[2])
	if snap.total > 0 {
		snap.consumedKeys = append(snap.consumedKeys,
			stats.KeyRequestsTotal, stats.KeyRequestsBlocked, stats.KeyRequestsCached)
	}

	raw, err := a.kv.LRange(ctx, stats.KeyLatencyAll, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("read latency samples: %w", err)
	}
	for _, s := range raw {
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			snap.latencies = append(snap.latencies, ms)
		}
	}
	if len(raw) > 0 {
		snap.consumedKeys = append(snap.consumedKeys, stats.KeyLatencyAll)
	}

	if err := a.collectKeyed(ctx, stats.KeyFlagPattern, stats.KeyFlagPrefix, snap.flags, snap); err != nil {
		return nil, fmt.Errorf("read flag counters: %w", err)
	}
	if err := a.collectKeyed(ctx, stats.KeyUserPattern, stats.KeyUserPrefix, snap.users, snap); err != nil {
		return nil, fmt.Errorf("read user counters: %w", err)
	}

	snap.text, err = a.collectAPI(ctx, stats.KeyAPIText, snap)
	if err != nil {
		return nil, fmt.Errorf("read text api stats: %w", err)
	}
	snap.image, err = a.collectAPI(ctx, stats.KeyAPIImage, snap)
	if err != nil {
		return nil, fmt.Errorf("read image api stats: %w", err)
	}

	return snap, nil
}

// collectKeyed scans one prefixed key space into dst.
func (a *Aggregator) collectKeyed(ctx context.Context, pattern, prefix string, dst map[string]int64, snap *snapshot) error {
	keys, err := a.kv.Keys(ctx, pattern)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	values, err := a.kv.MGet(ctx, keys...)
	if err != nil {
		return err
	}
	for i, key := range keys {
		if n := parseCount(values[i]); n > 0 {
			dst[strings.TrimPrefix(key, prefix)] = n
		}
	}
	snap.consumedKeys = append(snap.consumedKeys, keys...)
	return nil
}

func (a *Aggregator) collectAPI(ctx context.Context, key string, snap *snapshot) (APIDelta, error) {
	fields, err := a.kv.HGetAll(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNil) {
			return APIDelta{}, nil
		}
		return APIDelta{}, err
	}
	if len(fields) == 0 {
		return APIDelta{}, nil
	}
	snap.consumedKeys = append(snap.consumedKeys, key)
	return APIDelta{
		Calls:     parseCount(fields[stats.FieldCalls]),
		Errors:    parseCount(fields[stats.FieldErrors]),
		TotalTime: parseCount(fields[stats.FieldTotalTime]),
	}, nil
}

func parseCount(s string) int64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func mean(samples []int64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum int64
	for _, s := range samples {
		sum += s
	}
	return float64(sum) / float64(len(samples))
}

// percentile returns the pth percentile of samples using nearest-rank.
func percentile(samples []int64, p int) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]int64, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return float64(sorted[rank-1])
}
