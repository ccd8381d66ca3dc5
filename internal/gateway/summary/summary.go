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

// Package summary serves the read path over the aggregated stats. Reads
// are database-first; the KV counters only cover the open window that the
// aggregator has not folded in yet.
package summary

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"modgate/internal/gateway/aggregate"
	"modgate/internal/gateway/kv"
	"modgate/internal/gateway/stats"
)

// DataSource tells the caller where the numbers came from, so stale or
// process-local figures are not mistaken for durable ones.
const (
	SourceDatabase = "database"
	SourceRedis    = "redis"
	SourceFallback = "fallback"
)

const topFlagLimit = 10

// FlagCount is one flag's tally in the summary window.
type FlagCount struct {
	Flag  string `json:"flag"`
	Count int64  `json:"count"`
}

// Stats is the summary response.
type Stats struct {
	Date             string      `json:"date"`
	TotalRequests    int64       `json:"totalRequests"`
	FilteredRequests int64       `json:"filteredRequests"`
	BlockedRequests  int64       `json:"blockedRequests"`
	CachedRequests   int64       `json:"cachedRequests"`
	AvgResponseMs    float64     `json:"avgResponseMs"`
	P95ResponseMs    float64     `json:"p95ResponseMs"`
	TopFlags         []FlagCount `json:"topFlags,omitempty"`
	PendingRequests  int64       `json:"pendingRequests"`
	DataSource       string      `json:"dataSource"`
}

// Service answers summary queries.
type Service struct {
	store  *aggregate.Store
	kv     *kv.Store
	logger *zap.Logger
	now    func() time.Time
}

// New creates the summary service. store may be nil when the gateway runs
// without a durable store; every read then comes from KV.
func New(store *aggregate.Store, kvs *kv.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, kv: kvs, logger: logger, now: time.Now}
}

// Summary reads the stats for one day. A zero date means today.
func (s *Service) Summary(ctx context.Context, date time.Time) (Stats, error) {
	if date.IsZero() {
		date = s.now().UTC()
	}
	out := Stats{Date: date.Format("2006-01-02")}

	if s.store != nil {
		row, found, err := s.store.RequestDaily(ctx, date)
		if err != nil {
			s.logger.Warn("summary database read failed, using kv", zap.Error(err))
		} else if found {
			out.TotalRequests = row.TotalRequests
			out.FilteredRequests = row.FilteredRequests
			out.BlockedRequests = row.BlockedRequests
			out.CachedRequests = row.CachedRequests
			out.AvgResponseMs = row.AvgResponseMs
			out.P95ResponseMs = row.P95ResponseMs
			out.DataSource = SourceDatabase

			if flags, err := s.store.TopFlags(ctx, date, topFlagLimit); err == nil {
				for _, f := range flags {
					out.TopFlags = append(out.TopFlags, FlagCount{Flag: f.Flag, Count: f.Count})
				}
			}
			out.PendingRequests = s.pendingTotal(ctx)
			return out, nil
		}
	}

	// No durable row for the day: fall back to whatever the open KV
	// counters hold. This only makes sense for today.
	total, blocked, cached := s.kvCounters(ctx)
	out.TotalRequests = total
	out.BlockedRequests = blocked
	out.CachedRequests = cached
	out.FilteredRequests = total - blocked
	out.PendingRequests = total
	if s.kv != nil && !s.kv.UsingFallback() {
		out.DataSource = SourceRedis
	} else {
		out.DataSource = SourceFallback
	}
	return out, nil
}

// pendingTotal reports requests flushed to KV but not yet aggregated.
func (s *Service) pendingTotal(ctx context.Context) int64 {
	if s.kv == nil {
		return 0
	}
	raw, err := s.kv.Get(ctx, stats.KeyRequestsTotal)
	if err != nil {
		return 0
	}
	n, _ := strconv.ParseInt(raw, 10, 64)
	return n
}

func (s *Service) kvCounters(ctx context.Context) (total, blocked, cached int64) {
	if s.kv == nil {
		return 0, 0, 0
	}
	values, err := s.kv.MGet(ctx, stats.KeyRequestsTotal, stats.KeyRequestsBlocked, stats.KeyRequestsCached)
	if err != nil || len(values) != 3 {
		return 0, 0, 0
	}
	parse := func(v string) int64 {
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return parse(values[0]), parse(values[1]), parse(values[2])
}
