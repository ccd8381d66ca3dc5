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

// Package aggregate folds the short-lived KV stats counters into durable
// daily and hourly rows in Postgres. All upserts accumulate: an existing
// row receives the delta, it is never overwritten.
package aggregate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Schema. EnsureSchema applies it on startup; every statement is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS request_stats_daily (
  date                 DATE PRIMARY KEY,
  total_requests       BIGINT NOT NULL DEFAULT 0,
  filtered_requests    BIGINT NOT NULL DEFAULT 0,
  blocked_requests     BIGINT NOT NULL DEFAULT 0,
  cached_requests      BIGINT NOT NULL DEFAULT 0,
  avg_response_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
  p95_response_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
  updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS api_performance_hourly (
  timestamp            TIMESTAMPTZ NOT NULL,
  api_type             TEXT NOT NULL,
  total_calls          BIGINT NOT NULL DEFAULT 0,
  error_calls          BIGINT NOT NULL DEFAULT 0,
  avg_response_time_ms DOUBLE PRECISION NOT NULL DEFAULT 0,
  PRIMARY KEY (timestamp, api_type)
);

CREATE TABLE IF NOT EXISTS content_flags_daily (
  date       DATE NOT NULL,
  flag_name  TEXT NOT NULL,
  count      BIGINT NOT NULL DEFAULT 0,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (date, flag_name)
);

CREATE TABLE IF NOT EXISTS user_activity_daily (
  date          DATE NOT NULL,
  user_id       TEXT NOT NULL,
  request_count BIGINT NOT NULL DEFAULT 0,
  blocked_count BIGINT NOT NULL DEFAULT 0,
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (date, user_id)
);
`

// RequestDelta is one flush window's worth of request counters.
type RequestDelta struct {
	Total    int64
	Blocked  int64
	Cached   int64
	AvgMs    float64
	P95Ms    float64
	LatencyN int64 // samples behind AvgMs, weights the running average
}

// APIDelta is the consumed api:stats hash for one API type.
type APIDelta struct {
	Calls     int64
	Errors    int64
	TotalTime int64
}

// Store wraps the Postgres connection used by the aggregator and the
// summary reader.
type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection. Used by tests with sqlmock.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// EnsureSchema creates the aggregation tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Begin opens the single transaction an aggregation run works in.
func (s *Store) Begin(ctx context.Context) (*sqlx.Tx, error) {
	return s.db.BeginTxx(ctx, nil)
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// UpsertRequestDaily accumulates one day's request counters. The running
// average is weighted by request counts; the p95 reflects the most recent
// sample window.
func (s *Store) UpsertRequestDaily(ctx context.Context, tx *sqlx.Tx, date time.Time, d RequestDelta) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO request_stats_daily
		  (date, total_requests, blocked_requests, cached_requests, filtered_requests,
		   avg_response_time_ms, p95_response_time_ms, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (date) DO UPDATE SET
		  total_requests       = request_stats_daily.total_requests + EXCLUDED.total_requests,
		  blocked_requests     = request_stats_daily.blocked_requests + EXCLUDED.blocked_requests,
		  cached_requests      = request_stats_daily.cached_requests + EXCLUDED.cached_requests,
		  filtered_requests    = request_stats_daily.filtered_requests + EXCLUDED.filtered_requests,
		  avg_response_time_ms = CASE
		    WHEN request_stats_daily.total_requests + EXCLUDED.total_requests = 0 THEN 0
		    ELSE (request_stats_daily.avg_response_time_ms * request_stats_daily.total_requests
		          + EXCLUDED.avg_response_time_ms * EXCLUDED.total_requests)
		         / (request_stats_daily.total_requests + EXCLUDED.total_requests)
		  END,
		  p95_response_time_ms = EXCLUDED.p95_response_time_ms,
		  updated_at           = now()`,
		date.Format("2006-01-02"), d.Total, d.Blocked, d.Cached, d.Total-d.Blocked, d.AvgMs, d.P95Ms)
	if err != nil {
		return fmt.Errorf("upsert request_stats_daily: %w", err)
	}
	return nil
}

// UpsertAPIHourly accumulates one hour's upstream API counters. The running
// average is weighted by call counts.
func (s *Store) UpsertAPIHourly(ctx context.Context, tx *sqlx.Tx, hour time.Time, apiType string, d APIDelta) error {
	avg := 0.0
	if d.Calls > 0 {
		avg = float64(d.TotalTime) / float64(d.Calls)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO api_performance_hourly (timestamp, api_type, total_calls, error_calls, avg_response_time_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (timestamp, api_type) DO UPDATE SET
		  total_calls          = api_performance_hourly.total_calls + EXCLUDED.total_calls,
		  error_calls          = api_performance_hourly.error_calls + EXCLUDED.error_calls,
		  avg_response_time_ms = CASE
		    WHEN api_performance_hourly.total_calls + EXCLUDED.total_calls = 0 THEN 0
		    ELSE (api_performance_hourly.avg_response_time_ms * api_performance_hourly.total_calls
		          + EXCLUDED.avg_response_time_ms * EXCLUDED.total_calls)
		         / (api_performance_hourly.total_calls + EXCLUDED.total_calls)
		  END`,
		hour.UTC().Truncate(time.Hour), apiType, d.Calls, d.Errors, avg)
	if err != nil {
		return fmt.Errorf("upsert api_performance_hourly(%s): %w", apiType, err)
	}
	return nil
}

// UpsertFlagDaily accumulates one flag's daily count.
func (s *Store) UpsertFlagDaily(ctx context.Context, tx *sqlx.Tx, date time.Time, flag string, count int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO content_flags_daily (date, flag_name, count, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (date, flag_name) DO UPDATE SET
		  count      = content_flags_daily.count + EXCLUDED.count,
		  updated_at = now()`,
		date.Format("2006-01-02"), flag, count)
	if err != nil {
		return fmt.Errorf("upsert content_flags_daily(%s): %w", flag, err)
	}
	return nil
}

// UpsertUserDaily accumulates one user's daily request count. The blocked
// count is not tracked per-user in KV, so the existing value is preserved.
func (s *Store) UpsertUserDaily(ctx context.Context, tx *sqlx.Tx, date time.Time, userID string, requests int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO user_activity_daily (date, user_id, request_count, blocked_count, updated_at)
		VALUES ($1, $2, $3, 0, now())
		ON CONFLICT (date, user_id) DO UPDATE SET
		  request_count = user_activity_daily.request_count + EXCLUDED.request_count,
		  blocked_count = user_activity_daily.blocked_count,
		  updated_at    = now()`,
		date.Format("2006-01-02"), userID, requests)
	if err != nil {
		return fmt.Errorf("upsert user_activity_daily(%s): %w", userID, err)
	}
	return nil
}

// DailyRow is one day's aggregated request stats.
type DailyRow struct {
	Date             time.Time `db:"date"`
	TotalRequests    int64     `db:"total_requests"`
	FilteredRequests int64     `db:"filtered_requests"`
	BlockedRequests  int64     `db:"blocked_requests"`
	CachedRequests   int64     `db:"cached_requests"`
	AvgResponseMs    float64   `db:"avg_response_time_ms"`
	P95ResponseMs    float64   `db:"p95_response_time_ms"`
}

// FlagRow is one (day, flag) count.
type FlagRow struct {
	Flag  string `db:"flag_name"`
	Count int64  `db:"count"`
}

// RequestDaily reads one day's row; found is false when the day has no row.
func (s *Store) RequestDaily(ctx context.Context, date time.Time) (DailyRow, bool, error) {
	var row DailyRow
	err := s.db.GetContext(ctx, &row, `
		SELECT date, total_requests, filtered_requests, blocked_requests, cached_requests,
		       avg_response_time_ms, p95_response_time_ms
		FROM request_stats_daily WHERE date = $1`,
		date.Format("2006-01-02"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DailyRow{}, false, nil
		}
		return DailyRow{}, false, fmt.Errorf("select request_stats_daily: %w", err)
	}
	return row, true, nil
}

// TopFlags reads a day's flag counts, highest first.
func (s *Store) TopFlags(ctx context.Context, date time.Time, limit int) ([]FlagRow, error) {
	var rows []FlagRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT flag_name, count FROM content_flags_daily
		WHERE date = $1 ORDER BY count DESC LIMIT $2`,
		date.Format("2006-01-02"), limit)
	if err != nil {
		return nil, fmt.Errorf("select content_flags_daily: %w", err)
	}
	return rows, nil
}
