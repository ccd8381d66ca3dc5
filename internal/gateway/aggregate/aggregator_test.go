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
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"modgate/internal/gateway/kv"
	"modgate/internal/gateway/stats"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(sqlx.NewDb(db, "sqlmock")), mock
}

func TestRunSkipsWithoutData(t *testing.T) {
	store, mock := newMockStore(t)
	agg := New(kv.NewMemoryClient(), store, zap.NewNop())

	res, err := agg.Run(context.Background(), ModeNormal)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.NotEmpty(t, res.Reason)

	// The guard must keep the database asleep: no Begin, no queries.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunAggregatesCounters(t *testing.T) {
	store, mock := newMockStore(t)
	mem := kv.NewMemoryClient()
	ctx := context.Background()

	_, err := mem.IncrBy(ctx, stats.KeyRequestsTotal, 10)
	require.NoError(t, err)
	_, err = mem.IncrBy(ctx, stats.KeyRequestsBlocked, 3)
	require.NoError(t, err)
	_, err = mem.IncrBy(ctx, stats.KeyRequestsCached, 2)
	require.NoError(t, err)
	require.NoError(t, mem.LPush(ctx, stats.KeyLatencyAll, "10", "20", "30", "40"))
	_, err = mem.IncrBy(ctx, stats.FlagKey("phone_number"), 4)
	require.NoError(t, err)
	_, err = mem.IncrBy(ctx, stats.UserKey("u1"), 7)
	require.NoError(t, err)
	require.NoError(t, mem.HIncrBy(ctx, stats.KeyAPIText, stats.FieldCalls, 5))
	require.NoError(t, mem.HIncrBy(ctx, stats.KeyAPIText, stats.FieldTotalTime, 1000))

	mock.ExpectBegin()
	// filtered accumulates as total minus blocked of this delta.
	mock.ExpectExec("INSERT INTO request_stats_daily").
		WithArgs(sqlmock.AnyArg(), int64(10), int64(3), int64(2), int64(7), float64(25), float64(40)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO api_performance_hourly").
		WithArgs(sqlmock.AnyArg(), "text", int64(5), int64(0), float64(200)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO content_flags_daily").
		WithArgs(sqlmock.AnyArg(), "phone_number", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO user_activity_daily").
		WithArgs(sqlmock.AnyArg(), "u1", int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	agg := New(mem, store, zap.NewNop())
	res, err := agg.Run(ctx, ModeNormal)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.True(t, res.RequestDaily)
	assert.True(t, res.APIHourly)
	assert.True(t, res.FlagsDaily)
	assert.True(t, res.UserDaily)
	assert.Empty(t, res.Errors)
	assert.NoError(t, mock.ExpectationsWereMet())

	// Consumed counters are reset after commit.
	_, err = mem.Get(ctx, stats.KeyRequestsTotal)
	assert.ErrorIs(t, err, kv.ErrNil)
	_, err = mem.Get(ctx, stats.FlagKey("phone_number"))
	assert.ErrorIs(t, err, kv.ErrNil)
	fields, err := mem.HGetAll(ctx, stats.KeyAPIText)
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestRunIdempotentAfterReset(t *testing.T) {
	store, mock := newMockStore(t)
	mem := kv.NewMemoryClient()
	ctx := context.Background()
	_, err := mem.IncrBy(ctx, stats.KeyRequestsTotal, 5)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO request_stats_daily").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	agg := New(mem, store, zap.NewNop())
	first, err := agg.Run(ctx, ModeNormal)
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	// The run consumed its counters; a second run finds nothing to do.
	second, err := agg.Run(ctx, ModeNormal)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunForceOpensTransactionWithoutData(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO request_stats_daily").
		WithArgs(sqlmock.AnyArg(), int64(0), int64(0), int64(0), int64(0), float64(0), float64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	agg := New(kv.NewMemoryClient(), store, zap.NewNop())
	res, err := agg.Run(context.Background(), ModeForce)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRollsBackOnUpsertFailure(t *testing.T) {
	store, mock := newMockStore(t)
	mem := kv.NewMemoryClient()
	ctx := context.Background()
	_, err := mem.IncrBy(ctx, stats.KeyRequestsTotal, 5)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO request_stats_daily").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	agg := New(mem, store, zap.NewNop())
	res, err := agg.Run(ctx, ModeNormal)
	require.Error(t, err)
	assert.False(t, res.RequestDaily)
	assert.NotEmpty(t, res.Errors)

	// Keys survive a failed run so the next one can retry.
	v, err := mem.Get(ctx, stats.KeyRequestsTotal)
	require.NoError(t, err)
	assert.Equal(t, "5", v)
}

func TestPercentile(t *testing.T) {
	assert.Equal(t, float64(0), percentile(nil, 95))
	assert.Equal(t, float64(7), percentile([]int64{7}, 95))

	samples := make([]int64, 0, 100)
	for i := int64(1); i <= 100; i++ {
		samples = append(samples, i)
	}
	assert.Equal(t, float64(95), percentile(samples, 95))
	assert.Equal(t, float64(50), percentile(samples, 50))
}

func TestMean(t *testing.T) {
	assert.Equal(t, float64(0), mean(nil))
	assert.Equal(t, float64(25), mean([]int64{10, 20, 30, 40}))
}
