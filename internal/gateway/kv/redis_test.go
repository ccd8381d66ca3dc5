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

package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialTest(t *testing.T) (*miniredis.Miniredis, *RedisClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := Dial(context.Background(), "redis://"+mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })
	return mr, rc
}

func TestRedisDialAndReady(t *testing.T) {
	_, rc := dialTest(t)
	assert.True(t, rc.Ready())
	assert.NoError(t, rc.Ping(context.Background()))
}

func TestRedisDialUnreachable(t *testing.T) {
	start := time.Now()
	_, err := Dial(context.Background(), "redis://127.0.0.1:1", zap.NewNop())
	require.Error(t, err)
	// Three attempts with 250ms/500ms backoff between them.
	assert.GreaterOrEqual(t, time.Since(start), 750*time.Millisecond)
}

func TestRedisGetSetDel(t *testing.T) {
	_, rc := dialTest(t)
	ctx := context.Background()

	_, err := rc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNil)

	require.NoError(t, rc.Set(ctx, "k", "v", time.Minute))
	got, err := rc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, rc.Del(ctx, "k"))
	_, err = rc.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNil)
}

func TestRedisCountersAndHashes(t *testing.T) {
	_, rc := dialTest(t)
	ctx := context.Background()

	n, err := rc.IncrBy(ctx, "stats:requests:total", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, rc.HIncrBy(ctx, "api:stats:text", "calls", 2))
	h, err := rc.HGetAll(ctx, "api:stats:text")
	require.NoError(t, err)
	assert.Equal(t, "2", h["calls"])
}

func TestRedisMGetMissing(t *testing.T) {
	_, rc := dialTest(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "a", "1", 0))
	vals, err := rc.MGet(ctx, "a", "nope")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", ""}, vals)
}

func TestRedisPipelinedFlushShape(t *testing.T) {
	mr, rc := dialTest(t)
	ctx := context.Background()

	err := rc.Pipelined(ctx, func(p Pipe) {
		p.IncrBy("stats:requests:total", 7)
		p.LPush("stats:latency:all", "10", "20", "30")
		p.LTrim("stats:latency:all", 0, 1)
		p.HIncrBy("api:stats:image", "total_time", 120)
		p.ExpireNX("stats:requests:total", time.Hour)
	})
	require.NoError(t, err)

	total, err := rc.Get(ctx, "stats:requests:total")
	require.NoError(t, err)
	assert.Equal(t, "7", total)

	lat, err := rc.LRange(ctx, "stats:latency:all", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"30", "20"}, lat)
	assert.Greater(t, mr.TTL("stats:requests:total"), time.Duration(0))
}
