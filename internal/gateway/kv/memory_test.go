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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSet(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNil)

	require.NoError(t, m.Set(ctx, "k", "v", 0))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestMemoryTTLEnforcedOnRead(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNil)

	keys, err := m.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryIncrBy(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()

	n, err := m.IncrBy(ctx, "counter", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = m.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)
}

func TestMemoryMGet(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", "1", 0))
	require.NoError(t, m.Set(ctx, "c", "3", 0))

	vals, err := m.MGet(ctx, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "", "3"}, vals)
}

func TestMemoryListOps(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()

	require.NoError(t, m.LPush(ctx, "l", "1", "2", "3"))
	// LPUSH semantics: last value pushed ends up at the head.
	vals, err := m.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2", "1"}, vals)

	n, err := m.LLen(ctx, "l")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, m.LTrim(ctx, "l", 0, 1))
	vals, err = m.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2"}, vals)
}

func TestMemoryHashOps(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()

	require.NoError(t, m.HIncrBy(ctx, "h", "calls", 2))
	require.NoError(t, m.HIncrBy(ctx, "h", "calls", 3))
	require.NoError(t, m.HIncrBy(ctx, "h", "errors", 1))

	got, err := m.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"calls": "5", "errors": "1"}, got)
}

func TestMemoryKeysPattern(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "stats:flags:phone_number", "2", 0))
	require.NoError(t, m.Set(ctx, "stats:flags:email_address", "1", 0))
	require.NoError(t, m.Set(ctx, "stats:requests:total", "9", 0))

	keys, err := m.Keys(ctx, "stats:flags:*")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, "stats:flags:phone_number")
	assert.Contains(t, keys, "stats:flags:email_address")
}

func TestMemoryExpireNX(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", time.Hour))
	before := m.data["k"].expiresAt

	// NX: must not replace an existing expiry.
	require.NoError(t, m.ExpireNX(ctx, "k", time.Minute))
	assert.Equal(t, before, m.data["k"].expiresAt)

	require.NoError(t, m.Set(ctx, "bare", "v", 0))
	require.NoError(t, m.ExpireNX(ctx, "bare", time.Minute))
	assert.False(t, m.data["bare"].expiresAt.IsZero())
}

func TestMemoryPipelined(t *testing.T) {
	m := NewMemoryClient()
	ctx := context.Background()

	err := m.Pipelined(ctx, func(p Pipe) {
		p.IncrBy("stats:requests:total", 4)
		p.HIncrBy("api:stats:text", "calls", 2)
		p.LPush("stats:latency:all", "12", "34")
		p.LTrim("stats:latency:all", 0, 499)
		p.ExpireNX("stats:requests:total", time.Hour)
	})
	require.NoError(t, err)

	total, err := m.Get(ctx, "stats:requests:total")
	require.NoError(t, err)
	assert.Equal(t, "4", total)

	h, err := m.HGetAll(ctx, "api:stats:text")
	require.NoError(t, err)
	assert.Equal(t, "2", h["calls"])

	n, err := m.LLen(ctx, "stats:latency:all")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
