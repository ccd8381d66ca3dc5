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
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// downClient simulates a primary whose connection has dropped.
type downClient struct {
	*MemoryClient
	ready bool
}

func (d *downClient) Ready() bool { return d.ready }

func (d *downClient) Get(ctx context.Context, key string) (string, error) {
	if !d.ready {
		return "", errors.New("connection refused")
	}
	return d.MemoryClient.Get(ctx, key)
}

func TestStoreRoutesToPrimaryWhenReady(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := Dial(context.Background(), "redis://"+mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	defer rc.Close()

	s := NewStore(rc, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	assert.True(t, mr.Exists("k"))
	assert.True(t, s.Ready())
	assert.False(t, s.UsingFallback())
}

func TestStoreFallsBackWhenPrimaryDown(t *testing.T) {
	primary := &downClient{MemoryClient: NewMemoryClient(), ready: false}
	s := NewStore(primary, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	assert.False(t, s.Ready())
	assert.True(t, s.UsingFallback())
}

func TestStoreNilPrimary(t *testing.T) {
	s := NewStore(nil, zap.NewNop())
	ctx := context.Background()

	n, err := s.IncrBy(ctx, "c", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, s.UsingFallback())
	assert.NoError(t, s.Close())
}

func TestStoreGetMissReturnsErrNilNotError(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := Dial(context.Background(), "redis://"+mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	defer rc.Close()

	s := NewStore(rc, zap.NewNop())
	_, err = s.Get(context.Background(), "never-set")
	assert.ErrorIs(t, err, ErrNil)
}
