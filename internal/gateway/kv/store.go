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
	"time"

	"go.uber.org/zap"
)

// Store composes the Redis primary with the in-process fallback. Writes go
// to whichever backend is live; reads try the primary first and fall back on
// error. The primary may be nil, in which case the Store degrades to a
// purely process-local KV.
type Store struct {
	primary  Client
	fallback *MemoryClient
	logger   *zap.Logger
}

// NewStore builds a dual-backend store. primary may be nil.
func NewStore(primary Client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		primary:  primary,
		fallback: NewMemoryClient(),
		logger:   logger,
	}
}

// live returns the backend that should receive commands right now.
func (s *Store) live() Client {
	if s.primary != nil && s.primary.Ready() {
		return s.primary
	}
	return s.fallback
}

// UsingFallback reports whether commands are currently served in-process.
func (s *Store) UsingFallback() bool {
	return s.primary == nil || !s.primary.Ready()
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if s.primary != nil && s.primary.Ready() {
		val, err := s.primary.Get(ctx, key)
		if err == nil || errors.Is(err, ErrNil) {
			return val, err
		}
		s.logger.Debug("kv primary read failed, trying fallback",
			zap.String("key", key), zap.Error(err))
	}
	return s.fallback.Get(ctx, key)
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.live().Set(ctx, key, value, ttl)
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	return s.live().Del(ctx, keys...)
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	return s.live().Incr(ctx, key)
}

func (s *Store) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	return s.live().IncrBy(ctx, key, n)
}

func (s *Store) MGet(ctx context.Context, keys ...string) ([]string, error) {
	return s.live().MGet(ctx, keys...)
}

func (s *Store) Keys(ctx context.Context, pattern string) ([]string, error) {
	return s.live().Keys(ctx, pattern)
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.live().HGetAll(ctx, key)
}

func (s *Store) HIncrBy(ctx context.Context, key, field string, n int64) error {
	return s.live().HIncrBy(ctx, key, field, n)
}

func (s *Store) LPush(ctx context.Context, key string, values ...string) error {
	return s.live().LPush(ctx, key, values...)
}

func (s *Store) LTrim(ctx context.Context, key string, start, stop int64) error {
	return s.live().LTrim(ctx, key, start, stop)
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.live().LRange(ctx, key, start, stop)
}

func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	return s.live().LLen(ctx, key)
}

func (s *Store) ExpireNX(ctx context.Context, key string, ttl time.Duration) error {
	return s.live().ExpireNX(ctx, key, ttl)
}

func (s *Store) Pipelined(ctx context.Context, fn func(Pipe)) error {
	return s.live().Pipelined(ctx, fn)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.live().Ping(ctx)
}

// Ready reports the health of the primary backend. The fallback keeps the
// store functional either way, so this is a freshness signal, not liveness.
func (s *Store) Ready() bool {
	return s.primary != nil && s.primary.Ready()
}

func (s *Store) Close() error {
	if s.primary != nil {
		return s.primary.Close()
	}
	return nil
}
