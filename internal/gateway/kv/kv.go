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

// Package kv provides the shared key-value layer used by the cache, the
// stats recorder and the aggregator. The primary backend wraps a remote
// Redis via github.com/redis/go-redis/v9; a process-local in-memory backend
// implements the same interface with best-effort semantics and serves as the
// fallback when Redis is unreachable.
//
// Every command runs under a short deadline so callers on the request hot
// path never block longer than a single round-trip.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNil is returned by Get when the key does not exist. It mirrors
// redis.Nil so callers can treat a miss uniformly across backends.
var ErrNil = errors.New("kv: key does not exist")

// CommandTimeout bounds every individual KV command.
const CommandTimeout = 2 * time.Second

// Pipe is the write surface available inside a Pipelined call. Operations
// are queued and applied in one burst; results are not observable, which is
// all the batched stats flush needs.
type Pipe interface {
	IncrBy(key string, n int64)
	HIncrBy(key, field string, n int64)
	LPush(key string, values ...string)
	LTrim(key string, start, stop int64)
	// ExpireNX sets a TTL only when the key has none yet.
	ExpireNX(key string, ttl time.Duration)
	Set(key, value string, ttl time.Duration)
	Del(keys ...string)
}

// Client is the uniform interface over the Redis wrapper and the in-memory
// fallback. Missing string values are reported as ErrNil by Get and as empty
// strings by MGet.
type Client interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, n int64) (int64, error)
	MGet(ctx context.Context, keys ...string) ([]string, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, n int64) error
	LPush(ctx context.Context, key string, values ...string) error
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)
	ExpireNX(ctx context.Context, key string, ttl time.Duration) error
	Pipelined(ctx context.Context, fn func(Pipe)) error
	Ping(ctx context.Context) error
	Ready() bool
	Close() error
}

// withDeadline bounds ctx with the command timeout unless the caller already
// set a tighter one.
func withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= CommandTimeout {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, CommandTimeout)
}
