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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	dialAttempts    = 3
	dialBackoffBase = 250 * time.Millisecond
	pingInterval    = 15 * time.Second
)

// RedisClient wraps go-redis with per-command deadlines and an explicit
// readiness flag. The flag flips on connection lifecycle events: it is set
// after a successful dial and updated by a background ping loop, so callers
// can route around a dead Redis without paying a timeout per request.
type RedisClient struct {
	c        *redis.Client
	ready    atomic.Bool
	logger   *zap.Logger
	stopPing chan struct{}
	once     sync.Once
}

// Dial connects to Redis using bounded exponential backoff. After
// dialAttempts failed pings it returns the last error; the caller is
// expected to fall back to the in-process backend.
func Dial(ctx context.Context, uri string, logger *zap.Logger) (*RedisClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opt, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis uri: %w", err)
	}
	opt.DialTimeout = CommandTimeout
	opt.ReadTimeout = CommandTimeout
	opt.WriteTimeout = CommandTimeout

	rc := &RedisClient{
		c:        redis.NewClient(opt),
		logger:   logger,
		stopPing: make(chan struct{}),
	}

	backoff := dialBackoffBase
	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, CommandTimeout)
		err = rc.c.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			break
		}
		if attempt >= dialAttempts {
			_ = rc.c.Close()
			return nil, fmt.Errorf("redis unreachable after %d attempts: %w", attempt, err)
		}
		logger.Warn("redis dial failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			_ = rc.c.Close()
			return nil, ctx.Err()
		}
		backoff *= 2
	}

	rc.ready.Store(true)
	go rc.pingLoop()
	return rc, nil
}

// pingLoop keeps the readiness flag current. A failed ping marks the client
// not ready; the next successful ping restores it.
func (r *RedisClient) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), CommandTimeout)
			err := r.c.Ping(ctx).Err()
			cancel()
			was := r.ready.Swap(err == nil)
			if was && err != nil {
				r.logger.Warn("redis became unreachable", zap.Error(err))
			} else if !was && err == nil {
				r.logger.Info("redis connection restored")
			}
		case <-r.stopPing:
			return
		}
	}
}

// Ready reports whether the last lifecycle event saw a live connection.
func (r *RedisClient) Ready() bool { return r.ready.Load() }

func (r *RedisClient) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	val, err := r.c.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNil
	}
	return val, err
}

func (r *RedisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return r.c.Set(ctx, key, value, ttl).Err()
}

func (r *RedisClient) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return r.c.Del(ctx, keys...).Err()
}

func (r *RedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return r.IncrBy(ctx, key, 1)
}

func (r *RedisClient) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return r.c.IncrBy(ctx, key, n).Result()
}

func (r *RedisClient) MGet(ctx context.Context, keys ...string) ([]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	raw, err := r.c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(raw))
	for i, v := range raw {
		if s, ok := v.(string); ok {
			out[i] = s
		}
	}
	return out, nil
}

func (r *RedisClient) Keys(ctx context.Context, pattern string) ([]string, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return r.c.Keys(ctx, pattern).Result()
}

func (r *RedisClient) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return r.c.HGetAll(ctx, key).Result()
}

func (r *RedisClient) HIncrBy(ctx context.Context, key, field string, n int64) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return r.c.HIncrBy(ctx, key, field, n).Err()
}

func (r *RedisClient) LPush(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return r.c.LPush(ctx, key, args...).Err()
}

func (r *RedisClient) LTrim(ctx context.Context, key string, start, stop int64) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return r.c.LTrim(ctx, key, start, stop).Err()
}

func (r *RedisClient) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return r.c.LRange(ctx, key, start, stop).Result()
}

func (r *RedisClient) LLen(ctx context.Context, key string) (int64, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return r.c.LLen(ctx, key).Result()
}

func (r *RedisClient) ExpireNX(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return r.c.ExpireNX(ctx, key, ttl).Err()
}

// Pipelined queues the writes issued by fn and sends them in one burst.
func (r *RedisClient) Pipelined(ctx context.Context, fn func(Pipe)) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	_, err := r.c.Pipelined(ctx, func(p redis.Pipeliner) error {
		fn(redisPipe{ctx: ctx, p: p})
		return nil
	})
	return err
}

func (r *RedisClient) Ping(ctx context.Context) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	return r.c.Ping(ctx).Err()
}

func (r *RedisClient) Close() error {
	r.once.Do(func() { close(r.stopPing) })
	r.ready.Store(false)
	return r.c.Close()
}

// redisPipe adapts redis.Pipeliner to the Pipe surface.
type redisPipe struct {
	ctx context.Context
	p   redis.Pipeliner
}

func (rp redisPipe) IncrBy(key string, n int64) { rp.p.IncrBy(rp.ctx, key, n) }

func (rp redisPipe) HIncrBy(key, field string, n int64) { rp.p.HIncrBy(rp.ctx, key, field, n) }

func (rp redisPipe) LPush(key string, values ...string) {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	rp.p.LPush(rp.ctx, key, args...)
}

func (rp redisPipe) LTrim(key string, start, stop int64) { rp.p.LTrim(rp.ctx, key, start, stop) }

func (rp redisPipe) ExpireNX(key string, ttl time.Duration) { rp.p.ExpireNX(rp.ctx, key, ttl) }

func (rp redisPipe) Set(key, value string, ttl time.Duration) { rp.p.Set(rp.ctx, key, value, ttl) }

func (rp redisPipe) Del(keys ...string) { rp.p.Del(rp.ctx, keys...) }
