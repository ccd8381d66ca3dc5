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

// Package cache stores moderation verdicts keyed by request fingerprint.
//
// Entries live in the shared KV (with the in-process fallback underneath)
// under an adaptive TTL: blocked verdicts are short-lived so policy or model
// changes propagate quickly, clean allows live the longest, annotated allows
// sit in between. Large entries are gzip-compressed when that pays off.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"modgate/internal/gateway/kv"
	"modgate/internal/gateway/moderation"
)

// Default TTL bounds. All three are configurable per instance.
const (
	DefaultMinTTL = 1 * time.Hour
	DefaultTTL    = 24 * time.Hour
	DefaultMaxTTL = 7 * 24 * time.Hour

	keyPrefix  = "modcache:"
	putTimeout = kv.CommandTimeout
)

// Cache is the response cache. Get is synchronous and never blocks beyond a
// single KV round-trip; Put is fire-and-forget.
type Cache struct {
	kv     kv.Client
	minTTL time.Duration
	defTTL time.Duration
	maxTTL time.Duration
	logger *zap.Logger
}

// Option tunes a Cache.
type Option func(*Cache)

// WithTTLBounds overrides the adaptive TTL table. Zero values keep defaults.
func WithTTLBounds(min, def, max time.Duration) Option {
	return func(c *Cache) {
		if min > 0 {
			c.minTTL = min
		}
		if def > 0 {
			c.defTTL = def
		}
		if max > 0 {
			c.maxTTL = max
		}
	}
}

// New builds a cache over the given KV client.
func New(client kv.Client, logger *zap.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		kv:     client,
		minTTL: DefaultMinTTL,
		defTTL: DefaultTTL,
		maxTTL: DefaultMaxTTL,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// cachedEntry is the stored shape. StoredAt/TTL travel with the response so
// the in-process backend can honour expiry without Redis semantics.
type cachedEntry struct {
	Response moderation.Response `json:"response"`
	StoredAt time.Time           `json:"storedAt"`
	TTLSecs  int64               `json:"ttlSecs"`
}

// Get looks up a verdict by fingerprint. Backend errors degrade to a miss;
// the caller cannot distinguish a degraded backend from a cold key, which is
// exactly the failure policy the pipeline relies on.
func (c *Cache) Get(ctx context.Context, key string) (*moderation.Response, bool) {
	stored, err := c.kv.Get(ctx, keyPrefix+key)
	if err != nil {
		if !errors.Is(err, kv.ErrNil) {
			c.logger.Debug("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	raw, err := decodePayload(stored)
	if err != nil {
		c.logger.Warn("cache entry undecodable, treating as miss",
			zap.String("key", key), zap.Error(err))
		return nil, false
	}
	var entry cachedEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("cache entry unmarshal failed, treating as miss",
			zap.String("key", key), zap.Error(err))
		return nil, false
	}
	resp := entry.Response
	return &resp, true
}

// Put stores a verdict off the hot path. It returns immediately; the write
// happens on its own goroutine with its own timeout, and failures are only
// logged. A zero ttl selects the adaptive TTL for the response.
func (c *Cache) Put(key string, resp *moderation.Response, ttl time.Duration) {
	if resp == nil {
		return
	}
	if ttl <= 0 {
		ttl = c.AdaptiveTTL(resp)
	}
	entry := cachedEntry{
		Response: *resp,
		StoredAt: time.Now().UTC(),
		TTLSecs:  int64(ttl / time.Second),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), putTimeout)
		defer cancel()
		raw, err := json.Marshal(entry)
		if err != nil {
			c.logger.Error("cache entry marshal failed", zap.Error(err))
			return
		}
		if err := c.kv.Set(ctx, keyPrefix+key, encodePayload(raw), ttl); err != nil {
			c.logger.Debug("cache write dropped", zap.String("key", key), zap.Error(err))
		}
	}()
}

// AdaptiveTTL derives the TTL for a verdict:
//
//	blocked            -> minTTL (policy/model changes must propagate fast)
//	allowed, no flags  -> maxTTL (clean content is the stable case)
//	allowed with flags -> defTTL
func (c *Cache) AdaptiveTTL(resp *moderation.Response) time.Duration {
	switch {
	case resp.Blocked:
		return c.minTTL
	case len(resp.Flags) == 0:
		return c.maxTTL
	default:
		return c.defTTL
	}
}
