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
	"path"
	"strconv"
	"sync"
	"time"
)

// memEntry holds one key's value. Exactly one of str/hash/list is in use,
// matching how the Redis type system treats a key.
type memEntry struct {
	str       string
	hash      map[string]string
	list      []string
	expiresAt time.Time // zero means no expiry
}

func (e *memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryClient is the process-local fallback backend. Semantics are
// best-effort: TTLs are enforced lazily on read, pattern matching uses
// path.Match, and nothing survives a restart. It is always Ready.
type MemoryClient struct {
	mu   sync.Mutex
	data map[string]*memEntry
}

// NewMemoryClient returns an empty in-process backend.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{data: make(map[string]*memEntry)}
}

// lookup returns the live entry for key, purging it if expired.
// Callers must hold mu.
func (m *MemoryClient) lookup(key string) *memEntry {
	e, ok := m.data[key]
	if !ok {
		return nil
	}
	if e.expired(time.Now()) {
		delete(m.data, key)
		return nil
	}
	return e
}

func (m *MemoryClient) ensure(key string) *memEntry {
	e := m.lookup(key)
	if e == nil {
		e = &memEntry{}
		m.data[key] = e
	}
	return e
}

func (m *MemoryClient) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookup(key)
	if e == nil {
		return "", ErrNil
	}
	return e.str, nil
}

func (m *MemoryClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &memEntry{str: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	m.data[key] = e
	return nil
}

func (m *MemoryClient) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *MemoryClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrBy(ctx, key, 1)
}

func (m *MemoryClient) IncrBy(_ context.Context, key string, n int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.ensure(key)
	cur, _ := strconv.ParseInt(e.str, 10, 64)
	cur += n
	e.str = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (m *MemoryClient) MGet(_ context.Context, keys ...string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(keys))
	for i, k := range keys {
		if e := m.lookup(k); e != nil {
			out[i] = e.str
		}
	}
	return out, nil
}

func (m *MemoryClient) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []string
	for k, e := range m.data {
		if e.expired(now) {
			delete(m.data, k)
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *MemoryClient) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	if e := m.lookup(key); e != nil {
		for f, v := range e.hash {
			out[f] = v
		}
	}
	return out, nil
}

func (m *MemoryClient) HIncrBy(_ context.Context, key, field string, n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hIncrByLocked(key, field, n)
	return nil
}

func (m *MemoryClient) hIncrByLocked(key, field string, n int64) {
	e := m.ensure(key)
	if e.hash == nil {
		e.hash = make(map[string]string)
	}
	cur, _ := strconv.ParseInt(e.hash[field], 10, 64)
	e.hash[field] = strconv.FormatInt(cur+n, 10)
}

func (m *MemoryClient) LPush(_ context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lPushLocked(key, values...)
	return nil
}

func (m *MemoryClient) lPushLocked(key string, values ...string) {
	e := m.ensure(key)
	// LPUSH prepends values one at a time, so the last argument ends up first.
	for _, v := range values {
		e.list = append([]string{v}, e.list...)
	}
}

func (m *MemoryClient) LTrim(_ context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lTrimLocked(key, start, stop)
	return nil
}

func (m *MemoryClient) lTrimLocked(key string, start, stop int64) {
	e := m.lookup(key)
	if e == nil {
		return
	}
	n := int64(len(e.list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		e.list = nil
		return
	}
	e.list = e.list[start : stop+1]
}

func (m *MemoryClient) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.lookup(key)
	if e == nil {
		return nil, nil
	}
	n := int64(len(e.list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, e.list[start:stop+1])
	return out, nil
}

func (m *MemoryClient) LLen(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.lookup(key); e != nil {
		return int64(len(e.list)), nil
	}
	return 0, nil
}

func (m *MemoryClient) ExpireNX(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.lookup(key); e != nil && e.expiresAt.IsZero() && ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	return nil
}

// Pipelined applies the queued operations under a single lock acquisition.
func (m *MemoryClient) Pipelined(_ context.Context, fn func(Pipe)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(memPipe{m: m})
	return nil
}

func (m *MemoryClient) Ping(context.Context) error { return nil }

func (m *MemoryClient) Ready() bool { return true }

func (m *MemoryClient) Close() error { return nil }

// memPipe applies operations immediately; the caller already holds the lock.
type memPipe struct{ m *MemoryClient }

func (p memPipe) IncrBy(key string, n int64) {
	e := p.m.ensure(key)
	cur, _ := strconv.ParseInt(e.str, 10, 64)
	e.str = strconv.FormatInt(cur+n, 10)
}

func (p memPipe) HIncrBy(key, field string, n int64) { p.m.hIncrByLocked(key, field, n) }

func (p memPipe) LPush(key string, values ...string) { p.m.lPushLocked(key, values...) }

func (p memPipe) LTrim(key string, start, stop int64) { p.m.lTrimLocked(key, start, stop) }

func (p memPipe) ExpireNX(key string, ttl time.Duration) {
	if e := p.m.lookup(key); e != nil && e.expiresAt.IsZero() && ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
}

func (p memPipe) Set(key, value string, ttl time.Duration) {
	e := &memEntry{str: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	p.m.data[key] = e
}

func (p memPipe) Del(keys ...string) {
	for _, k := range keys {
		delete(p.m.data, k)
	}
}
