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

package stats

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"modgate/internal/gateway/kv"
)

const (
	// FlushInterval is how long the first unflushed event waits before the
	// batch is written out. Events arriving in the window coalesce.
	FlushInterval = 5 * time.Second

	// maxLatencySamples caps both the in-process sample buffer and the KV
	// latency list (LTRIM 0 maxLatencySamples-1).
	maxLatencySamples = 500

	// counterTTL is applied with EXPIRE NX so stale counters age out when
	// the aggregator stops consuming them.
	counterTTL = time.Hour

	flushTimeout = 5 * time.Second
)

// APICall describes one upstream AI call made while serving a request.
type APICall struct {
	DurationMs int64
	Err        bool
}

// Event is one moderation request's worth of stats.
type Event struct {
	UserID    string
	Blocked   bool
	Cached    bool
	Flags     []string
	LatencyMs int64
	TextCall  *APICall
	ImageCall *APICall
}

// apiBatch accumulates calls to one upstream API type.
type apiBatch struct {
	calls     int64
	totalTime int64
	errors    int64
}

// batch is the in-process accumulation between flushes.
type batch struct {
	total     int64
	blocked   int64
	cached    int64
	latencies []int64
	users     map[string]int64
	flags     map[string]int64
	text      apiBatch
	image     apiBatch
}

func (b *batch) empty() bool { return b.total == 0 && b.text.calls == 0 && b.image.calls == 0 }

// Recorder batches events and flushes them to KV in a single pipelined
// burst. Record never blocks on KV and flush failures never propagate to
// the caller.
type Recorder struct {
	store  kv.Client
	logger *zap.Logger

	mu      sync.Mutex
	current batch
	armed   bool

	interval time.Duration
	stopChan chan struct{}
	wg       sync.WaitGroup
	closed   bool
}

// NewRecorder creates a recorder writing to store.
func NewRecorder(store kv.Client, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:    store,
		logger:   logger,
		interval: FlushInterval,
		stopChan: make(chan struct{}),
	}
}

// SetInterval overrides the coalescing window. Test hook; ignored when
// non-positive.
func (r *Recorder) SetInterval(d time.Duration) {
	if d > 0 {
		r.mu.Lock()
		r.interval = d
		r.mu.Unlock()
	}
}

// Record adds one event to the batch and arms the flush timer if it is not
// armed already.
func (r *Recorder) Record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	b := &r.current
	b.total++
	if ev.Blocked {
		b.blocked++
	}
	if ev.Cached {
		b.cached++
	}
	if len(b.latencies) < maxLatencySamples {
		b.latencies = append(b.latencies, ev.LatencyMs)
	}
	if ev.UserID != "" {
		if b.users == nil {
			b.users = make(map[string]int64)
		}
		b.users[ev.UserID]++
	}
	for _, flag := range ev.Flags {
		if b.flags == nil {
			b.flags = make(map[string]int64)
		}
		b.flags[flag]++
	}
	if ev.TextCall != nil {
		b.text.calls++
		b.text.totalTime += ev.TextCall.DurationMs
		if ev.TextCall.Err {
			b.text.errors++
		}
	}
	if ev.ImageCall != nil {
		b.image.calls++
		b.image.totalTime += ev.ImageCall.DurationMs
		if ev.ImageCall.Err {
			b.image.errors++
		}
	}

	if !r.armed {
		r.armed = true
		r.wg.Add(1)
		go r.flushAfter(r.interval)
	}
}

// flushAfter waits for the coalescing window, then flushes. A shutdown
// signal flushes immediately.
func (r *Recorder) flushAfter(d time.Duration) {
	defer r.wg.Done()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-r.stopChan:
	}
	r.Flush()
}

// Flush writes the pending batch out now. Safe to call concurrently with
// Record; used directly on shutdown.
func (r *Recorder) Flush() {
	r.mu.Lock()
	b := r.current
	r.current = batch{}
	r.armed = false
	r.mu.Unlock()

	if b.empty() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := r.write(ctx, &b); err != nil {
		r.logger.Warn("stats flush failed, retrying once", zap.Error(err))
		if err := r.write(ctx, &b); err != nil {
			r.logger.Error("stats flush failed, dropping batch",
				zap.Int64("events", b.total), zap.Error(err))
		}
	}
}

// write issues the whole batch as one pipelined burst.
func (r *Recorder) write(ctx context.Context, b *batch) error {
	return r.store.Pipelined(ctx, func(p kv.Pipe) {
		p.IncrBy(KeyRequestsTotal, b.total)
		p.ExpireNX(KeyRequestsTotal, counterTTL)
		if b.blocked > 0 {
			p.IncrBy(KeyRequestsBlocked, b.blocked)
			p.ExpireNX(KeyRequestsBlocked, counterTTL)
		}
		if b.cached > 0 {
			p.IncrBy(KeyRequestsCached, b.cached)
			p.ExpireNX(KeyRequestsCached, counterTTL)
		}
		if len(b.latencies) > 0 {
			samples := make([]string, len(b.latencies))
			for i, ms := range b.latencies {
				samples[i] = strconv.FormatInt(ms, 10)
			}
			p.LPush(KeyLatencyAll, samples...)
			p.LTrim(KeyLatencyAll, 0, maxLatencySamples-1)
			p.ExpireNX(KeyLatencyAll, counterTTL)
		}
		for user, n := range b.users {
			p.IncrBy(UserKey(user), n)
			p.ExpireNX(UserKey(user), counterTTL)
		}
		for flag, n := range b.flags {
			p.IncrBy(FlagKey(flag), n)
			p.ExpireNX(FlagKey(flag), counterTTL)
		}
		writeAPIBatch(p, KeyAPIText, b.text)
		writeAPIBatch(p, KeyAPIImage, b.image)
	})
}

func writeAPIBatch(p kv.Pipe, key string, b apiBatch) {
	if b.calls == 0 {
		return
	}
	p.HIncrBy(key, FieldCalls, b.calls)
	p.HIncrBy(key, FieldTotalTime, b.totalTime)
	if b.errors > 0 {
		p.HIncrBy(key, FieldErrors, b.errors)
	}
	p.ExpireNX(key, counterTTL)
}

// Close flushes any pending batch and stops accepting events.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.stopChan)
	r.wg.Wait()
	r.Flush()
}
