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

// Package pipeline orchestrates one moderation request end to end:
// validation, cache lookup, deterministic pre-screen, AI escalation, the
// image path, and the response-first background work (cache write, stats,
// log). The response is never delayed by the background block.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"modgate/internal/gateway/cache"
	"modgate/internal/gateway/moderation"
	"modgate/internal/gateway/prescreen"
	"modgate/internal/gateway/provider"
	"modgate/internal/gateway/stats"
	"modgate/internal/gateway/telemetry"
)

// DefaultMaxImageBytes caps the base64 payload accepted on the image path.
const DefaultMaxImageBytes = 4 * 1024 * 1024

const passedReason = "Content passed pre-screening checks"

// ResponseCache is the slice of the cache the pipeline uses.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*moderation.Response, bool)
	Put(key string, resp *moderation.Response, ttl time.Duration)
	AdaptiveTTL(resp *moderation.Response) time.Duration
}

// Analyzer is the slice of the provider factory the pipeline uses.
type Analyzer interface {
	AnalyzeText(ctx context.Context, tier moderation.Tier, text string, history []string, policy moderation.Policy) provider.Result
	AnalyzeImage(ctx context.Context, tier moderation.Tier, imageB64 string, policy moderation.Policy) provider.Result
}

// EventRecorder receives one stats event per completed request.
type EventRecorder interface {
	Record(ev stats.Event)
}

// Pipeline is the moderation orchestrator. Safe for concurrent use.
type Pipeline struct {
	cache    ResponseCache
	screener *prescreen.Screener
	analyzer Analyzer
	recorder EventRecorder
	logger   *zap.Logger

	maxImageBytes int
	bg            sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxImageBytes overrides the accepted base64 image size.
func WithMaxImageBytes(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxImageBytes = n
		}
	}
}

// New wires the pipeline. recorder may be nil when stats are disabled.
func New(rc ResponseCache, screener *prescreen.Screener, analyzer Analyzer, recorder EventRecorder, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		cache:         rc,
		screener:      screener,
		analyzer:      analyzer,
		recorder:      recorder,
		logger:        logger,
		maxImageBytes: DefaultMaxImageBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Filter moderates one request. It always returns a usable response; an
// internal panic degrades to allow-with-error rather than failing the call.
func (p *Pipeline) Filter(ctx context.Context, req *moderation.Request, userID string) (resp *moderation.Response) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panic recovered", zap.Any("panic", r))
			resp = &moderation.Response{
				Blocked: false,
				Reason:  "moderation error",
				Flags:   []string{moderation.FlagError},
			}
		}
	}()

	if !req.HasContent() {
		resp = &moderation.Response{Blocked: true, Reason: "no content"}
		p.dispatch(req, resp, userID, start, false, nil, nil)
		return resp
	}
	req.Canonicalise()

	key := cache.Fingerprint(req)
	if cached, hit := p.cache.Get(ctx, key); hit {
		p.dispatchCached(cached, userID, start)
		return cached
	}

	resp = &moderation.Response{}
	var textCall, imageCall *stats.APICall

	if req.Text != "" {
		textCall = p.filterText(ctx, req, resp)
	}
	if req.Image != "" && !resp.Blocked && req.Policy.AnalyzeImages {
		imageCall = p.filterImage(ctx, req, resp)
	}

	if resp.Reason == "" {
		resp.Reason = passedReason
	}

	p.dispatch(req, resp, userID, start, true, textCall, imageCall)
	// Cache every computed verdict; the TTL adapts to the outcome.
	p.cachePut(key, resp)
	return resp
}

// filterText runs the pre-screen and, when needed, the AI escalation.
// Returns the upstream call record if an AI call was made.
func (p *Pipeline) filterText(ctx context.Context, req *moderation.Request, resp *moderation.Response) *stats.APICall {
	sr := p.screener.Evaluate(req.Text, req.Policy)

	if !sr.NeedsReview && !sr.ShouldBlock {
		// Clean, or sensitive content the policy permits.
		resp.AddFlags(sr.Flags...)
		if len(sr.Flags) > 0 {
			resp.Reason = sr.Reason
		}
		return nil
	}

	if req.Policy.ReturnFilteredMessage && redactable(sr.Flags) {
		// Simple-pattern detection with redaction requested: handle
		// locally, no AI round-trip.
		if redacted, changed := prescreen.Redact(req.Text); changed {
			resp.Blocked = true
			resp.Reason = sr.Reason
			resp.FilteredMessage = redacted
			resp.AddFlags(sr.Flags...)
			return nil
		}
	}

	if sr.ShouldBlock {
		resp.Blocked = true
		resp.Reason = sr.Reason
		resp.AddFlags(sr.Flags...)
		return nil
	}

	// Weak signal: escalate to the AI provider. Fail-open — a provider
	// failure surfaces as allow with the error flag.
	callStart := time.Now()
	res := p.analyzer.AnalyzeText(ctx, req.Tier, req.Text, req.History, req.Policy)
	call := &stats.APICall{
		DurationMs: time.Since(callStart).Milliseconds(),
		Err:        hasError(res.Flags),
	}
	telemetry.ObserveProviderCall(false, call.Err)

	resp.AddFlags(sr.Flags...)
	resp.AddFlags(res.Flags...)
	if res.IsViolation {
		resp.Blocked = true
		resp.Reason = res.Reason
		if req.Policy.ReturnFilteredMessage && res.FilteredContent != "" {
			resp.FilteredMessage = res.FilteredContent
		}
	} else if resp.Reason == "" && res.Reason != "" {
		resp.Reason = res.Reason
	}
	return call
}

// filterImage runs the vision analysis. Fail-closed: any provider failure
// blocks the request with the image_error flag.
func (p *Pipeline) filterImage(ctx context.Context, req *moderation.Request, resp *moderation.Response) *stats.APICall {
	if len(req.Image) > p.maxImageBytes {
		resp.Blocked = true
		resp.Reason = "image exceeds maximum size"
		resp.AddFlags(moderation.ImageFlagPrefix + moderation.FlagError)
		return nil
	}

	callStart := time.Now()
	res := p.analyzer.AnalyzeImage(ctx, req.Tier, req.Image, req.Policy)
	call := &stats.APICall{
		DurationMs: time.Since(callStart).Milliseconds(),
		Err:        hasError(res.Flags),
	}
	telemetry.ObserveProviderCall(true, call.Err)

	if hasError(res.Flags) {
		resp.Blocked = true
		resp.Reason = "image analysis failed"
		resp.AddFlags(moderation.ImageFlagPrefix + moderation.FlagError)
		return call
	}
	if res.IsViolation {
		resp.Blocked = true
		resp.Reason = res.Reason
		resp.AddFlags(moderation.PrefixImageFlags(res.Flags)...)
		return call
	}
	resp.AddFlags(moderation.PrefixImageFlags(res.Flags)...)
	return call
}

// dispatch schedules the background block for a computed response. Nothing
// here may delay the caller or surface an error.
func (p *Pipeline) dispatch(req *moderation.Request, resp *moderation.Response, userID string, start time.Time, counted bool, textCall, imageCall *stats.APICall) {
	latency := time.Since(start)
	flags := append([]string(nil), resp.Flags...)
	blocked := resp.Blocked
	reason := resp.Reason
	telemetry.ObserveRequest(blocked, false, latency)

	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("background dispatch panic", zap.Any("panic", r))
			}
		}()
		if p.recorder != nil && counted {
			p.recorder.Record(stats.Event{
				UserID:    userID,
				Blocked:   blocked,
				Cached:    false,
				Flags:     flags,
				LatencyMs: latency.Milliseconds(),
				TextCall:  textCall,
				ImageCall: imageCall,
			})
		}
		p.logger.Info("request filtered",
			zap.String("user", userID),
			zap.Bool("blocked", blocked),
			zap.String("reason", reason),
			zap.Strings("flags", flags),
			zap.Int64("latency_ms", latency.Milliseconds()))
	}()
}

// dispatchCached records a cache hit in the background.
func (p *Pipeline) dispatchCached(resp *moderation.Response, userID string, start time.Time) {
	latency := time.Since(start)
	flags := append([]string(nil), resp.Flags...)
	blocked := resp.Blocked
	telemetry.ObserveRequest(blocked, true, latency)

	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		if p.recorder != nil {
			p.recorder.Record(stats.Event{
				UserID:    userID,
				Blocked:   blocked,
				Cached:    true,
				Flags:     flags,
				LatencyMs: latency.Milliseconds(),
			})
		}
		p.logger.Debug("cache hit",
			zap.String("user", userID),
			zap.Bool("blocked", blocked),
			zap.Int64("latency_ms", latency.Milliseconds()))
	}()
}

// cachePut stores the response asynchronously; Put itself is fire-and-forget.
func (p *Pipeline) cachePut(key string, resp *moderation.Response) {
	p.cache.Put(key, resp, p.cache.AdaptiveTTL(resp))
}

// Drain waits for all scheduled background work. Used on shutdown and in
// tests.
func (p *Pipeline) Drain() {
	p.bg.Wait()
}

// redactable reports whether every detected flag has a local redaction.
func redactable(flags []string) bool {
	if len(flags) == 0 {
		return false
	}
	for _, f := range flags {
		if f != moderation.FlagPhoneNumber && f != moderation.FlagEmailAddress {
			return false
		}
	}
	return true
}

func hasError(flags []string) bool {
	for _, f := range flags {
		if f == moderation.FlagError {
			return true
		}
	}
	return false
}
