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

package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"modgate/internal/gateway/moderation"
)

// fakeProvider scripts one provider's behavior, in the style of the fakes
// the persistence tests use.
type fakeProvider struct {
	name      string
	result    Result
	err       error
	delay     time.Duration
	textCalls int
	lastModel string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) AnalyzeText(ctx context.Context, text string, history []string, policy moderation.Policy, model string) (Result, error) {
	f.textCalls++
	f.lastModel = model
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	return f.result, f.err
}

func (f *fakeProvider) AnalyzeImage(ctx context.Context, imageB64 string, policy moderation.Policy) (Result, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
	return f.result, f.err
}

func TestRouteByTier(t *testing.T) {
	f := NewFactory(zap.NewNop())
	fast := &fakeProvider{name: "fast-provider"}
	pro := &fakeProvider{name: "pro-provider"}
	f.Register(fast)
	f.Register(pro)
	f.SetRoute(moderation.TierFast, Route{Provider: "fast-provider", Model: "small"})
	f.SetRoute(moderation.TierPro, Route{Provider: "pro-provider", Model: "big"})

	p, model, err := f.Route(moderation.TierFast)
	require.NoError(t, err)
	assert.Equal(t, "fast-provider", p.Name())
	assert.Equal(t, "small", model)

	p, model, err = f.Route(moderation.TierPro)
	require.NoError(t, err)
	assert.Equal(t, "pro-provider", p.Name())
	assert.Equal(t, "big", model)
}

func TestRouteUnknownTierClampsToNormal(t *testing.T) {
	f := NewFactory(zap.NewNop())
	normal := &fakeProvider{name: "normal-provider"}
	f.Register(normal)
	f.SetRoute(moderation.TierNormal, Route{Provider: "normal-provider", Model: "m"})

	p, _, err := f.Route(moderation.Tier("turbo-ultra"))
	require.NoError(t, err)
	assert.Equal(t, "normal-provider", p.Name())
}

func TestRouteFallsBackToFirstRegistered(t *testing.T) {
	f := NewFactory(zap.NewNop())
	available := &fakeProvider{name: "available"}
	f.Register(available)
	// Route names a provider whose credentials were never configured.
	f.SetRoute(moderation.TierNormal, Route{Provider: "unconfigured", Model: "m"})

	p, model, err := f.Route(moderation.TierNormal)
	require.NoError(t, err)
	assert.Equal(t, "available", p.Name())
	assert.Empty(t, model)
}

func TestRouteNoProviders(t *testing.T) {
	f := NewFactory(zap.NewNop())
	_, _, err := f.Route(moderation.TierNormal)
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestAnalyzeTextSuccess(t *testing.T) {
	f := NewFactory(zap.NewNop())
	f.Register(&fakeProvider{
		name:   "p",
		result: Result{IsViolation: true, Flags: []string{"NSFW", "nsfw"}, Reason: "explicit"},
	})

	res := f.AnalyzeText(context.Background(), moderation.TierNormal, "text", nil, moderation.Policy{})
	assert.True(t, res.IsViolation)
	assert.Equal(t, []string{"nsfw"}, res.Flags, "flags must be normalised and deduplicated")
}

func TestAnalyzeTextFailureMapsToFailResult(t *testing.T) {
	f := NewFactory(zap.NewNop())
	f.Register(&fakeProvider{name: "p", err: errors.New("connection reset")})

	res := f.AnalyzeText(context.Background(), moderation.TierNormal, "text", nil, moderation.Policy{})
	assert.False(t, res.IsViolation)
	assert.Equal(t, []string{moderation.FlagError}, res.Flags)
	assert.Equal(t, "AI analysis failed", res.Reason)
}

func TestAnalyzeTextTimeout(t *testing.T) {
	f := NewFactory(zap.NewNop())
	f.SetTimeout(20 * time.Millisecond)
	f.Register(&fakeProvider{name: "slow", delay: time.Second})

	start := time.Now()
	res := f.AnalyzeText(context.Background(), moderation.TierNormal, "text", nil, moderation.Policy{})
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, []string{moderation.FlagError}, res.Flags)
}

func TestAnalyzeImageFailureMapsToFailResult(t *testing.T) {
	f := NewFactory(zap.NewNop())
	f.Register(&fakeProvider{name: "p", err: errors.New("boom")})

	res := f.AnalyzeImage(context.Background(), moderation.TierNormal, "aW1n", moderation.Policy{})
	assert.Equal(t, []string{moderation.FlagError}, res.Flags)
}

func TestAnalyzeTextNoProviders(t *testing.T) {
	f := NewFactory(zap.NewNop())
	res := f.AnalyzeText(context.Background(), moderation.TierNormal, "text", nil, moderation.Policy{})
	assert.Equal(t, []string{moderation.FlagError}, res.Flags)
}
