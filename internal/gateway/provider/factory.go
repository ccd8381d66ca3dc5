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
	"time"

	"go.uber.org/zap"

	"modgate/internal/gateway/moderation"
)

// DefaultCallTimeout bounds each external analysis call.
const DefaultCallTimeout = 10 * time.Second

// ErrNoProvider is returned by Route when no configured provider exists.
var ErrNoProvider = errors.New("provider: no provider configured")

// Route names the provider and model serving one tier.
type Route struct {
	Provider string
	Model    string
}

// Factory selects providers by tier and converts every call failure into
// FailureResult so the pipeline only ever sees the uniform shape.
type Factory struct {
	providers map[string]Provider
	order     []string // registration order, used for fallback
	routes    map[moderation.Tier]Route
	timeout   time.Duration
	logger    *zap.Logger
}

// NewFactory creates an empty factory; register providers and routes next.
func NewFactory(logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		providers: make(map[string]Provider),
		routes:    make(map[moderation.Tier]Route),
		timeout:   DefaultCallTimeout,
		logger:    logger,
	}
}

// SetTimeout overrides the per-call budget. Non-positive values are ignored.
func (f *Factory) SetTimeout(d time.Duration) {
	if d > 0 {
		f.timeout = d
	}
}

// Register adds a provider. Only providers whose credentials are present
// should ever be registered; the caller enforces that.
func (f *Factory) Register(p Provider) {
	if _, dup := f.providers[p.Name()]; !dup {
		f.order = append(f.order, p.Name())
	}
	f.providers[p.Name()] = p
}

// SetRoute binds a tier to a provider/model pair.
func (f *Factory) SetRoute(tier moderation.Tier, r Route) {
	f.routes[moderation.ClampTier(string(tier))] = r
}

// Route resolves the provider serving a tier. Unknown tiers clamp to
// normal. A route naming an unregistered provider falls back to the first
// registered one; with no providers at all, ErrNoProvider.
func (f *Factory) Route(tier moderation.Tier) (Provider, string, error) {
	tier = moderation.ClampTier(string(tier))
	route, ok := f.routes[tier]
	if ok {
		if p, registered := f.providers[route.Provider]; registered {
			return p, route.Model, nil
		}
		f.logger.Warn("tier routed to unconfigured provider, falling back",
			zap.String("tier", string(tier)),
			zap.String("provider", route.Provider))
	}
	if len(f.order) > 0 {
		return f.providers[f.order[0]], "", nil
	}
	return nil, "", ErrNoProvider
}

// AnalyzeText runs a text analysis for the tier under the call budget.
// Any failure becomes FailureResult; the error is logged, not returned.
func (f *Factory) AnalyzeText(ctx context.Context, tier moderation.Tier, text string, history []string, policy moderation.Policy) Result {
	p, model, err := f.Route(tier)
	if err != nil {
		f.logger.Warn("text analysis skipped", zap.Error(err))
		return FailureResult()
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	res, err := p.AnalyzeText(ctx, text, history, policy, model)
	if err != nil {
		f.logger.Warn("text analysis failed",
			zap.String("provider", p.Name()), zap.Error(err))
		return FailureResult()
	}
	return normalise(res)
}

// AnalyzeImage runs a vision analysis for the tier under the call budget.
func (f *Factory) AnalyzeImage(ctx context.Context, tier moderation.Tier, imageB64 string, policy moderation.Policy) Result {
	p, _, err := f.Route(tier)
	if err != nil {
		f.logger.Warn("image analysis skipped", zap.Error(err))
		return FailureResult()
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	res, err := p.AnalyzeImage(ctx, imageB64, policy)
	if err != nil {
		f.logger.Warn("image analysis failed",
			zap.String("provider", p.Name()), zap.Error(err))
		return FailureResult()
	}
	return normalise(res)
}
