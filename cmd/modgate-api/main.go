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

// Package main is the entry point of the moderation gateway.
//
// The gateway sits between client applications and AI moderation providers.
// Cheap deterministic pre-screening handles the obvious cases locally; only
// ambiguous content pays for an AI round-trip. Verdicts are cached in Redis
// with outcome-adaptive TTLs, per-request stats are batched to Redis, and a
// periodic aggregation folds them into Postgres for reporting.
//
// This file wires the components and manages the shutdown order: stop
// accepting HTTP traffic, drain in-flight background work, flush the stats
// batch, then close the backends.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"modgate/internal/gateway/aggregate"
	"modgate/internal/gateway/api"
	"modgate/internal/gateway/cache"
	"modgate/internal/gateway/config"
	"modgate/internal/gateway/kv"
	"modgate/internal/gateway/moderation"
	"modgate/internal/gateway/pipeline"
	"modgate/internal/gateway/prescreen"
	"modgate/internal/gateway/provider"
	"modgate/internal/gateway/stats"
	"modgate/internal/gateway/summary"
	"modgate/internal/gateway/telemetry"
)

func main() {
	cfg := config.FromEnv()

	// Flags override the environment for the knobs operators touch most.
	httpAddr := flag.String("http_addr", cfg.ListenAddr, "HTTP listen address (e.g., :8080)")
	metricsAddr := flag.String("metrics_addr", cfg.MetricsAddr, "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")
	redisURI := flag.String("redis_uri", cfg.RedisURI, "Redis connection URI; unreachable Redis degrades to in-process KV")
	postgresDSN := flag.String("postgres_dsn", cfg.PostgresDSN, "Postgres DSN for aggregated stats; empty disables the durable store")
	ratePerMinute := flag.Int("rate_per_minute", cfg.RatePerMinute, "Per-client request budget; 0 disables rate limiting")
	devLogging := flag.Bool("dev_logging", false, "Human-readable console logging instead of JSON")
	flag.Parse()

	logger := newLogger(*devLogging)
	defer func() { _ = logger.Sync() }()

	telemetry.Enable(telemetry.Config{
		Enabled:     *metricsAddr != "",
		MetricsAddr: *metricsAddr,
	})

	// KV layer: Redis primary with the in-process fallback. A failed dial is
	// a degraded start, not a fatal one.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	var primary kv.Client
	if rc, err := kv.Dial(ctx, *redisURI, logger); err != nil {
		logger.Warn("redis unreachable, starting on in-process KV", zap.Error(err))
	} else {
		primary = rc
	}
	cancel()
	kvStore := kv.NewStore(primary, logger)

	// Durable store and the services depending on it.
	var (
		store      *aggregate.Store
		aggregator api.Aggregator
	)
	if *postgresDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		s, err := aggregate.Open(ctx, *postgresDSN)
		if err != nil {
			logger.Fatal("postgres connection failed", zap.Error(err))
		}
		if err := s.EnsureSchema(ctx); err != nil {
			logger.Fatal("schema setup failed", zap.Error(err))
		}
		cancel()
		store = s
		aggregator = aggregate.New(kvStore, store, logger)
	} else {
		logger.Info("no postgres DSN configured, aggregation disabled")
	}
	summarizer := summary.New(store, kvStore, logger)

	// AI providers. Missing credentials disable a provider rather than
	// failing startup; with no provider at all, ambiguous content degrades
	// per the fail-open/fail-closed rules.
	factory := provider.NewFactory(logger)
	factory.SetTimeout(cfg.ProviderTimeout)
	if cfg.AnthropicAPIKey != "" {
		factory.Register(provider.NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicBaseURL, logger))
		logger.Info("anthropic provider enabled")
	}
	if cfg.OpenAIAPIKey != "" {
		factory.Register(provider.NewOpenAICompat("openai", cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, logger))
		logger.Info("openai provider enabled")
	}
	if !cfg.HasProvider() {
		logger.Warn("no AI provider configured, ambiguous content will not be escalated")
	}
	routeTiers(factory, cfg)

	respCache := cache.New(kvStore, logger,
		cache.WithTTLBounds(cfg.CacheMinTTL, cfg.CacheTTL, cfg.CacheMaxTTL))
	recorder := stats.NewRecorder(kvStore, logger)
	pipe := pipeline.New(respCache, prescreen.New(), factory, recorder, logger,
		pipeline.WithMaxImageBytes(cfg.MaxImageBytes))

	server := api.NewServer(pipe, aggregator, summarizer, kvStore, *ratePerMinute, logger)
	httpServer := &http.Server{
		Addr:              *httpAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("moderation gateway listening", zap.String("addr", *httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")

	// Stop accepting traffic first, then let in-flight background work and
	// the final stats flush complete before closing the backends.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	pipe.Drain()
	recorder.Close()
	if store != nil {
		_ = store.Close()
	}
	_ = kvStore.Close()

	logger.Info("gateway stopped")
}

// routeTiers binds each model tier to a provider and model. Tiers without
// an explicit model fall back to the provider's default.
func routeTiers(factory *provider.Factory, cfg config.Config) {
	name := ""
	if cfg.AnthropicAPIKey != "" {
		name = "anthropic"
	} else if cfg.OpenAIAPIKey != "" {
		name = "openai"
	}
	if name == "" {
		return
	}
	factory.SetRoute(moderation.TierFast, provider.Route{Provider: name, Model: cfg.TierFastModel})
	factory.SetRoute(moderation.TierNormal, provider.Route{Provider: name, Model: cfg.TierNormalModel})
	factory.SetRoute(moderation.TierPro, provider.Route{Provider: name, Model: cfg.TierProModel})
}

func newLogger(dev bool) *zap.Logger {
	if dev {
		logger, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return logger
	}
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return logger
}
