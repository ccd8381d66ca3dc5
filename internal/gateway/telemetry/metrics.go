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

// Package telemetry provides opt-in Prometheus metrics for the gateway.
// Safe to call from hot paths: when disabled, all public functions are
// no-ops. Only global counters are used, no unbounded label cardinality.
package telemetry

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls the telemetry module. MetricsAddr, when non-empty, starts
// a dedicated HTTP server serving /metrics; leave it empty if Prometheus is
// exposed elsewhere.
type Config struct {
	Enabled     bool
	MetricsAddr string // e.g. ":9090"; empty disables the standalone endpoint
}

var (
	modEnabled atomic.Bool

	requestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modgate_requests_total",
		Help: "Total moderation requests processed",
	})
	requestsBlocked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modgate_requests_blocked_total",
		Help: "Total moderation requests that were blocked",
	})
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modgate_cache_hits_total",
		Help: "Total requests served from the response cache",
	})
	requestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "modgate_request_duration_seconds",
		Help:    "End-to-end moderation latency",
		Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})
	textCallsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modgate_provider_text_calls_total",
		Help: "Total text analysis calls to AI providers",
	})
	imageCallsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modgate_provider_image_calls_total",
		Help: "Total image analysis calls to AI providers",
	})
	providerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modgate_provider_errors_total",
		Help: "Total failed AI provider calls",
	})
	aggregationRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modgate_aggregation_runs_total",
		Help: "Total stats aggregation runs, including skipped ones",
	})
	aggregationErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "modgate_aggregation_errors_total",
		Help: "Total failed stats aggregation runs",
	})
)

func init() {
	// Registration is harmless when no endpoint is exposed.
	prometheus.MustRegister(requestsTotal, requestsBlocked, cacheHits,
		requestDuration, textCallsTotal, imageCallsTotal, providerErrors,
		aggregationRuns, aggregationErrors)
}

// Enable configures the module. Safe to call multiple times.
func Enable(cfg Config) {
	modEnabled.Store(cfg.Enabled)
	if cfg.Enabled && cfg.MetricsAddr != "" {
		startMetricsEndpoint(cfg.MetricsAddr)
	}
}

// Enabled reports whether telemetry is active.
func Enabled() bool { return modEnabled.Load() }

// ObserveRequest records one completed moderation request.
func ObserveRequest(blocked, cached bool, latency time.Duration) {
	if !modEnabled.Load() {
		return
	}
	requestsTotal.Inc()
	if blocked {
		requestsBlocked.Inc()
	}
	if cached {
		cacheHits.Inc()
	}
	requestDuration.Observe(latency.Seconds())
}

// ObserveProviderCall records one AI provider round-trip.
func ObserveProviderCall(image bool, failed bool) {
	if !modEnabled.Load() {
		return
	}
	if image {
		imageCallsTotal.Inc()
	} else {
		textCallsTotal.Inc()
	}
	if failed {
		providerErrors.Inc()
	}
}

// ObserveAggregation records one aggregator run.
func ObserveAggregation(failed bool) {
	if !modEnabled.Load() {
		return
	}
	aggregationRuns.Inc()
	if failed {
		aggregationErrors.Inc()
	}
}

// startMetricsEndpoint exposes /metrics on addr in a background goroutine.
func startMetricsEndpoint(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}
