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

// Package api implements the public-facing HTTP server of the gateway. It
// decodes the loose wire format, applies rate limiting, delegates to the
// moderation pipeline and returns the appropriate HTTP responses.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"modgate/internal/gateway/aggregate"
	"modgate/internal/gateway/moderation"
	"modgate/internal/gateway/summary"
	"modgate/internal/gateway/telemetry"
)

const maxBatchItems = 10

// maxBodyBytes bounds request bodies; image payloads dominate the size.
const maxBodyBytes = 8 << 20

// Filterer is the pipeline surface the server needs.
type Filterer interface {
	Filter(ctx context.Context, req *moderation.Request, userID string) *moderation.Response
}

// Aggregator triggers a stats aggregation run.
type Aggregator interface {
	Run(ctx context.Context, mode aggregate.Mode) (aggregate.Result, error)
}

// Summarizer answers the summary read path.
type Summarizer interface {
	Summary(ctx context.Context, date time.Time) (summary.Stats, error)
}

// HealthChecker reports whether the primary KV backend is reachable.
type HealthChecker interface {
	Ready() bool
}

// Server handles the gateway's HTTP surface.
type Server struct {
	pipeline   Filterer
	aggregator Aggregator
	summarizer Summarizer
	health     HealthChecker
	limiter    *rateLimiter
	logger     *zap.Logger
}

// NewServer wires the HTTP layer. aggregator and summarizer may be nil when
// the gateway runs without a durable store; their endpoints then return 503.
func NewServer(p Filterer, agg Aggregator, sum Summarizer, health HealthChecker, ratePerMinute int, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		pipeline:   p,
		aggregator: agg,
		summarizer: sum,
		health:     health,
		limiter:    newRateLimiter(ratePerMinute),
		logger:     logger,
	}
}

// Router builds the chi router with all endpoints registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoverer)

	r.Post("/filter", s.handleFilter)
	r.Post("/filter/text", s.handleFilterText)
	r.Post("/filter/image", s.handleFilterImage)
	r.Post("/filter/batch", s.handleFilterBatch)
	r.Get("/stats/summary", s.handleSummary)
	r.Post("/stats/aggregate", s.handleAggregate)
	r.Get("/health", s.handleHealth)
	return r
}

// requestID tags every request with a correlation id.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// recoverer converts handler panics into a 500 without killing the server.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panic", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	s.filterOne(w, r, func(req *moderation.Request) string {
		if !req.HasContent() {
			return "text or image is required"
		}
		return ""
	})
}

func (s *Server) handleFilterText(w http.ResponseWriter, r *http.Request) {
	s.filterOne(w, r, func(req *moderation.Request) string {
		req.Image = ""
		if req.Text == "" {
			return "text is required"
		}
		return ""
	})
}

func (s *Server) handleFilterImage(w http.ResponseWriter, r *http.Request) {
	s.filterOne(w, r, func(req *moderation.Request) string {
		req.Text = ""
		if req.Image == "" {
			return "image is required"
		}
		// The dedicated image endpoint implies image analysis.
		req.Policy.AnalyzeImages = true
		return ""
	})
}

// filterOne is the shared single-item handler; shape validates or rejects
// the decoded request before it reaches the pipeline.
func (s *Server) filterOne(w http.ResponseWriter, r *http.Request, shape func(*moderation.Request) string) {
	var wire filterWire
	if err := decodeBody(w, r, &wire); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := clientID(r, wire.UserID)
	if !s.limiter.Allow(userID) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	req, err := wire.toRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := shape(req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	writeJSON(w, http.StatusOK, s.pipeline.Filter(r.Context(), req, userID))
}

func (s *Server) handleFilterBatch(w http.ResponseWriter, r *http.Request) {
	var wires []filterWire
	if err := decodeBody(w, r, &wires); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(wires) == 0 {
		writeError(w, http.StatusBadRequest, "empty batch")
		return
	}
	if len(wires) > maxBatchItems {
		writeError(w, http.StatusBadRequest, "batch exceeds 10 items")
		return
	}

	responses := make([]*moderation.Response, 0, len(wires))
	for i := range wires {
		userID := clientID(r, wires[i].UserID)
		if !s.limiter.Allow(userID) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		req, err := wires[i].toRequest()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !req.HasContent() {
			writeError(w, http.StatusBadRequest, "text or image is required")
			return
		}
		responses = append(responses, s.pipeline.Filter(r.Context(), req, userID))
	}
	writeJSON(w, http.StatusOK, responses)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if s.summarizer == nil {
		writeError(w, http.StatusServiceUnavailable, "summary service unavailable")
		return
	}
	var date time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}
	stats, err := s.summarizer.Summary(r.Context(), date)
	if err != nil {
		s.logger.Error("summary failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "summary failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	if s.aggregator == nil {
		writeError(w, http.StatusServiceUnavailable, "aggregator unavailable")
		return
	}
	mode := aggregate.ModeNormal
	if r.URL.Query().Get("force") == "true" {
		mode = aggregate.ModeForce
	}
	result, err := s.aggregator.Run(r.Context(), mode)
	telemetry.ObserveAggregation(err != nil)
	if err != nil {
		s.logger.Error("aggregation failed", zap.Error(err), zap.Strings("errors", result.Errors))
		writeJSON(w, http.StatusInternalServerError, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	kvReady := s.health != nil && s.health.Ready()
	body := map[string]interface{}{
		"status": "ok",
		"redis":  kvReady,
	}
	status := http.StatusOK
	if !kvReady {
		// Degraded: the in-process fallback keeps filtering alive, but
		// stats and cache sharing are process-local.
		body["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

// clientID picks the stats/rate-limit identity for a request.
func clientID(r *http.Request, userID string) string {
	if userID != "" {
		return userID
	}
	if hdr := r.Header.Get("X-User-ID"); hdr != "" {
		return hdr
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
