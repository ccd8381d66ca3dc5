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

// Package config assembles the gateway's runtime configuration from the
// environment. Flags in main may override individual fields; the precedence
// is flag > environment > default.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the full runtime configuration of the gateway.
type Config struct {
	ListenAddr  string
	MetricsAddr string

	RedisURI    string
	PostgresDSN string // empty disables the durable store

	AnthropicAPIKey  string
	AnthropicBaseURL string
	OpenAIAPIKey     string
	OpenAIBaseURL    string

	TierFastModel   string
	TierNormalModel string
	TierProModel    string

	CacheMinTTL time.Duration
	CacheTTL    time.Duration
	CacheMaxTTL time.Duration

	MaxImageBytes int
	RatePerMinute int // per-client request budget; 0 disables limiting

	ProviderTimeout time.Duration
}

// FromEnv builds a Config from the environment, applying defaults for
// anything unset.
func FromEnv() Config {
	return Config{
		ListenAddr:  envStr("MODGATE_LISTEN_ADDR", ":8080"),
		MetricsAddr: envStr("MODGATE_METRICS_ADDR", ""),

		RedisURI:    envStr("MODGATE_REDIS_URI", "redis://localhost:6379"),
		PostgresDSN: envStr("MODGATE_POSTGRES_DSN", ""),

		AnthropicAPIKey:  envStr("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL: envStr("ANTHROPIC_BASE_URL", ""),
		OpenAIAPIKey:     envStr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    envStr("OPENAI_BASE_URL", "https://api.openai.com/v1"),

		TierFastModel:   envStr("MODGATE_TIER_FAST_MODEL", ""),
		TierNormalModel: envStr("MODGATE_TIER_NORMAL_MODEL", ""),
		TierProModel:    envStr("MODGATE_TIER_PRO_MODEL", ""),

		CacheMinTTL: envDuration("MODGATE_CACHE_MIN_TTL", time.Hour),
		CacheTTL:    envDuration("MODGATE_CACHE_TTL", 24*time.Hour),
		CacheMaxTTL: envDuration("MODGATE_CACHE_MAX_TTL", 7*24*time.Hour),

		MaxImageBytes: envInt("MODGATE_MAX_IMAGE_BYTES", 4*1024*1024),
		RatePerMinute: envInt("MODGATE_RATE_PER_MINUTE", 300),

		ProviderTimeout: envDuration("MODGATE_PROVIDER_TIMEOUT", 10*time.Second),
	}
}

// HasProvider reports whether at least one AI provider is configured.
func (c Config) HasProvider() bool {
	return c.AnthropicAPIKey != "" || c.OpenAIAPIKey != ""
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
