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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"modgate/internal/gateway/moderation"
)

const openAICompatDefaultModel = "gpt-4o-mini"

// OpenAICompat talks to any endpoint that speaks the OpenAI
// chat-completions wire format (OpenAI itself, OpenRouter, vLLM, LocalAI).
type OpenAICompat struct {
	name    string
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  *zap.Logger
}

// NewOpenAICompat builds the provider. name distinguishes multiple
// compatible endpoints in configuration ("openai", "openrouter", ...).
func NewOpenAICompat(name, baseURL, apiKey string, logger *zap.Logger) *OpenAICompat {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAICompat{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

func (o *OpenAICompat) Name() string { return o.name }

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (o *OpenAICompat) AnalyzeText(ctx context.Context, text string, history []string, policy moderation.Policy, model string) (Result, error) {
	if model == "" {
		model = openAICompatDefaultModel
	}
	req := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: buildTextPrompt(policy)},
			{Role: "user", Content: buildUserContent(text, history)},
		},
	}
	return o.complete(ctx, req)
}

func (o *OpenAICompat) AnalyzeImage(ctx context.Context, imageB64 string, policy moderation.Policy) (Result, error) {
	dataURL := "data:image/jpeg;base64," + imageB64
	req := chatRequest{
		Model: openAICompatDefaultModel,
		Messages: []chatMessage{
			{Role: "user", Content: []map[string]interface{}{
				{"type": "text", "text": buildImagePrompt(policy)},
				{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
			}},
		},
	}
	return o.complete(ctx, req)
}

func (o *OpenAICompat) complete(ctx context.Context, req chatRequest) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("marshal chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.httpc.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("%s call: %w", o.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("%s read response: %w", o.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%s returned status %d: %s", o.name, resp.StatusCode, truncateForLog(string(raw)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, fmt.Errorf("%s decode response: %w", o.name, err)
	}
	if parsed.Error != nil {
		return Result{}, fmt.Errorf("%s error: %s", o.name, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, fmt.Errorf("%s returned no choices", o.name)
	}
	return parseVerdict(parsed.Choices[0].Message.Content)
}
