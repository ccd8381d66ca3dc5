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
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"modgate/internal/gateway/moderation"
)

const (
	anthropicDefaultModel = "claude-3-5-haiku-latest"
	anthropicVisionModel  = "claude-3-5-sonnet-latest"
	anthropicMaxTokens    = 512
)

// Anthropic analyses content through the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
	logger *zap.Logger
}

// NewAnthropic builds the provider. baseURL may be empty for the public
// endpoint. The caller is responsible for only constructing this provider
// when an API key is configured.
func NewAnthropic(apiKey, baseURL string, logger *zap.Logger) *Anthropic {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Anthropic{
		client: anthropic.NewClient(opts...),
		logger: logger,
	}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) AnalyzeText(ctx context.Context, text string, history []string, policy moderation.Policy, model string) (Result, error) {
	if model == "" {
		model = anthropicDefaultModel
	}
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: buildTextPrompt(policy)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildUserContent(text, history))),
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("anthropic text call: %w", err)
	}
	return parseVerdict(collectText(msg))
}

func (a *Anthropic) AnalyzeImage(ctx context.Context, imageB64 string, policy moderation.Policy) (Result, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(anthropicVisionModel),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlock(anthropic.Base64ImageSourceParam{
					Type:      "base64",
					MediaType: sniffMediaType(imageB64),
					Data:      imageB64,
				}),
				anthropic.NewTextBlock(buildImagePrompt(policy)),
			),
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("anthropic image call: %w", err)
	}
	return parseVerdict(collectText(msg))
}

// collectText concatenates the text blocks of a completion.
func collectText(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// sniffMediaType guesses the image media type from the base64 prefix.
// The encodings of the common magic numbers are distinctive enough that the
// raw payload never needs decoding.
func sniffMediaType(imageB64 string) anthropic.Base64ImageSourceMediaType {
	switch {
	case strings.HasPrefix(imageB64, "iVBOR"):
		return anthropic.Base64ImageSourceMediaTypeImagePNG
	case strings.HasPrefix(imageB64, "R0lGOD"):
		return anthropic.Base64ImageSourceMediaTypeImageGIF
	case strings.HasPrefix(imageB64, "UklGR"):
		return anthropic.Base64ImageSourceMediaTypeImageWebP
	default:
		return anthropic.Base64ImageSourceMediaTypeImageJPEG
	}
}
