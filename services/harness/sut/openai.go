// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sut

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/nlqbench/services/harness/config"
	"github.com/AleutianAI/nlqbench/services/harness/consistency"
	"github.com/AleutianAI/nlqbench/services/harness/question"
	"github.com/AleutianAI/nlqbench/services/harness/secrets"
)

const sqlSystemPrompt = "You translate natural-language questions into SQL. " +
	"Answer with a single SQL statement for the given dialect and schema. " +
	"No explanation, no markdown, only SQL."

// openaiAdapter benchmarks an OpenAI chat model as the system under
// test. Token usage comes from the API's own accounting; processing
// time comes from the openai-processing-ms response header, which is
// the vendor's claim rather than our measurement.
type openaiAdapter struct {
	name    string
	model   string
	baseURL string
	timeout time.Duration
	store   *secrets.Store
	logger  *slog.Logger
}

func newOpenAIAdapter(cfg config.EndpointConfig, store *secrets.Store) (*openaiAdapter, error) {
	if store == nil || !store.Has(cfg.Name) {
		return nil, fmt.Errorf("endpoint %s: %w (set %s)", cfg.Name, ErrMissingCredentials, cfg.APIKeyEnv)
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
		slog.Warn("endpoint model not set, defaulting", "endpoint", cfg.Name, "model", model)
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &openaiAdapter{
		name:    cfg.Name,
		model:   model,
		baseURL: cfg.BaseURL,
		timeout: timeout,
		store:   store,
		logger:  slog.Default(),
	}, nil
}

func (a *openaiAdapter) Name() string { return a.name }

// Translate asks the model for SQL. The API key is opened from its
// enclave for the duration of one request and re-sealed after.
func (a *openaiAdapter) Translate(ctx context.Context, q question.Question, schema SchemaContext) (GeneratedQuery, *consistency.SelfReport, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "sut.openai.Translate")
	defer span.End()
	span.SetAttributes(
		attribute.String("endpoint", a.name),
		attribute.String("question.id", q.ID),
		attribute.String("model", a.model),
	)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var resp openai.ChatCompletionResponse
	err := a.store.Use(a.name, func(key string) error {
		clientCfg := openai.DefaultConfig(key)
		if a.baseURL != "" {
			clientCfg.BaseURL = a.baseURL
		}
		client := openai.NewClientWithConfig(clientCfg)

		var callErr error
		resp, callErr = client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       a.model,
			Temperature: 0,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: sqlSystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: translatePrompt(q, schema)},
			},
		})
		return callErr
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return GeneratedQuery{}, nil, fmt.Errorf("endpoint %s: %w", a.name, err)
	}
	if len(resp.Choices) == 0 {
		return GeneratedQuery{}, nil, fmt.Errorf("endpoint %s: %w", a.name, ErrEmptyResponse)
	}

	raw := resp.Choices[0].Message.Content
	report := &consistency.SelfReport{
		Source: consistency.SourceVendor,
		Tokens: &consistency.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	if ms, ok := processingMs(resp); ok {
		report.TotalTimeMs = ms
	}

	a.logger.Debug("translation received",
		"endpoint", a.name,
		"question", q.ID,
		"tokens", resp.Usage.TotalTokens,
	)
	span.SetStatus(codes.Ok, "")
	return GeneratedQuery{SQL: ExtractSQL(raw), Raw: raw}, report, nil
}

// processingMs reads the vendor's own latency claim off the response.
func processingMs(resp openai.ChatCompletionResponse) (float64, bool) {
	header := resp.Header().Get("openai-processing-ms")
	if header == "" {
		return 0, false
	}
	ms, err := strconv.ParseFloat(header, 64)
	if err != nil || ms < 0 {
		return 0, false
	}
	return ms, true
}

// translatePrompt renders the user turn for LLM-backed adapters.
func translatePrompt(q question.Question, schema SchemaContext) string {
	return fmt.Sprintf("Dialect: %s\nDatabase: %s\n\nSchema:\n%s\n\nQuestion: %s",
		schema.Dialect, schema.Database, schema.Schema, q.Text)
}
