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
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/nlqbench/services/harness/config"
	"github.com/AleutianAI/nlqbench/services/harness/consistency"
	"github.com/AleutianAI/nlqbench/services/harness/question"
)

// ollamaAdapter benchmarks a local model served by Ollama. The Ollama
// API reports token counts but no timing we can trust across model
// load states, so the adapter clocks the call itself and marks the
// report client-sourced.
type ollamaAdapter struct {
	name    string
	model   string
	llm     *ollama.LLM
	timeout time.Duration
	logger  *slog.Logger
}

func newOllamaAdapter(cfg config.EndpointConfig) (*ollamaAdapter, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("endpoint %s: ollama kind requires model", cfg.Name)
	}

	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("endpoint %s: init ollama client: %w", cfg.Name, err)
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &ollamaAdapter{
		name:    cfg.Name,
		model:   cfg.Model,
		llm:     llm,
		timeout: timeout,
		logger:  slog.Default(),
	}, nil
}

func (a *ollamaAdapter) Name() string { return a.name }

func (a *ollamaAdapter) Translate(ctx context.Context, q question.Question, schema SchemaContext) (GeneratedQuery, *consistency.SelfReport, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "sut.ollama.Translate")
	defer span.End()
	span.SetAttributes(
		attribute.String("endpoint", a.name),
		attribute.String("question.id", q.ID),
		attribute.String("model", a.model),
	)

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	resp, err := a.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, sqlSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, translatePrompt(q, schema)),
	}, llms.WithTemperature(0))
	elapsed := time.Since(start)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return GeneratedQuery{}, nil, fmt.Errorf("endpoint %s: %w", a.name, err)
	}
	if len(resp.Choices) == 0 {
		return GeneratedQuery{}, nil, fmt.Errorf("endpoint %s: %w", a.name, ErrEmptyResponse)
	}

	choice := resp.Choices[0]
	report := &consistency.SelfReport{
		TotalTimeMs: float64(elapsed.Milliseconds()),
		Source:      consistency.SourceClient,
	}
	if usage := tokenUsage(choice.GenerationInfo); usage != nil {
		report.Tokens = usage
	}

	a.logger.Debug("translation received",
		"endpoint", a.name,
		"question", q.ID,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	span.SetStatus(codes.Ok, "")
	return GeneratedQuery{SQL: ExtractSQL(choice.Content), Raw: choice.Content}, report, nil
}

// tokenUsage extracts Ollama's eval counts from the generation info.
// Returns nil when the server reported none.
func tokenUsage(info map[string]any) *consistency.TokenUsage {
	input, okIn := intFromInfo(info, "PromptTokens")
	output, okOut := intFromInfo(info, "CompletionTokens")
	total, okTotal := intFromInfo(info, "TotalTokens")
	if !okIn && !okOut && !okTotal {
		return nil
	}
	if !okTotal {
		total = input + output
	}
	return &consistency.TokenUsage{
		InputTokens:  input,
		OutputTokens: output,
		TotalTokens:  total,
	}
}

func intFromInfo(info map[string]any, key string) (int, bool) {
	v, ok := info[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
