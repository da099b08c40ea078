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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/nlqbench/services/harness/config"
	"github.com/AleutianAI/nlqbench/services/harness/consistency"
	"github.com/AleutianAI/nlqbench/services/harness/question"
)

// httpAdapter talks to a bespoke NL-to-SQL service over JSON. Field
// locations in the response are configuration, not convention, so one
// adapter covers any service that can speak JSON at all.
type httpAdapter struct {
	name    string
	baseURL string
	mapping config.ResponseMapping
	source  consistency.TimingSource
	client  *http.Client
	logger  *slog.Logger
}

// translateRequest is the wire shape POSTed to the endpoint.
type translateRequest struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	Database   string `json:"database"`
	Dialect    string `json:"dialect"`
	Schema     string `json:"schema"`
}

func newHTTPAdapter(cfg config.EndpointConfig) (*httpAdapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("endpoint %s: http kind requires base_url", cfg.Name)
	}
	if cfg.Response.Query == "" {
		return nil, fmt.Errorf("endpoint %s: http kind requires response.query path", cfg.Name)
	}

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &httpAdapter{
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		mapping: cfg.Response,
		source:  consistency.ParseTimingSource(cfg.TimingSource),
		client:  &http.Client{Timeout: timeout},
		logger:  slog.Default(),
	}, nil
}

func (a *httpAdapter) Name() string { return a.name }

// Translate POSTs the question and maps the response through the
// configured dot-paths.
func (a *httpAdapter) Translate(ctx context.Context, q question.Question, schema SchemaContext) (GeneratedQuery, *consistency.SelfReport, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "sut.http.Translate")
	defer span.End()
	span.SetAttributes(
		attribute.String("endpoint", a.name),
		attribute.String("question.id", q.ID),
	)

	body, err := json.Marshal(translateRequest{
		QuestionID: q.ID,
		Question:   q.Text,
		Database:   schema.Database,
		Dialect:    schema.Dialect,
		Schema:     schema.Schema,
	})
	if err != nil {
		return GeneratedQuery{}, nil, fmt.Errorf("marshal translate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return GeneratedQuery{}, nil, fmt.Errorf("build translate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return GeneratedQuery{}, nil, fmt.Errorf("endpoint %s: %w", a.name, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return GeneratedQuery{}, nil, fmt.Errorf("endpoint %s: read response: %w", a.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, resp.Status)
		return GeneratedQuery{}, nil, fmt.Errorf("endpoint %s: status %d: %s", a.name, resp.StatusCode, snippet(payload))
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return GeneratedQuery{}, nil, fmt.Errorf("endpoint %s: decode response: %w", a.name, err)
	}

	sql, ok := lookupString(fields, a.mapping.Query)
	if !ok || strings.TrimSpace(sql) == "" {
		if msg, found := lookupString(fields, a.mapping.ErrorMessage); found && msg != "" {
			return GeneratedQuery{}, nil, fmt.Errorf("endpoint %s reported failure: %s", a.name, msg)
		}
		return GeneratedQuery{}, nil, fmt.Errorf("endpoint %s: %w", a.name, ErrEmptyResponse)
	}

	report := a.selfReport(fields)
	a.logger.Debug("translation received",
		"endpoint", a.name,
		"question", q.ID,
		"self_reported", report != nil,
	)
	span.SetStatus(codes.Ok, "")
	return GeneratedQuery{SQL: ExtractSQL(sql), Raw: string(payload)}, report, nil
}

// selfReport assembles whatever claims the mapped response carries.
// Returns nil when the endpoint claims nothing.
func (a *httpAdapter) selfReport(fields map[string]any) *consistency.SelfReport {
	report := &consistency.SelfReport{Source: a.source}
	claimed := false

	if total, ok := lookupNumber(fields, a.mapping.TotalTimeMs); ok {
		report.TotalTimeMs = total
		claimed = true
	}
	for phase, path := range a.mapping.SubPhases {
		v, ok := lookupNumber(fields, path)
		if !ok {
			continue
		}
		if report.SubPhaseMs == nil {
			report.SubPhaseMs = make(map[string]float64, len(a.mapping.SubPhases))
		}
		report.SubPhaseMs[phase] = v
		claimed = true
	}

	input, okIn := lookupNumber(fields, a.mapping.TokensInput)
	output, okOut := lookupNumber(fields, a.mapping.TokensOutput)
	total, okTotal := lookupNumber(fields, a.mapping.TokensTotal)
	if okIn || okOut || okTotal {
		report.Tokens = &consistency.TokenUsage{
			InputTokens:  int(input),
			OutputTokens: int(output),
			TotalTokens:  int(total),
		}
		claimed = true
	}

	if !claimed {
		return nil
	}
	return report
}

// lookupPath walks a dot-path through nested JSON objects.
func lookupPath(fields map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = fields
	for _, part := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func lookupString(fields map[string]any, path string) (string, bool) {
	v, ok := lookupPath(fields, path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func lookupNumber(fields map[string]any, path string) (float64, bool) {
	v, ok := lookupPath(fields, path)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// snippet truncates a payload for error messages.
func snippet(payload []byte) string {
	const max = 200
	s := strings.TrimSpace(string(payload))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
