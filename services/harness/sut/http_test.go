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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/nlqbench/services/harness/config"
	"github.com/AleutianAI/nlqbench/services/harness/consistency"
	"github.com/AleutianAI/nlqbench/services/harness/question"
)

func httpEndpoint(url string) config.EndpointConfig {
	return config.EndpointConfig{
		Name:    "svc",
		Kind:    config.KindHTTP,
		BaseURL: url,
		Response: config.ResponseMapping{
			Query:       "result.sql",
			TotalTimeMs: "timing.total_ms",
			SubPhases: map[string]string{
				"parse":    "timing.parse_ms",
				"generate": "timing.generate_ms",
			},
			TokensInput:  "usage.input",
			TokensOutput: "usage.output",
			TokensTotal:  "usage.total",
			ErrorMessage: "error",
		},
	}
}

// TestHTTPTranslateMapsResponse verifies dot-path extraction of query,
// timing, and tokens from a nested JSON response.
func TestHTTPTranslateMapsResponse(t *testing.T) {
	var gotReq translateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"sql": "SELECT COUNT(*) FROM orders"},
			"timing": map[string]any{"total_ms": 312.5, "parse_ms": 40.0, "generate_ms": 270.0},
			"usage":  map[string]any{"input": 120, "output": 18, "total": 138},
		})
	}))
	defer server.Close()

	adapter, err := newHTTPAdapter(httpEndpoint(server.URL))
	require.NoError(t, err)

	got, report, err := adapter.Translate(context.Background(),
		question.Question{ID: "q1", Text: "How many orders?"},
		SchemaContext{Database: "shop", Dialect: "sqlite", Schema: "CREATE TABLE orders (id INTEGER);"})
	require.NoError(t, err)

	assert.Equal(t, "q1", gotReq.QuestionID)
	assert.Equal(t, "sqlite", gotReq.Dialect)
	assert.Equal(t, "SELECT COUNT(*) FROM orders", got.SQL)

	require.NotNil(t, report)
	assert.Equal(t, 312.5, report.TotalTimeMs)
	assert.Equal(t, 40.0, report.SubPhaseMs["parse"])
	require.NotNil(t, report.Tokens)
	assert.Equal(t, 120, report.Tokens.InputTokens)
	assert.Equal(t, 138, report.Tokens.TotalTokens)
	assert.Equal(t, consistency.SourceClient, report.Source)
}

// TestHTTPTranslateNoClaims verifies a bare response yields a nil
// self-report rather than one full of zeros.
func TestHTTPTranslateNoClaims(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"result": map[string]any{"sql": "SELECT 1"},
		})
	}))
	defer server.Close()

	adapter, err := newHTTPAdapter(httpEndpoint(server.URL))
	require.NoError(t, err)

	_, report, err := adapter.Translate(context.Background(),
		question.Question{ID: "q1", Text: "anything"}, SchemaContext{})
	require.NoError(t, err)
	assert.Nil(t, report)
}

// TestHTTPTranslateErrorMessage verifies the mapped error path is
// surfaced when no query comes back.
func TestHTTPTranslateErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "schema too large"})
	}))
	defer server.Close()

	adapter, err := newHTTPAdapter(httpEndpoint(server.URL))
	require.NoError(t, err)

	_, _, err = adapter.Translate(context.Background(),
		question.Question{ID: "q1", Text: "anything"}, SchemaContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema too large")
}

// TestHTTPTranslateServerError verifies non-200 statuses fail with the
// body snippet attached.
func TestHTTPTranslateServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	adapter, err := newHTTPAdapter(httpEndpoint(server.URL))
	require.NoError(t, err)

	_, _, err = adapter.Translate(context.Background(),
		question.Question{ID: "q1", Text: "anything"}, SchemaContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

// TestHTTPAdapterValidation verifies construction rejects incomplete
// configuration.
func TestHTTPAdapterValidation(t *testing.T) {
	_, err := newHTTPAdapter(config.EndpointConfig{Name: "svc", Kind: config.KindHTTP})
	assert.Error(t, err, "missing base_url")

	_, err = newHTTPAdapter(config.EndpointConfig{Name: "svc", Kind: config.KindHTTP, BaseURL: "http://x"})
	assert.Error(t, err, "missing response.query")
}

// TestLookupPath verifies dot-path traversal edge cases.
func TestLookupPath(t *testing.T) {
	fields := map[string]any{
		"a": map[string]any{"b": map[string]any{"c": 1.5}},
		"s": "text",
	}

	v, ok := lookupNumber(fields, "a.b.c")
	require.True(t, ok)
	assert.Equal(t, 1.5, v)

	_, ok = lookupPath(fields, "a.b.missing")
	assert.False(t, ok)

	_, ok = lookupPath(fields, "s.deeper")
	assert.False(t, ok, "scalar in the middle of a path")

	_, ok = lookupPath(fields, "")
	assert.False(t, ok)
}
