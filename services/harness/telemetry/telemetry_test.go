// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/AleutianAI/nlqbench/services/harness/config"
)

func createTestConfig() config.TelemetryConfig {
	return config.TelemetryConfig{
		ServiceName: "nlqbench-test",
		SampleRatio: 1.0,
	}
}

func TestInit_NilContext(t *testing.T) {
	_, err := Init(nil, createTestConfig(), "test")
	if err != ErrNilContext {
		t.Errorf("Init(nil) error = %v, want %v", err, ErrNilContext)
	}
}

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), createTestConfig(), "test")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown function is nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInit_StdoutTracing(t *testing.T) {
	cfg := createTestConfig()
	cfg.Enabled = true

	shutdown, err := Init(context.Background(), cfg, "test")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}

func TestInit_PrometheusHandler(t *testing.T) {
	cfg := createTestConfig()
	cfg.Prometheus = true

	shutdown, err := Init(context.Background(), cfg, "test")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown(context.Background())

	handler := MetricsHandler()
	if handler == nil {
		t.Fatal("MetricsHandler() = nil with prometheus enabled")
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Errorf("GET /metrics = %d, want 200", rec.Code)
	}
}
