// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validConfig = `
run:
  measurement_runs: 7
  database: main
endpoints:
  - name: local-mock
    kind: mock
  - name: prod-api
    kind: http
    base_url: http://sut.internal:9000
    response:
      query: result.sql
      total_time_ms: timing.total_ms
      sub_phases:
        parse: timing.parse_ms
        generate: timing.generate_ms
      tokens_total: usage.total
databases:
  main:
    dialect: sqlite
    path: ":memory:"
    init_file: testdata/init.sql
`

func TestParse_ValidConfig(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Run.MeasurementRuns != 7 {
		t.Errorf("MeasurementRuns = %d, want 7", cfg.Run.MeasurementRuns)
	}
	// Omitted fields keep their defaults.
	if cfg.Run.WarmupRuns != 2 {
		t.Errorf("WarmupRuns = %d, want default 2", cfg.Run.WarmupRuns)
	}
	if cfg.Run.SampleFloor != 3 {
		t.Errorf("SampleFloor = %d, want default 3", cfg.Run.SampleFloor)
	}
	if cfg.Run.QueryTimeoutMs != 30000 {
		t.Errorf("QueryTimeoutMs = %d, want default 30000", cfg.Run.QueryTimeoutMs)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want default :8080", cfg.Server.Addr)
	}

	if len(cfg.Endpoints) != 2 {
		t.Fatalf("Endpoints = %d, want 2", len(cfg.Endpoints))
	}
	httpEp := cfg.Endpoints[1]
	if httpEp.TimeoutMs != 30000 {
		t.Errorf("endpoint TimeoutMs = %d, want default 30000", httpEp.TimeoutMs)
	}
	if httpEp.TimingSource != "client" {
		t.Errorf("http TimingSource = %q, want client", httpEp.TimingSource)
	}
	if httpEp.Response.SubPhases["parse"] != "timing.parse_ms" {
		t.Errorf("SubPhases = %v", httpEp.Response.SubPhases)
	}
}

func TestParse_SingleDatabaseDefaulted(t *testing.T) {
	cfg, err := Parse([]byte(`
endpoints:
  - name: m
    kind: mock
databases:
  only:
    dialect: duckdb
    path: bench.duckdb
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Run.Database != "only" {
		t.Errorf("Run.Database = %q, want defaulted to %q", cfg.Run.Database, "only")
	}
}

func TestParse_OpenAITimingDefaultsToVendor(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	cfg, err := Parse([]byte(`
endpoints:
  - name: oai
    kind: openai
    model: gpt-4o
    api_key_env: OPENAI_API_KEY
databases:
  main: {dialect: sqlite, path: ":memory:"}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Endpoints[0].TimingSource != "vendor" {
		t.Errorf("TimingSource = %q, want vendor", cfg.Endpoints[0].TimingSource)
	}
}

// Telemetry without an endpoint is valid: spans go to the stdout exporter.
func TestParse_TelemetryWithoutEndpoint(t *testing.T) {
	cfg, err := Parse([]byte(`
endpoints:
  - name: m
    kind: mock
databases:
  main: {dialect: sqlite, path: ":memory:"}
telemetry: {enabled: true}
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "" {
		t.Errorf("Telemetry = %+v, want enabled with empty endpoint", cfg.Telemetry)
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("NLQ_HOST", "db.internal")
	t.Setenv("NLQ_EMPTY", "")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"set variable", "url: http://${NLQ_HOST}:9000", "url: http://db.internal:9000"},
		{"set empty variable", "key: [${NLQ_EMPTY}]", "key: []"},
		{"unset with default", "port: ${NLQ_PORT:-5432}", "port: 5432"},
		{"set beats default", "host: ${NLQ_HOST:-fallback}", "host: db.internal"},
		{"unset without default kept", "token: ${NLQ_SECRET}", "token: ${NLQ_SECRET}"},
		{"multiple in one line", "dsn: ${NLQ_HOST}/${NLQ_DB:-bench}", "dsn: db.internal/bench"},
		{"empty default", "opt: ${NLQ_MISSING:-}", "opt: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(expandEnv([]byte(tt.in))); got != tt.want {
				t.Errorf("expandEnv(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nlqbench.yaml")
	if err := os.WriteFile(path, []byte(validConfig), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Run.Database != "main" {
		t.Errorf("Run.Database = %q", cfg.Run.Database)
	}

	if _, err := Load(filepath.Join(dir, "absent.yaml")); !errors.Is(err, ErrMissingConfig) {
		t.Errorf("missing file err = %v, want ErrMissingConfig", err)
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			"no endpoints",
			"databases: {main: {dialect: sqlite, path: x.db}}",
			"Endpoints",
		},
		{
			"unknown kind",
			`
endpoints: [{name: e, kind: grpc}]
databases: {main: {dialect: sqlite, path: x.db}}`,
			"oneof",
		},
		{
			"duplicate endpoint names",
			`
endpoints:
  - {name: twin, kind: mock}
  - {name: twin, kind: mock}
databases: {main: {dialect: sqlite, path: x.db}}`,
			"duplicate endpoint name",
		},
		{
			"endpoint name with separator",
			`
endpoints: [{name: "prod:api", kind: mock}]
databases: {main: {dialect: sqlite, path: x.db}}`,
			"invalid endpoint name",
		},
		{
			"http without response mapping",
			`
endpoints: [{name: h, kind: http, base_url: "http://x:1"}]
databases: {main: {dialect: sqlite, path: x.db}}`,
			"response.query",
		},
		{
			"openai without api key env",
			`
endpoints: [{name: o, kind: openai, model: gpt-4o}]
databases: {main: {dialect: sqlite, path: x.db}}`,
			"api_key_env",
		},
		{
			"ollama without model",
			`
endpoints: [{name: l, kind: ollama, base_url: "http://localhost:11434"}]
databases: {main: {dialect: sqlite, path: x.db}}`,
			"ollama",
		},
		{
			"unknown run database",
			`
run: {database: ghost}
endpoints: [{name: m, kind: mock}]
databases: {main: {dialect: sqlite, path: x.db}}`,
			"run.database",
		},
		{
			"sample floor above runs",
			`
run: {measurement_runs: 3, sample_floor: 5}
endpoints: [{name: m, kind: mock}]
databases: {main: {dialect: sqlite, path: x.db}}`,
			"SampleFloor",
		},
		{
			"unknown dialect",
			`
endpoints: [{name: m, kind: mock}]
databases: {main: {dialect: oracle, path: x.db}}`,
			"oneof",
		},
		{
			"rules for unknown database",
			`
endpoints: [{name: m, kind: mock}]
databases: {main: {dialect: sqlite, path: x.db}}
rules:
  per_database:
    ghost: {row_order_matters: false}`,
			"per_database",
		},
		{
			"influx enabled incomplete",
			`
endpoints: [{name: m, kind: mock}]
databases: {main: {dialect: sqlite, path: x.db}}
report:
  influx: {enabled: true, url: "http://influx:8086"}`,
			"influx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestDatabaseConfig_SchemaText(t *testing.T) {
	inline := DatabaseConfig{Schema: "customers(id, name)"}
	if got, err := inline.SchemaText(); err != nil || got != "customers(id, name)" {
		t.Errorf("inline SchemaText = %q, %v", got, err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "schema.txt")
	if err := os.WriteFile(path, []byte("orders(id, total)"), 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	fromFile := DatabaseConfig{SchemaFile: path}
	if got, err := fromFile.SchemaText(); err != nil || got != "orders(id, total)" {
		t.Errorf("file SchemaText = %q, %v", got, err)
	}

	var empty DatabaseConfig
	if got, err := empty.SchemaText(); err != nil || got != "" {
		t.Errorf("empty SchemaText = %q, %v", got, err)
	}

	missing := DatabaseConfig{SchemaFile: filepath.Join(dir, "absent.txt")}
	if _, err := missing.SchemaText(); err == nil {
		t.Error("missing schema file: expected error")
	}
}
