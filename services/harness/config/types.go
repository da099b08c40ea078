// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates the harness configuration file.
//
// Configuration is YAML with ${VAR} and ${VAR:-default} environment
// expansion applied before parsing. Load starts from DefaultConfig and
// overlays the file, so omitted fields keep their defaults while
// explicit zeros are respected.
package config

import (
	"github.com/AleutianAI/nlqbench/services/harness/consistency"
)

// Endpoint kinds accepted by the sut adapter registry.
const (
	KindHTTP   = "http"
	KindOpenAI = "openai"
	KindOllama = "ollama"
	KindMock   = "mock"
)

// Config is the root harness configuration.
type Config struct {
	// Run controls measurement counts and worker limits.
	Run RunConfig `yaml:"run"`

	// Endpoints are the systems under test, benchmarked side by side.
	Endpoints []EndpointConfig `yaml:"endpoints" validate:"required,min=1,dive"`

	// Databases are the execution backends, keyed by name.
	Databases map[string]DatabaseConfig `yaml:"databases" validate:"required,min=1,dive"`

	// Rules layers comparison-rule overlays below per-question overrides.
	Rules RuleLayers `yaml:"rules"`

	// Consistency tunes the self-report validator thresholds.
	Consistency consistency.Config `yaml:"consistency"`

	// Report controls output formats and sinks.
	Report ReportConfig `yaml:"report"`

	// Telemetry configures tracing and metrics export.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Server configures the live dashboard in serve mode.
	Server ServerConfig `yaml:"server"`

	// Baseline configures run persistence for regression comparison.
	Baseline BaselineConfig `yaml:"baseline"`
}

// RunConfig controls how each question is measured.
type RunConfig struct {
	// WarmupRuns are discarded invocations before measurement begins.
	WarmupRuns int `yaml:"warmup_runs" validate:"gte=0"`

	// MeasurementRuns is the number of timed invocations per question.
	MeasurementRuns int `yaml:"measurement_runs" validate:"gte=1"`

	// SampleFloor is the minimum successful samples for valid metrics.
	SampleFloor int `yaml:"sample_floor" validate:"gte=1,ltefield=MeasurementRuns"`

	// MaxWorkers bounds concurrent questions.
	MaxWorkers int `yaml:"max_workers" validate:"gte=1"`

	// QueryTimeoutMs caps a single database execution.
	QueryTimeoutMs int `yaml:"query_timeout_ms" validate:"gte=1"`

	// Database names the Databases entry to run against. Defaults to
	// the only entry when exactly one is configured.
	Database string `yaml:"database"`

	// HistoryWindow is the rolling sample count per complexity and
	// endpoint for the consistency baselines. Zero uses the validator
	// default.
	HistoryWindow int `yaml:"history_window" validate:"gte=0"`
}

// EndpointConfig describes one system under test.
type EndpointConfig struct {
	// Name labels the endpoint in reports and metrics. Unique.
	Name string `yaml:"name" validate:"required"`

	// Kind selects the adapter: http, openai, ollama, or mock.
	Kind string `yaml:"kind" validate:"required,oneof=http openai ollama mock"`

	// BaseURL is the service address for http and ollama kinds, and
	// overrides the default API host for openai.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`

	// Model names the model for openai and ollama kinds.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	// The key itself is resolved into a secrets enclave at startup and
	// never lives in this struct.
	APIKeyEnv string `yaml:"api_key_env"`

	// TimeoutMs caps one translation request.
	TimeoutMs int `yaml:"timeout_ms" validate:"gte=0"`

	// RateRPS throttles requests per second. Zero means unlimited.
	RateRPS float64 `yaml:"rate_rps" validate:"gte=0"`

	// TimingSource declares whose clock the self-report used: client
	// or vendor. Defaults to vendor for openai, client otherwise.
	TimingSource string `yaml:"timing_source" validate:"omitempty,oneof=client vendor"`

	// Response maps fields out of http-kind JSON responses.
	Response ResponseMapping `yaml:"response"`

	// Mock tunes the mock adapter's fault injection.
	Mock MockConfig `yaml:"mock"`
}

// ResponseMapping holds dot-paths into an http endpoint's JSON
// response body, e.g. "result.sql" or "timing.total_ms".
type ResponseMapping struct {
	// Query locates the generated SQL. Required for http kind.
	Query string `yaml:"query"`

	// TotalTimeMs locates the self-reported total latency.
	TotalTimeMs string `yaml:"total_time_ms"`

	// SubPhases maps phase name to the path of its reported duration.
	SubPhases map[string]string `yaml:"sub_phases"`

	// TokensInput, TokensOutput, and TokensTotal locate the reported
	// token counts.
	TokensInput  string `yaml:"tokens_input"`
	TokensOutput string `yaml:"tokens_output"`
	TokensTotal  string `yaml:"tokens_total"`

	// ErrorMessage locates a failure explanation, checked when the
	// query path yields nothing.
	ErrorMessage string `yaml:"error_message"`
}

// MockConfig tunes the deterministic mock adapter.
type MockConfig struct {
	// EchoGolden replays the question's reference SQL instead of
	// synthesizing a query, for end-to-end runs that should match.
	EchoGolden bool `yaml:"echo_golden"`

	// FailRate is the fraction of translations that fail.
	FailRate float64 `yaml:"fail_rate" validate:"gte=0,lte=1"`

	// InflateTiming multiplies reported sub-phase durations, which
	// makes the consistency validator flag the endpoint.
	InflateTiming float64 `yaml:"inflate_timing" validate:"gte=0"`

	// Seed fixes the fault sequence for reproducible runs.
	Seed int64 `yaml:"seed"`
}

// DatabaseConfig describes one execution backend.
type DatabaseConfig struct {
	// Dialect selects the driver: sqlite or duckdb.
	Dialect string `yaml:"dialect" validate:"required,oneof=sqlite duckdb"`

	// Path is the database file, or ":memory:" for a fresh in-memory
	// database per run.
	Path string `yaml:"path" validate:"required"`

	// InitFile is an optional SQL script executed on open, for schema
	// and fixtures when Path is in-memory.
	InitFile string `yaml:"init_file"`

	// Schema is the schema description sent to endpoints alongside
	// each question. SchemaFile loads it from disk instead.
	Schema     string `yaml:"schema"`
	SchemaFile string `yaml:"schema_file"`
}

// ReportConfig controls run outputs.
type ReportConfig struct {
	// Dir receives report files, one subdirectory per run.
	Dir string `yaml:"dir"`

	// Formats selects outputs: json, markdown, html.
	Formats []string `yaml:"formats" validate:"dive,oneof=json markdown html"`

	// Influx streams per-question measurements to InfluxDB.
	Influx InfluxConfig `yaml:"influx"`

	// GCS uploads the report directory after the run.
	GCS GCSConfig `yaml:"gcs"`
}

// InfluxConfig configures the optional line-protocol sink.
type InfluxConfig struct {
	Enabled bool `yaml:"enabled"`

	URL string `yaml:"url" validate:"omitempty,url"`

	// TokenEnv names the environment variable holding the API token.
	TokenEnv string `yaml:"token_env"`

	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// GCSConfig configures the optional report upload.
type GCSConfig struct {
	Enabled bool `yaml:"enabled"`

	Bucket string `yaml:"bucket"`

	// Prefix prepends object names, e.g. "nightly/".
	Prefix string `yaml:"prefix"`

	// CredentialsFile is a service account JSON path. Empty uses
	// application default credentials.
	CredentialsFile string `yaml:"credentials_file"`
}

// TelemetryConfig configures OTLP tracing and Prometheus metrics.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address, host:port.
	Endpoint string `yaml:"endpoint" validate:"omitempty,hostname_port"`

	ServiceName string `yaml:"service_name"`

	// SampleRatio is the trace sampling fraction.
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`

	// Prometheus exposes a /metrics endpoint on the server.
	Prometheus bool `yaml:"prometheus"`
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`

	// ShutdownGraceMs bounds the drain on SIGINT.
	ShutdownGraceMs int `yaml:"shutdown_grace_ms" validate:"gte=0"`
}

// BaselineConfig configures run persistence.
type BaselineConfig struct {
	// Dir is the store directory. Empty runs the store in memory.
	Dir string `yaml:"dir"`
}

// DefaultConfig returns the configuration a file overlays.
func DefaultConfig() Config {
	return Config{
		Run: RunConfig{
			WarmupRuns:      2,
			MeasurementRuns: 5,
			SampleFloor:     3,
			MaxWorkers:      1,
			QueryTimeoutMs:  30000,
			HistoryWindow:   consistency.DefaultWindow,
		},
		Consistency: *consistency.DefaultConfig(),
		Report: ReportConfig{
			Dir:     "reports",
			Formats: []string{"json", "markdown"},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "nlqbench",
			SampleRatio: 1.0,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownGraceMs: 5000,
		},
	}
}
