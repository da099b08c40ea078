// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/nlqbench/services/harness/config"
	"github.com/AleutianAI/nlqbench/services/harness/consistency"
	"github.com/AleutianAI/nlqbench/services/harness/cost"
	"github.com/AleutianAI/nlqbench/services/harness/question"
	"github.com/AleutianAI/nlqbench/services/harness/result"
	"github.com/AleutianAI/nlqbench/services/harness/sut"
)

const testInitSQL = `
CREATE TABLE orders (
    id       INTEGER PRIMARY KEY,
    customer TEXT NOT NULL,
    total    REAL NOT NULL
);
INSERT INTO orders VALUES (1, 'acme', 120.5);
INSERT INTO orders VALUES (2, 'globex', 42.0);
INSERT INTO orders VALUES (3, 'acme', 9.99);
`

const testBankYAML = `
questions:
  - id: q-count
    text: How many orders were placed?
    complexity: L1
    tier: high
    golden_sql:
      sqlite: SELECT COUNT(*) FROM orders
  - id: q-count-degraded
    text: how many order was place??
    complexity: L1
    tier: low
    base_id: q-count
    golden_sql:
      sqlite: SELECT COUNT(*) FROM orders
  - id: q-top-customer
    text: Which customer has the highest total?
    complexity: L2
    tier: high
    golden_sql:
      sqlite: SELECT customer FROM orders ORDER BY total DESC LIMIT 1
`

// createTestConfig builds a mock-endpoint configuration backed by an
// in-memory sqlite database.
func createTestConfig(t *testing.T, mock config.MockConfig) config.Config {
	t.Helper()

	dir := t.TempDir()
	initFile := filepath.Join(dir, "init.sql")
	if err := os.WriteFile(initFile, []byte(testInitSQL), 0o644); err != nil {
		t.Fatalf("write init script: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Run.WarmupRuns = 1
	cfg.Run.MeasurementRuns = 3
	cfg.Run.SampleFloor = 2
	cfg.Run.MaxWorkers = 2
	cfg.Endpoints = []config.EndpointConfig{
		{Name: "mock-sut", Kind: config.KindMock, Mock: mock},
	}
	cfg.Databases = map[string]config.DatabaseConfig{
		"shop": {Dialect: "sqlite", Path: ":memory:", InitFile: initFile},
	}
	return cfg
}

// createTestBank loads the shared three-question bank.
func createTestBank(t *testing.T) *question.Bank {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bank.yaml")
	if err := os.WriteFile(path, []byte(testBankYAML), 0o644); err != nil {
		t.Fatalf("write bank: %v", err)
	}
	bank, err := question.Load(path)
	if err != nil {
		t.Fatalf("load bank: %v", err)
	}
	return bank
}

// createTestRunner assembles adapters and a runner for a config.
func createTestRunner(t *testing.T, cfg config.Config, opts ...Option) *Runner {
	t.Helper()

	adapters := make([]sut.Adapter, len(cfg.Endpoints))
	for i, ep := range cfg.Endpoints {
		a, err := sut.New(ep, nil)
		if err != nil {
			t.Fatalf("build adapter %s: %v", ep.Name, err)
		}
		adapters[i] = a
	}
	r, err := New(cfg, adapters, opts...)
	if err != nil {
		t.Fatalf("build runner: %v", err)
	}
	return r
}

func TestRun_EchoGoldenAllMatch(t *testing.T) {
	cfg := createTestConfig(t, config.MockConfig{EchoGolden: true})
	r := createTestRunner(t, cfg)

	report, err := r.Run(context.Background(), createTestBank(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.RunID == "" {
		t.Error("RunID is empty")
	}
	if report.Database != "shop" || report.Dialect != "sqlite" {
		t.Errorf("database/dialect = %s/%s, want shop/sqlite", report.Database, report.Dialect)
	}
	if len(report.Endpoints) != 1 {
		t.Fatalf("endpoints = %d, want 1", len(report.Endpoints))
	}

	ep := report.Endpoints[0]
	if ep.Endpoint != "mock-sut" {
		t.Errorf("endpoint = %q, want mock-sut", ep.Endpoint)
	}
	if len(ep.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(ep.Results))
	}
	for _, res := range ep.Results {
		if res.Failed() {
			t.Errorf("question %s failed: %s", res.QuestionID, res.Error)
		}
		if !res.Verdict.Match {
			t.Errorf("question %s mismatched: %s", res.QuestionID, res.Verdict.Reason)
		}
		if res.Metrics == nil {
			t.Errorf("question %s has no metrics", res.QuestionID)
		} else if res.Metrics.SampleCount != 3 {
			t.Errorf("question %s sample count = %d, want 3", res.QuestionID, res.Metrics.SampleCount)
		}
		if res.Screen == nil || !res.Screen.Valid {
			t.Errorf("question %s screen should be valid", res.QuestionID)
		}
		if len(res.Findings) == 0 {
			t.Errorf("question %s has no consistency findings", res.QuestionID)
		}
	}

	if ep.Summary.Accuracy != 1.0 {
		t.Errorf("accuracy = %v, want 1.0", ep.Summary.Accuracy)
	}
	if ep.Summary.Latency == nil {
		t.Error("summary latency missing")
	}
	if !ep.Summary.Robustness.Available {
		t.Error("robustness should be available with high and low tiers")
	}
	if report.AnyFailures() {
		t.Error("AnyFailures should be false for a clean run")
	}
}

func TestRun_KeywordSynthesisMismatchesRecorded(t *testing.T) {
	cfg := createTestConfig(t, config.MockConfig{})
	r := createTestRunner(t, cfg)

	report, err := r.Run(context.Background(), createTestBank(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	ep := report.Endpoints[0]
	if ep.Summary.Failed != 0 {
		t.Errorf("failed = %d, want 0 (mismatches are not failures)", ep.Summary.Failed)
	}

	// The synthesized query for the top-customer question cannot match
	// its golden; the count questions happen to synthesize correctly.
	res, ok := findResult(ep.Results, "q-top-customer")
	if !ok {
		t.Fatal("q-top-customer missing from results")
	}
	if res.Verdict.Match {
		t.Error("q-top-customer should mismatch under keyword synthesis")
	}
	if res.Verdict.Reason == "" {
		t.Error("mismatch must carry a reason")
	}
	if !report.AnyFailures() {
		t.Error("AnyFailures should be true when a verdict mismatched")
	}
}

func TestRun_InjectedFaultsRecordedNotFatal(t *testing.T) {
	cfg := createTestConfig(t, config.MockConfig{FailRate: 1})
	r := createTestRunner(t, cfg)

	report, err := r.Run(context.Background(), createTestBank(t))
	if err != nil {
		t.Fatalf("Run must not abort on question failures: %v", err)
	}

	ep := report.Endpoints[0]
	if ep.Summary.Failed != 3 {
		t.Errorf("failed = %d, want 3", ep.Summary.Failed)
	}
	for _, res := range ep.Results {
		if !res.Failed() {
			t.Errorf("question %s should have failed", res.QuestionID)
		}
		if !strings.Contains(res.Error, "sampling") {
			t.Errorf("question %s error = %q, want a sampling failure", res.QuestionID, res.Error)
		}
	}
	if ep.Summary.Accuracy != 0 {
		t.Errorf("accuracy = %v, want 0 when nothing graded", ep.Summary.Accuracy)
	}
}

func TestRun_EmptyBankRejected(t *testing.T) {
	cfg := createTestConfig(t, config.MockConfig{})
	r := createTestRunner(t, cfg)

	if _, err := r.Run(context.Background(), nil); err == nil {
		t.Error("nil bank should fail")
	}
}

func TestRun_AmbiguousDatabaseRejected(t *testing.T) {
	cfg := createTestConfig(t, config.MockConfig{})
	cfg.Databases["second"] = cfg.Databases["shop"]
	r := createTestRunner(t, cfg)

	_, err := r.Run(context.Background(), createTestBank(t))
	if err == nil {
		t.Fatal("two databases without run.database should fail")
	}
	if !strings.Contains(err.Error(), "run.database") {
		t.Errorf("error = %v, want database ambiguity", err)
	}
}

func TestRun_NamedDatabaseSelected(t *testing.T) {
	cfg := createTestConfig(t, config.MockConfig{EchoGolden: true})
	cfg.Databases["second"] = cfg.Databases["shop"]
	cfg.Run.Database = "shop"
	r := createTestRunner(t, cfg)

	report, err := r.Run(context.Background(), createTestBank(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Database != "shop" {
		t.Errorf("database = %q, want shop", report.Database)
	}
}

func TestRun_EventsDelivered(t *testing.T) {
	events := make(chan Event, 64)
	cfg := createTestConfig(t, config.MockConfig{EchoGolden: true})
	r := createTestRunner(t, cfg, WithEvents(events))

	if _, err := r.Run(context.Background(), createTestBank(t)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(events)

	counts := make(map[EventType]int)
	var last Event
	for ev := range events {
		counts[ev.Type]++
		last = ev
	}
	if counts[EventRunStarted] != 1 || counts[EventRunFinished] != 1 {
		t.Errorf("run events = %d/%d, want 1/1", counts[EventRunStarted], counts[EventRunFinished])
	}
	if counts[EventQuestionFinished] != 3 {
		t.Errorf("question finished events = %d, want 3", counts[EventQuestionFinished])
	}
	if last.Type != EventRunFinished {
		t.Errorf("last event = %s, want run_finished", last.Type)
	}
	if last.Completed != last.Total {
		t.Errorf("final progress %d/%d should be complete", last.Completed, last.Total)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	cfg := createTestConfig(t, config.MockConfig{})
	r := createTestRunner(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Run(ctx, createTestBank(t)); err == nil {
		t.Error("cancelled context should abort the run")
	}
}

func TestRun_RateLimitedEndpoint(t *testing.T) {
	cfg := createTestConfig(t, config.MockConfig{EchoGolden: true})
	cfg.Endpoints[0].RateRPS = 1000
	r := createTestRunner(t, cfg)

	report, err := r.Run(context.Background(), createTestBank(t))
	if err != nil {
		t.Fatalf("Run with rate limit: %v", err)
	}
	if report.Endpoints[0].Summary.Matched != 3 {
		t.Errorf("matched = %d, want 3", report.Endpoints[0].Summary.Matched)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Run("no endpoints", func(t *testing.T) {
		if _, err := New(config.Config{}, nil); err == nil {
			t.Error("empty endpoint list should fail")
		}
	})

	t.Run("adapter count mismatch", func(t *testing.T) {
		cfg := config.Config{Endpoints: []config.EndpointConfig{{Name: "a", Kind: config.KindMock}}}
		if _, err := New(cfg, nil); err == nil {
			t.Error("mismatched adapter count should fail")
		}
	})
}

func TestSummarize(t *testing.T) {
	results := []QuestionResult{
		{QuestionID: "a", Tier: result.TierHigh, Verdict: result.Verdict{Match: true}},
		{QuestionID: "b", Tier: result.TierHigh, Verdict: result.Verdict{Match: false, Reason: "row count"}},
		{QuestionID: "c", Tier: result.TierLow, Verdict: result.Verdict{Match: true},
			Findings: []consistency.Finding{
				{Check: consistency.CheckSubPhaseSum, Severity: consistency.SeverityMedium, Passed: false},
				{Check: consistency.CheckTokenArithmetic, Severity: consistency.SeverityLow, Passed: true},
			}},
		{QuestionID: "d", Error: "endpoint unreachable"},
	}

	s := summarize(results, cost.Summary{})
	if s.Questions != 4 {
		t.Errorf("Questions = %d, want 4", s.Questions)
	}
	if s.Failed != 1 {
		t.Errorf("Failed = %d, want 1", s.Failed)
	}
	if s.Matched != 2 {
		t.Errorf("Matched = %d, want 2", s.Matched)
	}
	// Two of three graded questions matched.
	if diff := s.Accuracy - 2.0/3.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Accuracy = %v, want 2/3", s.Accuracy)
	}
	if s.FindingsBySeverity["medium"] != 1 {
		t.Errorf("medium findings = %d, want 1", s.FindingsBySeverity["medium"])
	}
	if s.FindingsBySeverity["low"] != 0 {
		t.Error("passed findings must not be counted")
	}
}

func findResult(results []QuestionResult, id string) (QuestionResult, bool) {
	for _, res := range results {
		if res.QuestionID == id {
			return res, true
		}
	}
	return QuestionResult{}, false
}
