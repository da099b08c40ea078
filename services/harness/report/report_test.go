// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/nlqbench/services/harness/baseline"
	"github.com/AleutianAI/nlqbench/services/harness/config"
	"github.com/AleutianAI/nlqbench/services/harness/consistency"
	"github.com/AleutianAI/nlqbench/services/harness/cost"
	"github.com/AleutianAI/nlqbench/services/harness/perf"
	"github.com/AleutianAI/nlqbench/services/harness/result"
	"github.com/AleutianAI/nlqbench/services/harness/robustness"
	"github.com/AleutianAI/nlqbench/services/harness/runner"
)

func createTestReport() *runner.RunReport {
	started := time.Date(2025, 11, 4, 10, 0, 0, 0, time.UTC)
	return &runner.RunReport{
		RunID:           "run-2025-11-04",
		StartedAt:       started,
		FinishedAt:      started.Add(75 * time.Second),
		Database:        "shop",
		Dialect:         "sqlite",
		WarmupRuns:      1,
		MeasurementRuns: 5,
		Endpoints: []runner.EndpointReport{
			{
				Endpoint: "mock-sut",
				Kind:     "mock",
				Results: []runner.QuestionResult{
					{
						QuestionID:   "q-count",
						Endpoint:     "mock-sut",
						Tier:         result.TierHigh,
						GeneratedSQL: "SELECT COUNT(*) FROM orders",
						Verdict:      result.Verdict{Match: true},
						Metrics:      &perf.Metrics{MeanMs: 40, P50Ms: 39, P95Ms: 52, SampleCount: 5},
						Cost:         cost.Sample{Model: "mock", TotalCost: 0.001, TotalTokens: 80},
					},
					{
						QuestionID: "q-top",
						Endpoint:   "mock-sut",
						Tier:       result.TierLow,
						Verdict:    result.Verdict{Match: false, Reason: "row 0 differs"},
						Findings: []consistency.Finding{
							{Check: consistency.CheckAnomalousSpeed, Severity: consistency.SeverityHigh, Passed: false,
								Reason: "mean 2.0ms is 14.0x faster than the rolling baseline"},
						},
					},
					{
						QuestionID: "q-broken",
						Endpoint:   "mock-sut",
						Tier:       result.TierHigh,
						Error:      "sampling: injected fault",
					},
				},
				Summary: runner.EndpointSummary{
					Questions: 3,
					Matched:   1,
					Failed:    1,
					Accuracy:  0.5,
					Latency:   &perf.Metrics{MeanMs: 41, MedianMs: 40, P50Ms: 40, P95Ms: 55, P99Ms: 60, MinMs: 35, MaxMs: 61, SampleCount: 10},
					Cost:      cost.Summary{TotalQueries: 2, TotalCost: 0.002, TotalTokens: 160},
					Robustness: robustness.Score{
						Value: 0.5, Available: true,
						Tiers: []robustness.TierAccuracy{
							{Tier: result.TierHigh, Matches: 1, Total: 1, Accuracy: 1},
							{Tier: result.TierLow, Matches: 0, Total: 1, Accuracy: 0},
						},
					},
					FindingsBySeverity: map[string]int{"high": 1},
				},
			},
		},
	}
}

func TestWriteAllFormats(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(config.ReportConfig{Dir: dir, Formats: []string{"json", "markdown", "html"}})

	rep := createTestReport()
	runDir, err := w.Write(context.Background(), rep)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, rep.RunID), runDir)

	data, err := os.ReadFile(filepath.Join(runDir, JSONFile))
	require.NoError(t, err)
	var decoded runner.RunReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, rep.RunID, decoded.RunID)
	require.Len(t, decoded.Endpoints, 1)
	assert.Equal(t, 0.5, decoded.Endpoints[0].Summary.Accuracy)

	md, err := os.ReadFile(filepath.Join(runDir, MarkdownFile))
	require.NoError(t, err)
	assert.Contains(t, string(md), "# NL-to-SQL Benchmark Report")
	assert.Contains(t, string(md), "mock-sut")

	html, err := os.ReadFile(filepath.Join(runDir, HTMLFile))
	require.NoError(t, err)
	assert.Contains(t, string(html), "echarts")
	assert.Contains(t, string(html), "Translation latency")
	assert.Contains(t, string(html), "Accuracy by schema tier")
}

func TestWriteUnknownFormat(t *testing.T) {
	w := NewWriter(config.ReportConfig{Dir: t.TempDir(), Formats: []string{"pdf"}})

	_, err := w.Write(context.Background(), createTestReport())
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestWriteRejectsTraversalRunID(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(config.ReportConfig{Dir: dir, Formats: []string{"json"}})

	rep := createTestReport()
	rep.RunID = "../escape"
	_, err := w.Write(context.Background(), rep)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid run id")

	_, statErr := os.Stat(filepath.Join(dir, "..", "escape"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestReadJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(config.ReportConfig{Dir: dir, Formats: []string{"json"}})

	rep := createTestReport()
	runDir, err := w.Write(context.Background(), rep)
	require.NoError(t, err)

	loaded, err := ReadJSON(filepath.Join(runDir, JSONFile))
	require.NoError(t, err)
	assert.Equal(t, rep.RunID, loaded.RunID)
	assert.Equal(t, result.TierLow, loaded.Endpoints[0].Results[1].Tier)

	_, err = ReadJSON(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestRenderMarkdownSections(t *testing.T) {
	md := RenderMarkdown(createTestReport())

	assert.Contains(t, md, "**Status: FAIL**")
	assert.Contains(t, md, "Database: shop (sqlite)")
	assert.Contains(t, md, "Sampling: 1 warmup + 5 measured runs per question")
	assert.Contains(t, md, "| mock-sut | mock | 3 | 1 | 1 | 50.0% |")
	assert.Contains(t, md, "## Endpoint: mock-sut")
	assert.Contains(t, md, "**Accuracy: 50.0% (1/2 graded)**")
	assert.Contains(t, md, "Cost: $0.0020 over 2 priced queries, 160 tokens")
	assert.Contains(t, md, "### Latency")
	assert.Contains(t, md, "### Robustness")
	assert.Contains(t, md, "| high | 1 | 1 | 100.0% |")
	assert.Contains(t, md, "Score: 0.500")
	assert.Contains(t, md, "### Flagged findings")
	assert.Contains(t, md, "- **high** [anomalous_speed] q-top:")
	assert.Contains(t, md, "### Failures")
	assert.Contains(t, md, "- q-broken: sampling: injected fault")
	assert.Contains(t, md, "### Mismatches")
	assert.Contains(t, md, "- q-top: row 0 differs")
}

func TestRenderMarkdownAllPassed(t *testing.T) {
	rep := createTestReport()
	rep.Endpoints[0].Results = rep.Endpoints[0].Results[:1]
	rep.Endpoints[0].Summary.Matched = 1
	rep.Endpoints[0].Summary.Questions = 1
	rep.Endpoints[0].Summary.Failed = 0
	rep.Endpoints[0].Summary.Accuracy = 1

	md := RenderMarkdown(rep)
	assert.Contains(t, md, "**Status: PASS**")
	assert.NotContains(t, md, "### Failures")
	assert.NotContains(t, md, "### Mismatches")
}

func TestRenderDiff(t *testing.T) {
	mkRun := func(id string, accuracy, p95 float64) *runner.RunReport {
		return &runner.RunReport{
			RunID: id,
			Endpoints: []runner.EndpointReport{{
				Endpoint: "sut",
				Summary: runner.EndpointSummary{
					Questions: 10, Matched: int(accuracy * 10), Accuracy: accuracy,
					Latency: &perf.Metrics{MeanMs: p95 * 0.8, P50Ms: p95 * 0.7, P95Ms: p95},
					Cost:    cost.Summary{TotalQueries: 10, TotalCost: 0.01},
				},
			}},
		}
	}

	diff := baseline.Compare(mkRun("base", 0.9, 100), mkRun("cur", 0.6, 130))
	md := RenderDiff(diff)

	assert.Contains(t, md, "# Baseline Comparison")
	assert.Contains(t, md, "**Status: REGRESSED**")
	assert.Contains(t, md, "Baseline: base")
	assert.Contains(t, md, "Current: cur")
	assert.Contains(t, md, "| accuracy | 90.0% | 60.0% | -30.0 pts (regression) |")
	assert.Contains(t, md, "| p95_ms | 100.0 ms | 130.0 ms | +30.0% (regression) |")

	diff = baseline.Compare(mkRun("base", 0.9, 100), mkRun("cur", 0.9, 100))
	assert.Contains(t, RenderDiff(diff), "**Status: OK**")
}

func TestRenderDiffEndpointMembership(t *testing.T) {
	base := &runner.RunReport{RunID: "base", Endpoints: []runner.EndpointReport{{Endpoint: "removed"}}}
	cur := &runner.RunReport{RunID: "cur", Endpoints: []runner.EndpointReport{{Endpoint: "added"}}}

	md := RenderDiff(baseline.Compare(base, cur))
	assert.Contains(t, md, "## added")
	assert.Contains(t, md, "New since the baseline run")
	assert.Contains(t, md, "## removed")
	assert.Contains(t, md, "missing from the current run")
}
