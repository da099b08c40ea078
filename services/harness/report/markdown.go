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
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/nlqbench/services/harness/baseline"
	"github.com/AleutianAI/nlqbench/services/harness/consistency"
	"github.com/AleutianAI/nlqbench/services/harness/runner"
)

// RenderMarkdown produces the human-readable run summary.
func RenderMarkdown(rep *runner.RunReport) string {
	var sb strings.Builder

	sb.WriteString("# NL-to-SQL Benchmark Report\n\n")
	if rep.AnyFailures() {
		sb.WriteString("**Status: FAIL**\n\n")
	} else {
		sb.WriteString("**Status: PASS**\n\n")
	}

	sb.WriteString(fmt.Sprintf("Run: %s\n", rep.RunID))
	sb.WriteString(fmt.Sprintf("Database: %s (%s)\n", rep.Database, rep.Dialect))
	sb.WriteString(fmt.Sprintf("Started: %s\n", rep.StartedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Duration: %s\n", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond)))
	sb.WriteString(fmt.Sprintf("Sampling: %d warmup + %d measured runs per question\n\n", rep.WarmupRuns, rep.MeasurementRuns))

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Endpoint | Kind | Questions | Matched | Failed | Accuracy | P50 | P95 | Cost |\n")
	sb.WriteString("|----------|------|-----------|---------|--------|----------|-----|-----|------|\n")
	for i := range rep.Endpoints {
		ep := &rep.Endpoints[i]
		p50, p95 := "-", "-"
		if ep.Summary.Latency != nil {
			p50 = fmt.Sprintf("%.1f ms", ep.Summary.Latency.P50Ms)
			p95 = fmt.Sprintf("%.1f ms", ep.Summary.Latency.P95Ms)
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %d | %s | %s | %s | $%.4f |\n",
			ep.Endpoint, ep.Kind,
			ep.Summary.Questions, ep.Summary.Matched, ep.Summary.Failed,
			pct(ep.Summary.Accuracy), p50, p95, ep.Summary.Cost.TotalCost))
	}

	for i := range rep.Endpoints {
		writeEndpointSection(&sb, &rep.Endpoints[i])
	}
	return sb.String()
}

func writeEndpointSection(sb *strings.Builder, ep *runner.EndpointReport) {
	sb.WriteString(fmt.Sprintf("\n## Endpoint: %s\n\n", ep.Endpoint))

	graded := ep.Summary.Questions - ep.Summary.Failed
	sb.WriteString(fmt.Sprintf("**Accuracy: %s (%d/%d graded)**\n\n", pct(ep.Summary.Accuracy), ep.Summary.Matched, graded))
	if ep.Model != "" {
		sb.WriteString(fmt.Sprintf("Model: %s\n", ep.Model))
	}
	if ep.Summary.Cost.TotalQueries > 0 {
		sb.WriteString(fmt.Sprintf("Cost: $%.4f over %d priced queries, %d tokens\n",
			ep.Summary.Cost.TotalCost, ep.Summary.Cost.TotalQueries, ep.Summary.Cost.TotalTokens))
	}

	if m := ep.Summary.Latency; m != nil {
		sb.WriteString("\n### Latency\n\n")
		sb.WriteString("| Mean | Median | StdDev | Min | Max | P95 | P99 | Samples |\n")
		sb.WriteString("|------|--------|--------|-----|-----|-----|-----|---------|\n")
		sb.WriteString(fmt.Sprintf("| %.1f ms | %.1f ms | %.1f ms | %.1f ms | %.1f ms | %.1f ms | %.1f ms | %d |\n",
			m.MeanMs, m.MedianMs, m.StdDevMs, m.MinMs, m.MaxMs, m.P95Ms, m.P99Ms, m.SampleCount))
	}

	rb := ep.Summary.Robustness
	if len(rb.Tiers) > 0 {
		sb.WriteString("\n### Robustness\n\n")
		sb.WriteString("| Tier | Matched | Total | Accuracy |\n")
		sb.WriteString("|------|---------|-------|----------|\n")
		for _, tier := range rb.Tiers {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %s |\n",
				tier.Tier, tier.Matches, tier.Total, pct(tier.Accuracy)))
		}
		switch {
		case !rb.Available:
			sb.WriteString("\nScore: not available (needs verdicts in both the high and low tiers)\n")
		case rb.Undefined:
			sb.WriteString("\nScore: undefined (high tier matched nothing)\n")
		default:
			sb.WriteString(fmt.Sprintf("\nScore: %.3f (low-tier accuracy over high-tier accuracy)\n", rb.Value))
		}
	}

	var flagged, failures, mismatches []string
	for i := range ep.Results {
		res := &ep.Results[i]
		for _, f := range consistency.Flagged(res.Findings) {
			flagged = append(flagged, fmt.Sprintf("- **%s** [%s] %s: %s", f.Severity, f.Check, res.QuestionID, f.Reason))
		}
		switch {
		case res.Failed():
			failures = append(failures, fmt.Sprintf("- %s: %s", res.QuestionID, res.Error))
		case !res.Verdict.Match:
			mismatches = append(mismatches, fmt.Sprintf("- %s: %s", res.QuestionID, res.Verdict.Reason))
		}
	}
	writeList(sb, "Flagged findings", flagged)
	writeList(sb, "Failures", failures)
	writeList(sb, "Mismatches", mismatches)
}

func writeList(sb *strings.Builder, heading string, lines []string) {
	if len(lines) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("\n### %s\n\n", heading))
	for _, line := range lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
}

// =============================================================================
// Baseline diffs
// =============================================================================

// RenderDiff produces the Markdown comparison against a stored
// baseline.
func RenderDiff(diff *baseline.Diff) string {
	var sb strings.Builder

	sb.WriteString("# Baseline Comparison\n\n")
	if diff.Regressed() {
		sb.WriteString("**Status: REGRESSED**\n\n")
	} else {
		sb.WriteString("**Status: OK**\n\n")
	}
	sb.WriteString(fmt.Sprintf("Baseline: %s\n", diff.BaselineID))
	sb.WriteString(fmt.Sprintf("Current: %s\n", diff.CurrentID))

	for _, ep := range diff.Endpoints {
		sb.WriteString(fmt.Sprintf("\n## %s\n\n", ep.Endpoint))
		switch {
		case !ep.InBaseline:
			sb.WriteString("New since the baseline run; nothing to compare.\n")
			continue
		case !ep.InCurrent:
			sb.WriteString("Present in the baseline but missing from the current run.\n")
			continue
		}

		sb.WriteString("| Metric | Baseline | Current | Change |\n")
		sb.WriteString("|--------|----------|---------|--------|\n")
		for _, d := range ep.Deltas {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				d.Metric, formatMetric(d.Metric, d.Baseline), formatMetric(d.Metric, d.Current), formatChange(d)))
		}
	}
	return sb.String()
}

func formatMetric(metric string, v float64) string {
	switch metric {
	case baseline.MetricAccuracy, baseline.MetricRobustness:
		return pct(v)
	case baseline.MetricFailed:
		return fmt.Sprintf("%.0f", v)
	case baseline.MetricCost:
		return fmt.Sprintf("$%.4f", v)
	default:
		return fmt.Sprintf("%.1f ms", v)
	}
}

func formatChange(d baseline.MetricDelta) string {
	var change string
	switch d.Metric {
	case baseline.MetricFailed:
		change = fmt.Sprintf("%+.0f", d.Delta)
	case baseline.MetricAccuracy, baseline.MetricRobustness:
		change = fmt.Sprintf("%+.1f pts", d.Delta*100)
	default:
		change = fmt.Sprintf("%+.1f%%", percentChange(d.Baseline, d.Current))
	}
	if d.Regressed {
		change += " (regression)"
	}
	return change
}

func percentChange(base, current float64) float64 {
	if base == 0 {
		return 0
	}
	return (current - base) / base * 100
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
