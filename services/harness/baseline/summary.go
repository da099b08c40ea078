// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package baseline

import (
	"time"

	"github.com/AleutianAI/nlqbench/services/harness/runner"
)

// RunSummary is the small record List returns per stored run. It holds
// what a listing table needs without decoding the full report.
type RunSummary struct {
	// RunID identifies the stored run.
	RunID string `json:"run_id"`

	// StartedAt and FinishedAt bound the run wall-clock.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Database and Dialect name the execution backend.
	Database string `json:"database"`
	Dialect  string `json:"dialect"`

	// Endpoints holds one line per system under test.
	Endpoints []EndpointBrief `json:"endpoints"`
}

// EndpointBrief condenses one endpoint's summary for listings and
// comparisons.
type EndpointBrief struct {
	// Endpoint names the system under test.
	Endpoint string `json:"endpoint"`

	// Kind and Model echo the adapter configuration.
	Kind  string `json:"kind"`
	Model string `json:"model,omitempty"`

	// Questions, Matched and Failed are the run counts.
	Questions int `json:"questions"`
	Matched   int `json:"matched"`
	Failed    int `json:"failed"`

	// Accuracy is matched over graded questions.
	Accuracy float64 `json:"accuracy"`

	// P50Ms and P95Ms are pooled latency percentiles. Zero when the
	// run produced no metrics.
	P50Ms float64 `json:"p50_ms,omitempty"`
	P95Ms float64 `json:"p95_ms,omitempty"`

	// Robustness is the degradation score when the run had both a
	// high and a low tier; nil otherwise.
	Robustness *float64 `json:"robustness,omitempty"`

	// TotalCost is the endpoint's spend in USD.
	TotalCost float64 `json:"total_cost"`
}

// summarize condenses a report into its listing record.
func summarize(report *runner.RunReport) RunSummary {
	sum := RunSummary{
		RunID:      report.RunID,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Database:   report.Database,
		Dialect:    report.Dialect,
		Endpoints:  make([]EndpointBrief, 0, len(report.Endpoints)),
	}
	for i := range report.Endpoints {
		ep := &report.Endpoints[i]
		brief := EndpointBrief{
			Endpoint:  ep.Endpoint,
			Kind:      ep.Kind,
			Model:     ep.Model,
			Questions: ep.Summary.Questions,
			Matched:   ep.Summary.Matched,
			Failed:    ep.Summary.Failed,
			Accuracy:  ep.Summary.Accuracy,
			TotalCost: ep.Summary.Cost.TotalCost,
		}
		if ep.Summary.Latency != nil {
			brief.P50Ms = ep.Summary.Latency.P50Ms
			brief.P95Ms = ep.Summary.Latency.P95Ms
		}
		if rb := ep.Summary.Robustness; rb.Available && !rb.Undefined {
			v := rb.Value
			brief.Robustness = &v
		}
		sum.Endpoints = append(sum.Endpoints, brief)
	}
	return sum
}
