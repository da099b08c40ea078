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
	"encoding/json"
	"fmt"
	"time"

	"github.com/AleutianAI/nlqbench/services/harness/consistency"
	"github.com/AleutianAI/nlqbench/services/harness/cost"
	"github.com/AleutianAI/nlqbench/services/harness/perf"
	"github.com/AleutianAI/nlqbench/services/harness/result"
	"github.com/AleutianAI/nlqbench/services/harness/robustness"
	"github.com/AleutianAI/nlqbench/services/harness/sqlinspect"
)

// =============================================================================
// Run Report
// =============================================================================

// QuestionResult is the complete grading record for one question
// against one endpoint.
type QuestionResult struct {
	// QuestionID identifies the bank entry.
	QuestionID string `json:"question_id"`

	// Endpoint names the system under test.
	Endpoint string `json:"endpoint"`

	// Complexity is the question's declared level.
	Complexity sqlinspect.Level `json:"complexity"`

	// Tier is the schema-variant quality tier the question ran under.
	Tier result.QualityTier `json:"tier"`

	// GeneratedSQL is the query the system produced, empty when
	// translation failed outright.
	GeneratedSQL string `json:"generated_sql,omitempty"`

	// Screen is the parse-level inspection of the generated query.
	// Nil when translation failed before any SQL existed.
	Screen *sqlinspect.Report `json:"screen,omitempty"`

	// Verdict is the comparator's outcome.
	Verdict result.Verdict `json:"verdict"`

	// Metrics holds translation latency statistics. Nil when the
	// sample floor was not met.
	Metrics *perf.Metrics `json:"metrics,omitempty"`

	// Findings are the self-report cross-checks, passed and failed.
	Findings []consistency.Finding `json:"findings,omitempty"`

	// Cost prices the question's token usage. Zero for systems that
	// report no usage.
	Cost cost.Sample `json:"cost"`

	// Error records a failure that stopped grading, such as a
	// translation error or golden-query fault. Empty on success.
	Error string `json:"error,omitempty"`
}

// Failed reports whether the question never reached a verdict.
func (r QuestionResult) Failed() bool {
	return r.Error != ""
}

// EndpointSummary aggregates one system's results.
type EndpointSummary struct {
	// Questions is the number graded, failures included.
	Questions int `json:"questions"`

	// Matched counts verdicts that found equivalence.
	Matched int `json:"matched"`

	// Failed counts questions that errored before a verdict.
	Failed int `json:"failed"`

	// Accuracy is Matched over graded (non-failed) questions. Zero
	// when nothing was graded.
	Accuracy float64 `json:"accuracy"`

	// Robustness is the schema-quality degradation score.
	Robustness robustness.Score `json:"robustness"`

	// Latency pools every question's surviving samples. Nil when no
	// question produced metrics.
	Latency *perf.Metrics `json:"latency,omitempty"`

	// FindingsBySeverity counts failed consistency checks by severity
	// name.
	FindingsBySeverity map[string]int `json:"findings_by_severity,omitempty"`

	// Cost totals the endpoint's spend.
	Cost cost.Summary `json:"cost"`
}

// EndpointReport is one system's full run record.
type EndpointReport struct {
	// Endpoint names the system under test.
	Endpoint string `json:"endpoint"`

	// Kind is the adapter kind that served it.
	Kind string `json:"kind"`

	// Model is the configured model name, when the kind has one.
	Model string `json:"model,omitempty"`

	// Results holds one record per question, in bank order.
	Results []QuestionResult `json:"results"`

	// Summary aggregates the results.
	Summary EndpointSummary `json:"summary"`

	// HistorySnapshot captures the consistency accumulator at run end.
	HistorySnapshot *consistency.HistorySnapshot `json:"history_snapshot,omitempty"`
}

// RunReport is the canonical artifact of one benchmark run. The JSON
// form is what the baseline store persists and the report package
// renders.
type RunReport struct {
	// RunID is the unique identifier for this run.
	RunID string `json:"run_id"`

	// StartedAt and FinishedAt bound the run wall-clock.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Database names the execution backend used.
	Database string `json:"database"`

	// Dialect is the backend's SQL dialect.
	Dialect string `json:"dialect"`

	// WarmupRuns and MeasurementRuns echo the sampling configuration.
	WarmupRuns      int `json:"warmup_runs"`
	MeasurementRuns int `json:"measurement_runs"`

	// Endpoints holds one report per system under test.
	Endpoints []EndpointReport `json:"endpoints"`
}

// Endpoint returns the named endpoint's report.
func (r *RunReport) Endpoint(name string) (*EndpointReport, bool) {
	for i := range r.Endpoints {
		if r.Endpoints[i].Endpoint == name {
			return &r.Endpoints[i], true
		}
	}
	return nil, false
}

// AnyFailures reports whether any question failed or mismatched,
// which drives the CLI exit code.
func (r *RunReport) AnyFailures() bool {
	for _, ep := range r.Endpoints {
		for _, res := range ep.Results {
			if res.Failed() || !res.Verdict.Match {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// Events
// =============================================================================

// EventType classifies progress events.
type EventType int

const (
	// EventRunStarted opens a run.
	EventRunStarted EventType = iota

	// EventQuestionStarted begins one question on one endpoint.
	EventQuestionStarted

	// EventQuestionFinished carries a completed QuestionResult.
	EventQuestionFinished

	// EventEndpointFinished closes one endpoint's loop.
	EventEndpointFinished

	// EventRunFinished closes the run.
	EventRunFinished
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventRunStarted:
		return "run_started"
	case EventQuestionStarted:
		return "question_started"
	case EventQuestionFinished:
		return "question_finished"
	case EventEndpointFinished:
		return "endpoint_finished"
	case EventRunFinished:
		return "run_finished"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// MarshalJSON writes the type as its name, for websocket consumers.
func (t EventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// Event is one progress notification. Events are advisory: dropping
// them never affects the run.
type Event struct {
	// Type classifies the event.
	Type EventType `json:"type"`

	// RunID identifies the run.
	RunID string `json:"run_id"`

	// Endpoint and QuestionID are set for question-scoped events.
	Endpoint   string `json:"endpoint,omitempty"`
	QuestionID string `json:"question_id,omitempty"`

	// Result is the finished question's record, on
	// EventQuestionFinished only.
	Result *QuestionResult `json:"result,omitempty"`

	// Completed and Total track run progress in questions.
	Completed int `json:"completed"`
	Total     int `json:"total"`
}
