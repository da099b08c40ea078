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
	"context"

	"github.com/AleutianAI/nlqbench/services/harness/runner"
)

// Metric names used in comparison deltas.
const (
	MetricAccuracy   = "accuracy"
	MetricFailed     = "failed"
	MetricP50        = "p50_ms"
	MetricP95        = "p95_ms"
	MetricMean       = "mean_ms"
	MetricRobustness = "robustness"
	MetricCost       = "total_cost"
)

// =============================================================================
// Options
// =============================================================================

type compareOptions struct {
	latencyTolerance  float64
	accuracyTolerance float64
	costTolerance     float64
}

func defaultCompareOptions() compareOptions {
	return compareOptions{
		latencyTolerance:  0.10,
		accuracyTolerance: 0,
		costTolerance:     0.10,
	}
}

// CompareOption adjusts regression thresholds.
type CompareOption func(*compareOptions)

// WithLatencyTolerance sets the relative latency increase tolerated
// before a delta counts as a regression. Negative values keep the
// default of 10%.
func WithLatencyTolerance(frac float64) CompareOption {
	return func(o *compareOptions) {
		if frac >= 0 {
			o.latencyTolerance = frac
		}
	}
}

// WithAccuracyTolerance sets the absolute accuracy drop tolerated
// before a delta counts as a regression. Negative values keep the
// default of zero.
func WithAccuracyTolerance(abs float64) CompareOption {
	return func(o *compareOptions) {
		if abs >= 0 {
			o.accuracyTolerance = abs
		}
	}
}

// WithCostTolerance sets the relative cost increase tolerated before
// a delta counts as a regression. Negative values keep the default of
// 10%.
func WithCostTolerance(frac float64) CompareOption {
	return func(o *compareOptions) {
		if frac >= 0 {
			o.costTolerance = frac
		}
	}
}

// =============================================================================
// Diff types
// =============================================================================

// MetricDelta is one metric's movement between two runs.
type MetricDelta struct {
	// Metric is one of the Metric* constants.
	Metric string `json:"metric"`

	// Baseline and Current are the two runs' values.
	Baseline float64 `json:"baseline"`
	Current  float64 `json:"current"`

	// Delta is Current minus Baseline.
	Delta float64 `json:"delta"`

	// HigherIsBetter tells renderers which direction is an
	// improvement.
	HigherIsBetter bool `json:"higher_is_better"`

	// Regressed is true when the movement was worse than the
	// configured tolerance.
	Regressed bool `json:"regressed"`
}

// EndpointDiff compares one endpoint across two runs.
type EndpointDiff struct {
	// Endpoint names the system under test.
	Endpoint string `json:"endpoint"`

	// InBaseline and InCurrent report presence in each run. Deltas
	// exist only when both are true.
	InBaseline bool `json:"in_baseline"`
	InCurrent  bool `json:"in_current"`

	// Deltas holds the per-metric movements.
	Deltas []MetricDelta `json:"deltas,omitempty"`
}

// Regressed reports whether any metric moved past its tolerance.
func (d EndpointDiff) Regressed() bool {
	for _, m := range d.Deltas {
		if m.Regressed {
			return true
		}
	}
	return false
}

// Diff is the full comparison between a stored baseline and a current
// run.
type Diff struct {
	// BaselineID and CurrentID identify the two runs.
	BaselineID string `json:"baseline_id"`
	CurrentID  string `json:"current_id"`

	// Endpoints holds one entry per endpoint in either run, current
	// run order first.
	Endpoints []EndpointDiff `json:"endpoints"`
}

// Regressed reports whether any endpoint regressed.
func (d *Diff) Regressed() bool {
	for _, ep := range d.Endpoints {
		if ep.Regressed() {
			return true
		}
	}
	return false
}

// =============================================================================
// Comparison
// =============================================================================

// Compare diffs two run reports endpoint by endpoint.
//
// # Description
//
//	Endpoints are matched by name. Accuracy and robustness use an
//	absolute tolerance, latency and cost a relative one: a run on a
//	busy host should not flag a regression over sampling noise.
//	Latency deltas appear only when both runs produced metrics, and
//	robustness only when both runs had a defined score.
//
// # Inputs
//   - base: The stored reference run.
//   - current: The run under evaluation.
//   - opts: Tolerance adjustments.
//
// # Outputs
//   - *Diff: Per-endpoint metric movements. Never nil.
//
// Thread Safety: Safe for concurrent use (pure function).
func Compare(base, current *runner.RunReport, opts ...CompareOption) *Diff {
	o := defaultCompareOptions()
	for _, opt := range opts {
		opt(&o)
	}

	diff := &Diff{
		BaselineID: base.RunID,
		CurrentID:  current.RunID,
	}

	seen := make(map[string]bool)
	for i := range current.Endpoints {
		cur := &current.Endpoints[i]
		seen[cur.Endpoint] = true
		bep, ok := base.Endpoint(cur.Endpoint)
		ed := EndpointDiff{
			Endpoint:   cur.Endpoint,
			InBaseline: ok,
			InCurrent:  true,
		}
		if ok {
			ed.Deltas = endpointDeltas(&bep.Summary, &cur.Summary, o)
		}
		diff.Endpoints = append(diff.Endpoints, ed)
	}
	for i := range base.Endpoints {
		bep := &base.Endpoints[i]
		if seen[bep.Endpoint] {
			continue
		}
		diff.Endpoints = append(diff.Endpoints, EndpointDiff{
			Endpoint:   bep.Endpoint,
			InBaseline: true,
		})
	}
	return diff
}

// Compare loads a stored baseline and diffs the current run against
// it.
func (s *Store) Compare(ctx context.Context, baselineID string, current *runner.RunReport, opts ...CompareOption) (*Diff, error) {
	base, err := s.Get(ctx, baselineID)
	if err != nil {
		return nil, err
	}
	return Compare(base, current, opts...), nil
}

func endpointDeltas(base, cur *runner.EndpointSummary, o compareOptions) []MetricDelta {
	var deltas []MetricDelta

	deltas = append(deltas, higherBetter(MetricAccuracy, base.Accuracy, cur.Accuracy, o.accuracyTolerance))
	deltas = append(deltas, lowerBetterAbs(MetricFailed, float64(base.Failed), float64(cur.Failed)))

	if base.Latency != nil && cur.Latency != nil {
		deltas = append(deltas,
			lowerBetterRel(MetricP50, base.Latency.P50Ms, cur.Latency.P50Ms, o.latencyTolerance),
			lowerBetterRel(MetricP95, base.Latency.P95Ms, cur.Latency.P95Ms, o.latencyTolerance),
			lowerBetterRel(MetricMean, base.Latency.MeanMs, cur.Latency.MeanMs, o.latencyTolerance),
		)
	}

	baseRb, curRb := base.Robustness, cur.Robustness
	if baseRb.Available && !baseRb.Undefined && curRb.Available && !curRb.Undefined {
		deltas = append(deltas, higherBetter(MetricRobustness, baseRb.Value, curRb.Value, o.accuracyTolerance))
	}

	if base.Cost.TotalCost > 0 || cur.Cost.TotalCost > 0 {
		deltas = append(deltas, lowerBetterRel(MetricCost, base.Cost.TotalCost, cur.Cost.TotalCost, o.costTolerance))
	}
	return deltas
}

func higherBetter(metric string, base, cur, tol float64) MetricDelta {
	return MetricDelta{
		Metric:         metric,
		Baseline:       base,
		Current:        cur,
		Delta:          cur - base,
		HigherIsBetter: true,
		Regressed:      base-cur > tol,
	}
}

func lowerBetterAbs(metric string, base, cur float64) MetricDelta {
	return MetricDelta{
		Metric:    metric,
		Baseline:  base,
		Current:   cur,
		Delta:     cur - base,
		Regressed: cur > base,
	}
}

// lowerBetterRel flags a regression when the increase over the
// baseline exceeds tol as a fraction of the baseline. A zero baseline
// falls back to flagging any increase.
func lowerBetterRel(metric string, base, cur, tol float64) MetricDelta {
	d := MetricDelta{
		Metric:   metric,
		Baseline: base,
		Current:  cur,
		Delta:    cur - base,
	}
	if base > 0 {
		d.Regressed = (cur-base)/base > tol
	} else {
		d.Regressed = cur > base
	}
	return d
}
