// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package consistency cross-checks what systems under test claim about
// themselves. Self-reported timings and token counts are easy to game;
// every claim that can be checked against an independent measurement is,
// and discrepancies become graded findings instead of trusted numbers.
//
// Checks never block and never error. A run with a lying endpoint still
// completes; its report just carries the evidence.
package consistency

import (
	"fmt"
	"math"
	"sort"
)

// Validator cross-checks self-reports against client measurements,
// independent estimates, and rolling history.
//
// # Description
//
// ValidateTiming and ValidateTokenUsage each run a fixed set of checks
// and return every Finding, passed or failed. The validator never
// mutates its History; the runner appends to it between questions.
//
// # Thread Safety
//
// Safe for concurrent use. The validator holds no per-call state and
// History guards itself.
type Validator struct {
	config  *Config
	history *History
}

// NewValidator creates a validator.
//
// Inputs:
//   - config: Threshold configuration. If nil, uses defaults.
//   - history: Rolling accumulator shared with the runner. If nil, a
//     fresh empty one is used and history-based checks pass as not
//     applicable until it fills.
//
// Outputs:
//   - *Validator: The new validator. Never nil.
func NewValidator(config *Config, history *History) *Validator {
	if config == nil {
		config = DefaultConfig()
	}
	if history == nil {
		history = NewHistory(0)
	}
	return &Validator{config: config, history: history}
}

// History returns the injected accumulator.
func (v *Validator) History() *History {
	return v.history
}

// -----------------------------------------------------------------------------
// Timing Validation
// -----------------------------------------------------------------------------

// ValidateTiming cross-checks a self-reported timing breakdown.
//
// Inputs:
//   - report: The self-report under scrutiny. Nil passes all checks as
//     not applicable.
//   - clientMeasuredMs: Wall time the harness measured for the same
//     round trip.
//   - key: Comparable-question key for the rolling-average check.
//
// Outputs:
//   - []Finding: One finding per check, always four, in a fixed order.
//
// Thread Safety: Safe for concurrent use.
func (v *Validator) ValidateTiming(report *SelfReport, clientMeasuredMs float64, key Key) []Finding {
	if report == nil {
		return notApplicable("no self-report provided",
			CheckSubPhaseSum, CheckTotalAgreement, CheckSubPhaseFloor, CheckAnomalousSpeed)
	}

	return []Finding{
		v.checkSubPhaseSum(report),
		v.checkTotalAgreement(report, clientMeasuredMs),
		v.checkSubPhaseFloor(report),
		v.checkAnomalousSpeed(report, key),
	}
}

// checkSubPhaseSum verifies the phase breakdown adds up to the claimed
// total.
func (v *Validator) checkSubPhaseSum(report *SelfReport) Finding {
	if len(report.SubPhaseMs) == 0 {
		return pass(CheckSubPhaseSum, "no sub-phase times reported", nil)
	}

	var sum float64
	for _, ms := range report.SubPhaseMs {
		sum += ms
	}
	delta := math.Abs(sum - report.TotalTimeMs)

	evidence := map[string]any{
		"sub_phase_sum_ms": sum,
		"total_time_ms":    report.TotalTimeMs,
		"delta_ms":         delta,
		"tolerance_ms":     v.config.SubPhaseSumToleranceMs,
	}
	if delta > v.config.SubPhaseSumToleranceMs {
		return fail(CheckSubPhaseSum, SeverityMedium,
			fmt.Sprintf("sub-phases sum to %.0f ms but the total claims %.0f ms (tolerance %.0f ms)",
				sum, report.TotalTimeMs, v.config.SubPhaseSumToleranceMs),
			evidence)
	}
	return pass(CheckSubPhaseSum, "sub-phase times sum to the reported total", evidence)
}

// checkTotalAgreement verifies the claimed total against the wall time
// the harness measured itself.
func (v *Validator) checkTotalAgreement(report *SelfReport, clientMeasuredMs float64) Finding {
	delta := math.Abs(report.TotalTimeMs - clientMeasuredMs)

	evidence := map[string]any{
		"total_time_ms":      report.TotalTimeMs,
		"client_measured_ms": clientMeasuredMs,
		"delta_ms":           delta,
		"tolerance_ms":       v.config.ClientTotalToleranceMs,
	}
	if delta > v.config.ClientTotalToleranceMs {
		return fail(CheckTotalAgreement, SeverityHigh,
			fmt.Sprintf("reported total %.0f ms is %.0f ms away from the client-measured %.0f ms (tolerance %.0f ms)",
				report.TotalTimeMs, delta, clientMeasuredMs, v.config.ClientTotalToleranceMs),
			evidence)
	}
	return pass(CheckTotalAgreement, "reported total agrees with the client-measured time", evidence)
}

// checkSubPhaseFloor flags sub-phases faster than any real parse,
// generation, or execution step can be.
func (v *Validator) checkSubPhaseFloor(report *SelfReport) Finding {
	if len(report.SubPhaseMs) == 0 {
		return pass(CheckSubPhaseFloor, "no sub-phase times reported", nil)
	}

	var offending []string
	for name, ms := range report.SubPhaseMs {
		if ms < v.config.SubPhaseFloorMs {
			offending = append(offending, name)
		}
	}
	sort.Strings(offending)

	evidence := map[string]any{
		"floor_ms":   v.config.SubPhaseFloorMs,
		"sub_phases": report.SubPhaseMs,
	}
	if len(offending) > 0 {
		evidence["offending"] = offending
		return fail(CheckSubPhaseFloor, SeverityHigh,
			fmt.Sprintf("implausibly fast: %d sub-phase(s) reported below the %.0f ms floor",
				len(offending), v.config.SubPhaseFloorMs),
			evidence)
	}
	return pass(CheckSubPhaseFloor, "all sub-phases above the plausibility floor", evidence)
}

// checkAnomalousSpeed compares the claimed total against the rolling
// average for comparable questions.
func (v *Validator) checkAnomalousSpeed(report *SelfReport, key Key) Finding {
	avg, n := v.history.TimingAverage(key)
	if n == 0 {
		return pass(CheckAnomalousSpeed, "no timing history for comparable questions", nil)
	}

	cutoff := v.config.AnomalousFraction * avg
	evidence := map[string]any{
		"total_time_ms":      report.TotalTimeMs,
		"rolling_average_ms": avg,
		"cutoff_ms":          cutoff,
		"history_samples":    n,
	}
	if report.TotalTimeMs < cutoff {
		return fail(CheckAnomalousSpeed, SeverityMedium,
			fmt.Sprintf("anomalously fast: %.0f ms is under %.0f%% of the %.0f ms rolling average (%d samples)",
				report.TotalTimeMs, v.config.AnomalousFraction*100, avg, n),
			evidence)
	}
	return pass(CheckAnomalousSpeed, "reported total is in line with comparable questions", evidence)
}

// -----------------------------------------------------------------------------
// Token Validation
// -----------------------------------------------------------------------------

// ValidateTokenUsage cross-checks self-reported token counts.
//
// Inputs:
//   - report: The self-report under scrutiny. Nil or token-free reports
//     pass the arithmetic and band checks as not applicable.
//   - estimatedTokens: Independent estimate for the same question and
//     schema. Zero or negative disables the band check.
//   - key: Comparable-question key for the rolling-ratio check.
//
// Outputs:
//   - []Finding: One finding per check, always three, in a fixed order.
//
// Thread Safety: Safe for concurrent use.
func (v *Validator) ValidateTokenUsage(report *SelfReport, estimatedTokens int, key Key) []Finding {
	if report == nil || report.Tokens == nil {
		findings := notApplicable("no token usage reported",
			CheckTokenArithmetic, CheckTokenBand)
		return append(findings, v.checkTokenUnderReport(key))
	}

	return []Finding{
		v.checkTokenArithmetic(report.Tokens),
		v.checkTokenBand(report.Tokens, estimatedTokens),
		v.checkTokenUnderReport(key),
	}
}

// checkTokenArithmetic verifies input + output equals the claimed total.
func (v *Validator) checkTokenArithmetic(usage *TokenUsage) Finding {
	sum := usage.InputTokens + usage.OutputTokens

	evidence := map[string]any{
		"input_tokens":  usage.InputTokens,
		"output_tokens": usage.OutputTokens,
		"total_tokens":  usage.TotalTokens,
	}
	if sum != usage.TotalTokens {
		return fail(CheckTokenArithmetic, SeverityMedium,
			fmt.Sprintf("input %d + output %d = %d, but the total claims %d",
				usage.InputTokens, usage.OutputTokens, sum, usage.TotalTokens),
			evidence)
	}
	return pass(CheckTokenArithmetic, "token counts add up", evidence)
}

// checkTokenBand verifies the claimed total sits inside the band around
// the independent estimate.
func (v *Validator) checkTokenBand(usage *TokenUsage, estimatedTokens int) Finding {
	if estimatedTokens <= 0 {
		return pass(CheckTokenBand, "no token estimate available", nil)
	}

	low := float64(estimatedTokens) * v.config.TokenBandLow
	high := float64(estimatedTokens) * v.config.TokenBandHigh
	total := float64(usage.TotalTokens)

	evidence := map[string]any{
		"total_tokens":     usage.TotalTokens,
		"estimated_tokens": estimatedTokens,
		"band_low":         low,
		"band_high":        high,
	}
	if total < low || total > high {
		return fail(CheckTokenBand, SeverityMedium,
			fmt.Sprintf("reported %d tokens is outside the estimate band [%.0f, %.0f]",
				usage.TotalTokens, low, high),
			evidence)
	}
	return pass(CheckTokenBand, "reported total within the estimate band", evidence)
}

// checkTokenUnderReport looks for a sustained pattern of reporting fewer
// tokens than the estimator predicts. A single low report is noise; a
// rolling mean below the threshold is billing fraud shaped.
func (v *Validator) checkTokenUnderReport(key Key) Finding {
	mean, n := v.history.TokenRatioMean(key)
	if n == 0 {
		return pass(CheckTokenUnderReport, "no token ratio history for comparable questions", nil)
	}

	evidence := map[string]any{
		"mean_ratio":      mean,
		"threshold":       v.config.UnderReportRatio,
		"history_samples": n,
	}
	if mean < v.config.UnderReportRatio {
		return fail(CheckTokenUnderReport, SeverityHigh,
			fmt.Sprintf("systematic under-reporting: rolling reported/estimated ratio %.2f is below %.2f (%d samples)",
				mean, v.config.UnderReportRatio, n),
			evidence)
	}
	return pass(CheckTokenUnderReport, "rolling token ratio within expected range", evidence)
}

// -----------------------------------------------------------------------------
// Finding Constructors
// -----------------------------------------------------------------------------

func pass(check Check, reason string, evidence map[string]any) Finding {
	return Finding{
		Check:    check,
		Severity: SeverityLow,
		Passed:   true,
		Reason:   reason,
		Evidence: evidence,
	}
}

func fail(check Check, severity Severity, reason string, evidence map[string]any) Finding {
	return Finding{
		Check:    check,
		Severity: severity,
		Passed:   false,
		Reason:   reason,
		Evidence: evidence,
	}
}

func notApplicable(reason string, checks ...Check) []Finding {
	findings := make([]Finding, 0, len(checks))
	for _, c := range checks {
		findings = append(findings, pass(c, reason, nil))
	}
	return findings
}
