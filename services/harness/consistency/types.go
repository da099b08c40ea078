// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package consistency

import (
	"encoding/json"
	"fmt"
	"strings"
)

// -----------------------------------------------------------------------------
// Check Types
// -----------------------------------------------------------------------------

// Check identifies a single cross-check performed on a self-report.
type Check int

const (
	// CheckSubPhaseSum verifies sub-phase times sum to the reported total.
	CheckSubPhaseSum Check = iota

	// CheckTotalAgreement verifies the reported total against the
	// client-measured wall time.
	CheckTotalAgreement

	// CheckSubPhaseFloor verifies no sub-phase is implausibly fast.
	CheckSubPhaseFloor

	// CheckAnomalousSpeed verifies the reported total against the rolling
	// average for comparable questions.
	CheckAnomalousSpeed

	// CheckTokenArithmetic verifies input + output token counts equal the
	// reported total.
	CheckTokenArithmetic

	// CheckTokenBand verifies the reported token total against the
	// independent estimate band.
	CheckTokenBand

	// CheckTokenUnderReport verifies the rolling reported/estimated token
	// ratio for systematic under-reporting.
	CheckTokenUnderReport
)

// String returns the string representation.
func (c Check) String() string {
	switch c {
	case CheckSubPhaseSum:
		return "sub_phase_sum"
	case CheckTotalAgreement:
		return "total_agreement"
	case CheckSubPhaseFloor:
		return "sub_phase_floor"
	case CheckAnomalousSpeed:
		return "anomalous_speed"
	case CheckTokenArithmetic:
		return "token_arithmetic"
	case CheckTokenBand:
		return "token_band"
	case CheckTokenUnderReport:
		return "token_under_report"
	default:
		return fmt.Sprintf("Check(%d)", int(c))
	}
}

// MarshalJSON encodes the check as its name.
func (c Check) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes a check from its name.
func (c *Check) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*c = ParseCheck(s)
	return nil
}

// ParseCheck maps a check name to its Check, defaulting to
// CheckSubPhaseSum.
func ParseCheck(s string) Check {
	switch strings.TrimSpace(s) {
	case "total_agreement":
		return CheckTotalAgreement
	case "sub_phase_floor":
		return CheckSubPhaseFloor
	case "anomalous_speed":
		return CheckAnomalousSpeed
	case "token_arithmetic":
		return CheckTokenArithmetic
	case "token_band":
		return CheckTokenBand
	case "token_under_report":
		return CheckTokenUnderReport
	default:
		return CheckSubPhaseSum
	}
}

// Severity grades how suspicious a failed check is.
type Severity int

const (
	// SeverityLow is informational. Passed findings carry this severity.
	SeverityLow Severity = iota

	// SeverityMedium indicates a discrepancy worth flagging in reports.
	SeverityMedium

	// SeverityHigh indicates a discrepancy strong enough to distrust the
	// self-report.
	SeverityHigh

	// SeverityCritical indicates corroborated manipulation across checks.
	SeverityCritical
)

// String returns the string representation.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// MarshalJSON encodes the severity as its name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity from its name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	*s = ParseSeverity(name)
	return nil
}

// ParseSeverity maps a severity name to its Severity, defaulting to
// SeverityLow.
func ParseSeverity(s string) Severity {
	switch strings.TrimSpace(s) {
	case "medium":
		return SeverityMedium
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	default:
		return SeverityLow
	}
}

// -----------------------------------------------------------------------------
// Self-Report
// -----------------------------------------------------------------------------

// TimingSource tags who measured the reported times.
type TimingSource int

const (
	// SourceClient means the harness measured the times itself.
	SourceClient TimingSource = iota

	// SourceVendor means the system under test reported its own times.
	SourceVendor
)

// String returns the string representation.
func (t TimingSource) String() string {
	switch t {
	case SourceClient:
		return "client"
	case SourceVendor:
		return "vendor"
	default:
		return fmt.Sprintf("TimingSource(%d)", int(t))
	}
}

// MarshalJSON encodes the source as its name.
func (t TimingSource) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a source from its name.
func (t *TimingSource) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = ParseTimingSource(s)
	return nil
}

// ParseTimingSource maps a source name to its TimingSource, defaulting to
// client.
func ParseTimingSource(s string) TimingSource {
	if strings.EqualFold(strings.TrimSpace(s), "vendor") {
		return SourceVendor
	}
	return SourceClient
}

// TokenUsage holds self-reported token counts for one translation.
type TokenUsage struct {
	// InputTokens is the reported prompt token count.
	InputTokens int `json:"input_tokens"`

	// OutputTokens is the reported completion token count.
	OutputTokens int `json:"output_tokens"`

	// TotalTokens is the reported combined count.
	TotalTokens int `json:"total_tokens"`
}

// SelfReport is what a system under test claims about one translation.
//
// # Description
//
// Sub-phase times and token usage are optional; absent sections make their
// checks pass as not applicable rather than fail. The harness never trusts
// a SelfReport directly; it cross-checks every claim it can.
type SelfReport struct {
	// TotalTimeMs is the claimed end-to-end time in milliseconds.
	TotalTimeMs float64 `json:"total_time_ms"`

	// SubPhaseMs breaks the total into named phases
	// (e.g. parse, generate, execute). Nil when not reported.
	SubPhaseMs map[string]float64 `json:"sub_phase_ms,omitempty"`

	// Tokens is the claimed token usage. Nil when not reported.
	Tokens *TokenUsage `json:"tokens,omitempty"`

	// Source tags who measured the times.
	Source TimingSource `json:"source"`
}

// -----------------------------------------------------------------------------
// Findings
// -----------------------------------------------------------------------------

// Finding is the outcome of one check. Every check produces a Finding,
// passed or not; failed checks never abort validation.
type Finding struct {
	// Check identifies which cross-check produced this finding.
	Check Check `json:"check"`

	// Severity grades the finding. Passed findings are SeverityLow.
	Severity Severity `json:"severity"`

	// Passed is true when the check found no discrepancy.
	Passed bool `json:"passed"`

	// Reason describes the outcome in one sentence.
	Reason string `json:"reason"`

	// Evidence carries the numbers behind the reason.
	Evidence map[string]any `json:"evidence,omitempty"`
}

// Flagged filters findings down to the failed ones.
func Flagged(findings []Finding) []Finding {
	var out []Finding
	for _, f := range findings {
		if !f.Passed {
			out = append(out, f)
		}
	}
	return out
}

// MaxSeverity returns the highest severity among failed findings,
// SeverityLow when everything passed.
func MaxSeverity(findings []Finding) Severity {
	max := SeverityLow
	for _, f := range findings {
		if !f.Passed && f.Severity > max {
			max = f.Severity
		}
	}
	return max
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config holds the validator thresholds. All fields are tunable; the
// defaults reflect observed jitter on local round trips.
type Config struct {
	// SubPhaseSumToleranceMs is the allowed absolute gap between the
	// sub-phase sum and the reported total. Default 50.
	SubPhaseSumToleranceMs float64 `json:"sub_phase_sum_tolerance_ms" yaml:"sub_phase_sum_tolerance_ms"`

	// ClientTotalToleranceMs is the allowed absolute gap between the
	// reported total and the client-measured wall time. Default 200.
	ClientTotalToleranceMs float64 `json:"client_total_tolerance_ms" yaml:"client_total_tolerance_ms"`

	// SubPhaseFloorMs is the minimum plausible sub-phase time. Default 10.
	SubPhaseFloorMs float64 `json:"sub_phase_floor_ms" yaml:"sub_phase_floor_ms"`

	// AnomalousFraction flags totals below this fraction of the rolling
	// average for comparable questions. Default 0.30.
	AnomalousFraction float64 `json:"anomalous_fraction" yaml:"anomalous_fraction"`

	// TokenBandLow is the lower multiplier of the token estimate band.
	// Default 0.7.
	TokenBandLow float64 `json:"token_band_low" yaml:"token_band_low"`

	// TokenBandHigh is the upper multiplier of the token estimate band.
	// Default 1.3.
	TokenBandHigh float64 `json:"token_band_high" yaml:"token_band_high"`

	// UnderReportRatio flags a rolling mean reported/estimated token ratio
	// below this value. Default 0.6.
	UnderReportRatio float64 `json:"under_report_ratio" yaml:"under_report_ratio"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SubPhaseSumToleranceMs: 50,
		ClientTotalToleranceMs: 200,
		SubPhaseFloorMs:        10,
		AnomalousFraction:      0.30,
		TokenBandLow:           0.7,
		TokenBandHigh:          1.3,
		UnderReportRatio:       0.6,
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.SubPhaseSumToleranceMs < 0 {
		return fmt.Errorf("sub-phase sum tolerance must be non-negative, got %v", c.SubPhaseSumToleranceMs)
	}
	if c.ClientTotalToleranceMs < 0 {
		return fmt.Errorf("client total tolerance must be non-negative, got %v", c.ClientTotalToleranceMs)
	}
	if c.SubPhaseFloorMs < 0 {
		return fmt.Errorf("sub-phase floor must be non-negative, got %v", c.SubPhaseFloorMs)
	}
	if c.AnomalousFraction <= 0 || c.AnomalousFraction >= 1 {
		return fmt.Errorf("anomalous fraction must be in (0, 1), got %v", c.AnomalousFraction)
	}
	if c.TokenBandLow <= 0 || c.TokenBandHigh < c.TokenBandLow {
		return fmt.Errorf("token band [%v, %v] must satisfy 0 < low <= high",
			c.TokenBandLow, c.TokenBandHigh)
	}
	if c.UnderReportRatio <= 0 || c.UnderReportRatio > 1 {
		return fmt.Errorf("under-report ratio must be in (0, 1], got %v", c.UnderReportRatio)
	}
	return nil
}
