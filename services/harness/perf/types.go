// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package perf

import (
	"errors"
	"math"
	"sort"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config holds sampler configuration.
//
// Description:
//
//	Config controls the repeat loop: warmup count, measurement count, the
//	minimum number of surviving samples required to report metrics, and
//	the sample count at which single-extreme trimming activates. Use
//	DefaultConfig() for sensible defaults, then override via MeasureOption.
//
// Thread Safety: Safe for concurrent read access after initialization.
type Config struct {
	// WarmupRuns is the number of discarded runs before measurement.
	// Warmup failures are logged, never fatal.
	// Default: 2
	WarmupRuns int

	// MeasurementRuns is the number of measured runs.
	// Default: 5
	MeasurementRuns int

	// MinSamples is the minimum number of successful measurement runs
	// required to report metrics. Below it Measure returns
	// ErrInsufficientSamples.
	// Default: 3
	MinSamples int

	// TrimThreshold is the surviving-sample count at which the single
	// minimum and single maximum are dropped before computing mean and
	// standard deviation. Median and percentiles always use the full
	// surviving set.
	// Default: 5
	TrimThreshold int
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		WarmupRuns:      2,
		MeasurementRuns: 5,
		MinSamples:      3,
		TrimThreshold:   5,
	}
}

// Validate checks that the configuration is valid.
//
// Outputs:
//   - error: Non-nil if a field is out of range, with a message naming
//     the field.
func (c *Config) Validate() error {
	if c.WarmupRuns < 0 {
		return errors.New("warmup runs must be non-negative")
	}
	if c.MeasurementRuns <= 0 {
		return errors.New("measurement runs must be positive")
	}
	if c.MinSamples <= 0 {
		return errors.New("minimum samples must be positive")
	}
	if c.MinSamples > c.MeasurementRuns {
		return errors.New("minimum samples cannot exceed measurement runs")
	}
	if c.TrimThreshold < 3 {
		return errors.New("trim threshold must be at least 3")
	}
	return nil
}

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

// Metrics holds the latency statistics of one measured operation.
//
// Description:
//
//	All values are monotonic elapsed milliseconds. Mean and StdDev come
//	from the trimmed set when Trimmed is true; Median, Min, Max, and all
//	percentiles always come from the full surviving set. SamplesMs
//	preserves the surviving samples in run order for downstream analysis.
//
// Thread Safety: Safe for concurrent read access after creation.
type Metrics struct {
	// MeanMs is the arithmetic mean, trimmed when Trimmed is true.
	MeanMs float64 `json:"mean_ms"`

	// MedianMs is the 50th percentile over the full surviving set.
	MedianMs float64 `json:"median_ms"`

	// StdDevMs is the sample standard deviation, trimmed when Trimmed
	// is true. Zero when fewer than two samples contribute.
	StdDevMs float64 `json:"stddev_ms"`

	// MinMs and MaxMs span the full surviving set, including any
	// samples excluded from the trimmed mean.
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`

	// P50Ms, P95Ms, P99Ms are percentiles over the full surviving set.
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`

	// SampleCount is the number of surviving successful runs.
	SampleCount int `json:"sample_count"`

	// FailureCount is the number of measurement runs that failed and
	// were excluded.
	FailureCount int `json:"failure_count"`

	// Trimmed reports whether mean and stddev dropped the single
	// minimum and maximum.
	Trimmed bool `json:"trimmed"`

	// SamplesMs holds the surviving samples in run order.
	SamplesMs []float64 `json:"samples_ms"`
}

// Summarize computes Metrics over a pooled sample set, for rolling
// per-question samples into endpoint-level statistics. Returns nil for
// an empty set. Trimming follows the same threshold rule as Measure;
// thresholds below 3 fall back to the default.
func Summarize(samplesMs []float64, trimThreshold int) *Metrics {
	if len(samplesMs) == 0 {
		return nil
	}
	if trimThreshold < 3 {
		trimThreshold = DefaultConfig().TrimThreshold
	}
	return computeMetrics(samplesMs, 0, trimThreshold)
}

// computeMetrics builds Metrics from surviving samples. The caller has
// already enforced the sample floor.
func computeMetrics(samplesMs []float64, failures int, trimThreshold int) *Metrics {
	sorted := make([]float64, len(samplesMs))
	copy(sorted, samplesMs)
	sort.Float64s(sorted)

	m := &Metrics{
		MinMs:        sorted[0],
		MaxMs:        sorted[len(sorted)-1],
		MedianMs:     percentileMs(sorted, 0.5),
		P50Ms:        percentileMs(sorted, 0.5),
		P95Ms:        percentileMs(sorted, 0.95),
		P99Ms:        percentileMs(sorted, 0.99),
		SampleCount:  len(samplesMs),
		FailureCount: failures,
		SamplesMs:    samplesMs,
	}

	central := sorted
	if len(sorted) >= trimThreshold {
		central = sorted[1 : len(sorted)-1]
		m.Trimmed = true
	}

	var sum float64
	for _, s := range central {
		sum += s
	}
	m.MeanMs = sum / float64(len(central))

	if len(central) >= 2 {
		var sumSquaredDiff float64
		for _, s := range central {
			diff := s - m.MeanMs
			sumSquaredDiff += diff * diff
		}
		m.StdDevMs = math.Sqrt(sumSquaredDiff / float64(len(central)-1))
	}

	return m
}

// percentileMs returns the p-th percentile of ascending-sorted samples
// using the floor(len*p) index, clamped to the last element.
func percentileMs(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
