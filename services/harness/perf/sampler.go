// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package perf measures operation latency across repeated runs and
// reduces the noisy samples to trustworthy statistics.
//
// The sampler runs a warmup phase whose results are discarded, then a
// measurement phase timing each successful call with the monotonic
// clock. Failed runs are excluded from statistics but counted. When
// enough samples survive, the single fastest and slowest are dropped
// before mean and standard deviation to keep one cold cache or GC pause
// from skewing the central tendency; order statistics (median, min,
// max, percentiles) always reflect the full surviving set.
package perf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "nlqbench.harness.perf"

// -----------------------------------------------------------------------------
// Measure Options
// -----------------------------------------------------------------------------

// MeasureOption configures a measurement.
//
// Description:
//
//	MeasureOption functions modify the sampler Config. They are applied
//	in order, so later options override earlier ones. Out-of-range
//	values are ignored.
type MeasureOption func(*Config)

// WithWarmupRuns sets the number of discarded warmup runs.
//
// Inputs:
//   - n: Warmup count. Must be non-negative; negative values are ignored.
func WithWarmupRuns(n int) MeasureOption {
	return func(c *Config) {
		if n >= 0 {
			c.WarmupRuns = n
		}
	}
}

// WithMeasurementRuns sets the number of measured runs.
//
// Inputs:
//   - n: Measurement count. Must be positive; non-positive values are ignored.
func WithMeasurementRuns(n int) MeasureOption {
	return func(c *Config) {
		if n > 0 {
			c.MeasurementRuns = n
		}
	}
}

// WithMinSamples sets the surviving-sample floor below which Measure
// returns ErrInsufficientSamples.
//
// Inputs:
//   - n: Sample floor. Must be positive; non-positive values are ignored.
func WithMinSamples(n int) MeasureOption {
	return func(c *Config) {
		if n > 0 {
			c.MinSamples = n
		}
	}
}

// WithTrimThreshold sets the surviving-sample count at which the single
// min and max are dropped from mean and stddev.
//
// Inputs:
//   - n: Trim threshold. Must be at least 3; smaller values are ignored.
func WithTrimThreshold(n int) MeasureOption {
	return func(c *Config) {
		if n >= 3 {
			c.TrimThreshold = n
		}
	}
}

// -----------------------------------------------------------------------------
// Sampler
// -----------------------------------------------------------------------------

// InvokeFunc is one timed operation. The sampler never interprets the
// work, only its duration and success. Implementations that can block
// must honor ctx; the sampler applies no internal timeout.
type InvokeFunc func(ctx context.Context) error

// Sampler executes the warmup and measurement loop for one operation.
//
// Description:
//
//	A Sampler is sequential within one Measure call. Callers wanting
//	parallelism run independent Measure invocations concurrently; the
//	Sampler itself holds no per-measurement state.
//
// Thread Safety: Safe for concurrent use.
type Sampler struct {
	logger *slog.Logger
}

// NewSampler creates a sampler logging through slog.Default().
func NewSampler() *Sampler {
	return &Sampler{
		logger: slog.Default(),
	}
}

// SetLogger replaces the sampler's logger. Nil values are ignored.
func (s *Sampler) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Measure runs the warmup and measurement phases for invoke and reduces
// the samples to Metrics.
//
// Description:
//
//	Warmup runs execute first; their errors are logged and swallowed.
//	Measurement runs are timed with the monotonic clock; a failed run is
//	excluded from statistics but counted in Metrics.FailureCount. Once
//	ctx is cancelled the remaining runs are recorded as failures without
//	invoking the operation again.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - invoke: The operation to measure. Must not be nil.
//   - opts: Optional configuration overrides.
//
// Outputs:
//   - *Metrics: Latency statistics. Nil on error.
//   - error: ErrInsufficientSamples when too few runs survive,
//     ErrInvalidConfig for bad options.
//
// Thread Safety: Safe for concurrent use.
//
// Example:
//
//	metrics, err := sampler.Measure(ctx, func(ctx context.Context) error {
//	    _, err := endpoint.Translate(ctx, question, schema)
//	    return err
//	}, perf.WithMeasurementRuns(10))
func (s *Sampler) Measure(ctx context.Context, invoke InvokeFunc, opts ...MeasureOption) (*Metrics, error) {
	if ctx == nil {
		return nil, errors.New("context must not be nil")
	}
	if invoke == nil {
		return nil, errors.New("invoke must not be nil")
	}

	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "perf.Sampler.Measure")
	defer span.End()
	span.SetAttributes(
		attribute.Int("perf.warmup_runs", config.WarmupRuns),
		attribute.Int("perf.measurement_runs", config.MeasurementRuns),
	)

	s.runWarmup(ctx, invoke, config)

	samplesMs, failures := s.runMeasurement(ctx, invoke, config)

	if len(samplesMs) < config.MinSamples {
		err := fmt.Errorf("%w: %d of %d runs succeeded, floor is %d",
			ErrInsufficientSamples, len(samplesMs), config.MeasurementRuns, config.MinSamples)
		span.RecordError(err)
		span.SetStatus(codes.Error, "sample floor not met")
		return nil, err
	}

	metrics := computeMetrics(samplesMs, failures, config.TrimThreshold)

	span.SetAttributes(
		attribute.Int("perf.samples", metrics.SampleCount),
		attribute.Int("perf.failures", metrics.FailureCount),
		attribute.Float64("perf.mean_ms", metrics.MeanMs),
		attribute.Float64("perf.p95_ms", metrics.P95Ms),
	)
	span.SetStatus(codes.Ok, "measurement completed")

	return metrics, nil
}

// runWarmup executes the discarded warmup runs.
func (s *Sampler) runWarmup(ctx context.Context, invoke InvokeFunc, config *Config) {
	for i := 0; i < config.WarmupRuns; i++ {
		if ctx.Err() != nil {
			return
		}
		if err := invoke(ctx); err != nil {
			s.logger.Warn("warmup run failed",
				slog.Int("run", i+1),
				slog.Int("warmup_runs", config.WarmupRuns),
				slog.String("error", err.Error()),
			)
		}
	}
}

// runMeasurement executes the timed runs, returning surviving samples
// in run order and the failure count.
func (s *Sampler) runMeasurement(ctx context.Context, invoke InvokeFunc, config *Config) ([]float64, int) {
	samplesMs := make([]float64, 0, config.MeasurementRuns)
	var failures int

	for i := 0; i < config.MeasurementRuns; i++ {
		if ctx.Err() != nil {
			failures++
			continue
		}

		start := time.Now()
		err := invoke(ctx)
		elapsed := time.Since(start)

		if err != nil {
			failures++
			s.logger.Debug("measurement run failed",
				slog.Int("run", i+1),
				slog.String("error", err.Error()),
			)
			continue
		}
		samplesMs = append(samplesMs, float64(elapsed)/float64(time.Millisecond))
	}

	return samplesMs, failures
}
