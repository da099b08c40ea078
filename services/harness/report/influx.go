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
	"errors"
	"fmt"
	"log/slog"
	"os"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/nlqbench/services/harness/config"
	"github.com/AleutianAI/nlqbench/services/harness/consistency"
	"github.com/AleutianAI/nlqbench/services/harness/runner"
)

// Measurement names written to the bucket.
const (
	runMeasurement      = "nlq_run"
	questionMeasurement = "nlq_question"
)

// InfluxSink streams finished runs to an InfluxDB bucket, one endpoint
// summary point and one point per question, so dashboards can track
// accuracy and latency across nightly runs.
type InfluxSink struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	bucket string
	logger *slog.Logger
}

// NewInfluxSink builds the sink from configuration. The API token is
// read from the environment variable the config names; the client
// itself dials lazily on the first write.
func NewInfluxSink(cfg config.InfluxConfig, opts ...Option) (*InfluxSink, error) {
	o := applyOptions(opts)

	if cfg.URL == "" {
		return nil, errors.New("influxdb url not configured")
	}
	if cfg.TokenEnv == "" {
		return nil, fmt.Errorf("%w: token_env not set", ErrMissingToken)
	}
	token := os.Getenv(cfg.TokenEnv)
	if token == "" {
		return nil, fmt.Errorf("%w: %s is unset or empty", ErrMissingToken, cfg.TokenEnv)
	}

	client := influxdb2.NewClient(cfg.URL, token)
	return &InfluxSink{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		bucket: cfg.Bucket,
		logger: o.logger,
	}, nil
}

// Publish writes the run's points in one blocking call.
func (s *InfluxSink) Publish(ctx context.Context, rep *runner.RunReport) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "report.InfluxPublish")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", rep.RunID))

	points := buildPoints(rep)
	if len(points) == 0 {
		return nil
	}
	if err := s.write.WritePoint(ctx, points...); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("write run %s to influxdb: %w", rep.RunID, err)
	}

	s.logger.InfoContext(ctx, "streamed run to influxdb",
		"run_id", rep.RunID,
		"bucket", s.bucket,
		"points", len(points))
	span.SetAttributes(attribute.Int("influx.points", len(points)))
	span.SetStatus(codes.Ok, "")
	return nil
}

// Close releases the underlying HTTP client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

// buildPoints flattens a report into line-protocol points, all stamped
// with the run's finish time so a run lands as one instant.
func buildPoints(rep *runner.RunReport) []*write.Point {
	var points []*write.Point

	for i := range rep.Endpoints {
		ep := &rep.Endpoints[i]

		fields := map[string]interface{}{
			"questions":        ep.Summary.Questions,
			"matched":          ep.Summary.Matched,
			"failed":           ep.Summary.Failed,
			"accuracy":         ep.Summary.Accuracy,
			"total_cost_usd":   ep.Summary.Cost.TotalCost,
			"total_tokens":     ep.Summary.Cost.TotalTokens,
			"duration_ms":      float64(rep.FinishedAt.Sub(rep.StartedAt).Milliseconds()),
			"warmup_runs":      rep.WarmupRuns,
			"measurement_runs": rep.MeasurementRuns,
		}
		if m := ep.Summary.Latency; m != nil {
			fields["mean_ms"] = m.MeanMs
			fields["p50_ms"] = m.P50Ms
			fields["p95_ms"] = m.P95Ms
			fields["p99_ms"] = m.P99Ms
		}
		if rb := ep.Summary.Robustness; rb.Available && !rb.Undefined {
			fields["robustness"] = rb.Value
		}

		points = append(points, influxdb2.NewPoint(
			runMeasurement,
			map[string]string{
				"run_id":   rep.RunID,
				"endpoint": ep.Endpoint,
				"kind":     ep.Kind,
				"database": rep.Database,
				"dialect":  rep.Dialect,
			},
			fields,
			rep.FinishedAt,
		))

		for j := range ep.Results {
			res := &ep.Results[j]
			qFields := map[string]interface{}{
				"matched":  boolToInt(res.Verdict.Match),
				"failed":   boolToInt(res.Failed()),
				"cost_usd": res.Cost.TotalCost,
				"flagged":  len(consistency.Flagged(res.Findings)),
			}
			if res.Metrics != nil {
				qFields["mean_ms"] = res.Metrics.MeanMs
				qFields["p95_ms"] = res.Metrics.P95Ms
			}
			points = append(points, influxdb2.NewPoint(
				questionMeasurement,
				map[string]string{
					"run_id":      rep.RunID,
					"endpoint":    ep.Endpoint,
					"question_id": res.QuestionID,
					"complexity":  res.Complexity.String(),
					"tier":        res.Tier.String(),
				},
				qFields,
				rep.FinishedAt,
			))
		}
	}
	return points
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
