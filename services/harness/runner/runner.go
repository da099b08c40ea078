// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runner drives benchmark runs: it fans questions out across a
// bounded worker pool, feeds each translation through screening,
// execution, comparison, sampling, and self-report validation, and
// assembles the canonical RunReport. Single-question failures are
// recorded in the report; only configuration faults and cancellation
// abort a run.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/nlqbench/services/harness/config"
	"github.com/AleutianAI/nlqbench/services/harness/consistency"
	"github.com/AleutianAI/nlqbench/services/harness/cost"
	"github.com/AleutianAI/nlqbench/services/harness/dbexec"
	"github.com/AleutianAI/nlqbench/services/harness/perf"
	"github.com/AleutianAI/nlqbench/services/harness/question"
	"github.com/AleutianAI/nlqbench/services/harness/result"
	"github.com/AleutianAI/nlqbench/services/harness/robustness"
	"github.com/AleutianAI/nlqbench/services/harness/sqlinspect"
	"github.com/AleutianAI/nlqbench/services/harness/sut"
	"github.com/AleutianAI/nlqbench/services/harness/tokenest"
)

const tracerName = "nlqbench.harness.runner"

// boundEndpoint pairs an adapter with its configuration and rate gate.
type boundEndpoint struct {
	cfg     config.EndpointConfig
	adapter sut.Adapter
	limiter *rate.Limiter
}

// Runner owns one benchmark configuration and its systems under test.
//
// # Thread Safety
//
// A Runner may serve sequential Run calls; each call opens its own
// database executor and resets the consistency history.
type Runner struct {
	cfg       config.Config
	endpoints []boundEndpoint
	sampler   *perf.Sampler
	history   *consistency.History
	validator *consistency.Validator
	estimator *tokenest.Estimator
	logger    *slog.Logger
	events    chan<- Event
}

// Option adjusts runner construction.
type Option func(*Runner)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithEvents streams progress events to ch. Sends never block: when
// the consumer lags, events are dropped rather than stalling
// measurement.
func WithEvents(ch chan<- Event) Option {
	return func(r *Runner) {
		r.events = ch
	}
}

// New builds a runner from validated configuration and constructed
// adapters, ordered as cfg.Endpoints.
//
// # Inputs
//
//   - cfg: Full harness configuration.
//   - adapters: One adapter per cfg.Endpoints entry, same order.
//   - opts: Optional logger and event stream.
//
// # Outputs
//
//   - *Runner: Ready for Run calls.
//   - error: Endpoint/adapter count mismatch or no endpoints.
func New(cfg config.Config, adapters []sut.Adapter, opts ...Option) (*Runner, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	if len(adapters) != len(cfg.Endpoints) {
		return nil, fmt.Errorf("%d adapters for %d endpoints", len(adapters), len(cfg.Endpoints))
	}

	// One limiter per endpoint. A question's warmup and measurement
	// invocations are admitted as one batch so the throttle shapes the
	// long-run request rate without polluting individual samples.
	burst := cfg.Run.WarmupRuns + cfg.Run.MeasurementRuns
	if burst < 1 {
		burst = 1
	}
	endpoints := make([]boundEndpoint, len(adapters))
	for i, a := range adapters {
		limit := rate.Inf
		if rps := cfg.Endpoints[i].RateRPS; rps > 0 {
			limit = rate.Limit(rps)
		}
		endpoints[i] = boundEndpoint{
			cfg:     cfg.Endpoints[i],
			adapter: a,
			limiter: rate.NewLimiter(limit, burst),
		}
	}

	window := cfg.Run.HistoryWindow
	history := consistency.NewHistory(window)
	r := &Runner{
		cfg:       cfg,
		endpoints: endpoints,
		sampler:   perf.NewSampler(),
		history:   history,
		validator: consistency.NewValidator(&cfg.Consistency, history),
		estimator: tokenest.NewEstimator(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// History exposes the consistency accumulator, for baseline snapshot
// persistence.
func (r *Runner) History() *consistency.History {
	return r.history
}

// Run executes the full benchmark against every configured endpoint.
//
// # Description
//
//	Endpoints run one after another so rolling consistency baselines
//	and cost totals stay per-system. Within an endpoint, questions fan
//	out across an errgroup bounded by run.max_workers. The consistency
//	history is reset at run start; every run grades against baselines
//	built only from itself.
//
// # Outputs
//
//   - *RunReport: Complete record, including per-question failures.
//   - error: Configuration faults, database faults, or cancellation.
func (r *Runner) Run(ctx context.Context, bank *question.Bank) (*RunReport, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "runner.Run")
	defer span.End()

	if bank == nil || bank.Len() == 0 {
		span.SetStatus(codes.Error, ErrEmptyBank.Error())
		return nil, ErrEmptyBank
	}

	dbName, dbCfg, err := r.database()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	schema, err := r.schemaContext(dbName, dbCfg)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	exec, err := dbexec.Open(ctx, dbexec.Target{
		Name:     dbName,
		Dialect:  dbCfg.Dialect,
		Path:     dbCfg.Path,
		InitFile: dbCfg.InitFile,
	}, dbexec.WithLogger(r.logger))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("open database %s: %w", dbName, err)
	}
	defer exec.Close()

	runID := uuid.New().String()
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.String("run.database", dbName),
		attribute.Int("run.questions", bank.Len()),
		attribute.Int("run.endpoints", len(r.endpoints)),
	)

	r.history.Reset()
	report := &RunReport{
		RunID:           runID,
		StartedAt:       time.Now().UTC(),
		Database:        dbName,
		Dialect:         dbCfg.Dialect,
		WarmupRuns:      r.cfg.Run.WarmupRuns,
		MeasurementRuns: r.cfg.Run.MeasurementRuns,
	}

	total := bank.Len() * len(r.endpoints)
	var completed atomic.Int64
	r.emit(Event{Type: EventRunStarted, RunID: runID, Total: total})

	r.logger.Info("benchmark run started",
		"run_id", runID,
		"database", dbName,
		"questions", bank.Len(),
		"endpoints", len(r.endpoints),
		"workers", r.cfg.Run.MaxWorkers,
	)

	for _, ep := range r.endpoints {
		epReport, err := r.runEndpoint(ctx, ep, exec, schema, bank, runID, total, &completed)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		report.Endpoints = append(report.Endpoints, *epReport)
	}

	report.FinishedAt = time.Now().UTC()
	r.emit(Event{Type: EventRunFinished, RunID: runID, Completed: total, Total: total})
	r.logger.Info("benchmark run finished",
		"run_id", runID,
		"duration", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
	)
	span.SetStatus(codes.Ok, "")
	return report, nil
}

// runEndpoint grades the whole bank against one system under test.
func (r *Runner) runEndpoint(
	ctx context.Context,
	ep boundEndpoint,
	exec *dbexec.Executor,
	schema sut.SchemaContext,
	bank *question.Bank,
	runID string,
	total int,
	completed *atomic.Int64,
) (*EndpointReport, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "runner.runEndpoint")
	defer span.End()
	span.SetAttributes(attribute.String("endpoint", ep.cfg.Name))

	tracker := cost.NewTracker(cost.WithLogger(r.logger))
	questions := bank.Questions()
	results := make([]QuestionResult, len(questions))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Run.MaxWorkers)
	for i, q := range questions {
		i, q := i, q
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			r.emit(Event{
				Type: EventQuestionStarted, RunID: runID,
				Endpoint: ep.cfg.Name, QuestionID: q.ID,
				Completed: int(completed.Load()), Total: total,
			})

			results[i] = r.runQuestion(gCtx, ep, exec, schema, q, tracker)
			if err := gCtx.Err(); err != nil {
				// Cancellation mid-question aborts rather than
				// masquerading as a question failure.
				return err
			}

			done := int(completed.Add(1))
			res := results[i]
			r.emit(Event{
				Type: EventQuestionFinished, RunID: runID,
				Endpoint: ep.cfg.Name, QuestionID: q.ID,
				Result: &res, Completed: done, Total: total,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("endpoint %s aborted: %w", ep.cfg.Name, err)
	}

	epReport := &EndpointReport{
		Endpoint:        ep.cfg.Name,
		Kind:            ep.cfg.Kind,
		Model:           ep.cfg.Model,
		Results:         results,
		Summary:         summarize(results, tracker.Summary()),
		HistorySnapshot: r.history.Snapshot(),
	}
	r.emit(Event{
		Type: EventEndpointFinished, RunID: runID, Endpoint: ep.cfg.Name,
		Completed: int(completed.Load()), Total: total,
	})
	r.logger.Info("endpoint finished",
		"endpoint", ep.cfg.Name,
		"accuracy", epReport.Summary.Accuracy,
		"failed", epReport.Summary.Failed,
	)
	return epReport, nil
}

// runQuestion takes one question through the full grading pipeline.
// Every failure path returns a populated result; nothing here aborts
// the run.
func (r *Runner) runQuestion(
	ctx context.Context,
	ep boundEndpoint,
	exec *dbexec.Executor,
	schema sut.SchemaContext,
	q question.Question,
	tracker *cost.Tracker,
) QuestionResult {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "runner.runQuestion")
	defer span.End()
	span.SetAttributes(
		attribute.String("endpoint", ep.cfg.Name),
		attribute.String("question.id", q.ID),
	)

	res := QuestionResult{
		QuestionID: q.ID,
		Endpoint:   ep.cfg.Name,
		Complexity: q.Complexity,
		Tier:       q.Tier,
	}
	failed := func(format string, args ...any) QuestionResult {
		res.Error = fmt.Sprintf(format, args...)
		res.Verdict = result.Verdict{Match: false, Reason: res.Error}
		span.SetStatus(codes.Error, res.Error)
		r.logger.Warn("question failed",
			"endpoint", ep.cfg.Name, "question", q.ID, "error", res.Error)
		return res
	}

	goldenSQL, ok := q.Golden(exec.Dialect())
	if !ok {
		return failed("no golden SQL for dialect %s", exec.Dialect())
	}

	// Admit the whole warmup+measurement batch through the rate gate
	// up front; see New for why.
	invocations := r.cfg.Run.WarmupRuns + r.cfg.Run.MeasurementRuns
	if invocations < 1 {
		invocations = 1
	}
	if err := ep.limiter.WaitN(ctx, invocations); err != nil {
		return failed("rate limiter: %v", err)
	}

	// The sampler owns the repeat loop; the last successful
	// translation is the one graded.
	var (
		lastQuery    sut.GeneratedQuery
		lastReport   *consistency.SelfReport
		lastClientMs float64
	)
	invoke := func(ctx context.Context) error {
		start := time.Now()
		gen, selfRep, err := ep.adapter.Translate(ctx, q, schema)
		if err != nil {
			return err
		}
		lastQuery, lastReport = gen, selfRep
		lastClientMs = float64(time.Since(start)) / float64(time.Millisecond)
		return nil
	}
	metrics, err := r.sampler.Measure(ctx, invoke,
		perf.WithWarmupRuns(r.cfg.Run.WarmupRuns),
		perf.WithMeasurementRuns(r.cfg.Run.MeasurementRuns),
		perf.WithMinSamples(r.cfg.Run.SampleFloor),
	)
	if err != nil {
		return failed("translation sampling: %v", err)
	}
	res.Metrics = metrics
	res.GeneratedSQL = lastQuery.SQL

	// Screen before touching the database. A query that does not parse
	// is a mismatch, not a harness failure.
	screen, err := sqlinspect.Screen(ctx, lastQuery.SQL)
	if err != nil {
		return failed("screen generated query: %v", err)
	}
	res.Screen = screen
	if !screen.Valid {
		res.Verdict = result.Verdict{Match: false, Reason: "generated query does not parse"}
	} else {
		res.Verdict = r.grade(ctx, exec, schema.Database, q, goldenSQL, lastQuery.SQL, &res)
		if res.Error != "" {
			return res
		}
	}

	// Cross-check the self-report against history, then feed this
	// question into the rolling baselines for the ones after it.
	key := consistency.Key{Complexity: q.Complexity.String(), Endpoint: ep.cfg.Name}
	estimate := r.estimator.Estimate(q.Text, schema.Schema)
	res.Findings = append(
		r.validator.ValidateTiming(lastReport, lastClientMs, key),
		r.validator.ValidateTokenUsage(lastReport, estimate, key)...,
	)
	if lastReport != nil {
		r.history.RecordTiming(key, lastReport.TotalTimeMs)
		if lastReport.Tokens != nil && estimate > 0 {
			r.history.RecordTokenRatio(key, float64(lastReport.Tokens.TotalTokens)/float64(estimate))
		}
		if lastReport.Tokens != nil {
			res.Cost = tracker.Record(r.costModel(ep.cfg), *lastReport.Tokens)
		}
	}

	span.SetAttributes(attribute.Bool("verdict.match", res.Verdict.Match))
	span.SetStatus(codes.Ok, "")
	return res
}

// grade executes golden and generated SQL and compares the results.
// Harness-side faults land in res.Error; SUT-side faults come back as
// mismatched verdicts.
func (r *Runner) grade(
	ctx context.Context,
	exec *dbexec.Executor,
	database string,
	q question.Question,
	goldenSQL, generatedSQL string,
	res *QuestionResult,
) result.Verdict {
	timeout := time.Duration(r.cfg.Run.QueryTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	golden, err := exec.Golden(qctx, q.ID, goldenSQL)
	if err != nil {
		res.Error = fmt.Sprintf("golden query: %v", err)
		return result.Verdict{Match: false, Reason: res.Error}
	}

	actual, err := exec.Run(qctx, generatedSQL)
	if err != nil {
		return result.Verdict{Match: false, Reason: fmt.Sprintf("generated query failed to execute: %v", err)}
	}

	rules, err := r.cfg.Rules.Resolve(database, q.ID, q.Rules)
	if err != nil {
		res.Error = fmt.Sprintf("resolve comparison rules: %v", err)
		return result.Verdict{Match: false, Reason: res.Error}
	}

	verdict, err := result.Compare(golden, actual, rules)
	if err != nil {
		res.Error = fmt.Sprintf("compare results: %v", err)
		return result.Verdict{Match: false, Reason: res.Error}
	}
	return verdict
}

// costModel picks the pricing key for an endpoint.
func (r *Runner) costModel(cfg config.EndpointConfig) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return cfg.Kind
}

// database resolves which configured backend this run executes on.
func (r *Runner) database() (string, config.DatabaseConfig, error) {
	if name := r.cfg.Run.Database; name != "" {
		dbCfg, ok := r.cfg.Databases[name]
		if !ok {
			return "", config.DatabaseConfig{}, fmt.Errorf("%w: %q", ErrUnknownDatabase, name)
		}
		return name, dbCfg, nil
	}
	if len(r.cfg.Databases) == 1 {
		for name, dbCfg := range r.cfg.Databases {
			return name, dbCfg, nil
		}
	}
	return "", config.DatabaseConfig{}, ErrAmbiguousDatabase
}

// schemaContext builds the prompt context endpoints receive. When no
// schema text is configured, the init script doubles as the schema.
func (r *Runner) schemaContext(dbName string, dbCfg config.DatabaseConfig) (sut.SchemaContext, error) {
	text, err := dbCfg.SchemaText()
	if err != nil {
		return sut.SchemaContext{}, err
	}
	if text == "" && dbCfg.InitFile != "" {
		data, err := os.ReadFile(dbCfg.InitFile)
		if err != nil {
			return sut.SchemaContext{}, fmt.Errorf("read init script for schema context: %w", err)
		}
		text = string(data)
	}
	return sut.SchemaContext{Database: dbName, Dialect: dbCfg.Dialect, Schema: text}, nil
}

// emit sends an event without ever blocking the run.
func (r *Runner) emit(ev Event) {
	if r.events == nil {
		return
	}
	select {
	case r.events <- ev:
	default:
		r.logger.Debug("event dropped", "type", ev.Type.String())
	}
}

// summarize aggregates per-question results into the endpoint summary.
func summarize(results []QuestionResult, costSummary cost.Summary) EndpointSummary {
	summary := EndpointSummary{
		Questions: len(results),
		Cost:      costSummary,
	}

	var tagged []robustness.TaggedVerdict
	var pooled []float64
	graded := 0
	for _, res := range results {
		if res.Failed() {
			summary.Failed++
		} else {
			graded++
			if res.Verdict.Match {
				summary.Matched++
			}
		}
		tagged = append(tagged, robustness.TaggedVerdict{Tier: res.Tier, Verdict: res.Verdict})
		if res.Metrics != nil {
			pooled = append(pooled, res.Metrics.SamplesMs...)
		}
		for _, f := range res.Findings {
			if f.Passed {
				continue
			}
			if summary.FindingsBySeverity == nil {
				summary.FindingsBySeverity = make(map[string]int)
			}
			summary.FindingsBySeverity[f.Severity.String()]++
		}
	}
	if graded > 0 {
		summary.Accuracy = float64(summary.Matched) / float64(graded)
	}
	summary.Robustness = robustness.Aggregate(tagged)
	summary.Latency = perf.Summarize(pooled, 0)
	return summary
}
