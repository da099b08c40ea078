// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/nlqbench/pkg/ux"
	"github.com/AleutianAI/nlqbench/services/harness/config"
	"github.com/AleutianAI/nlqbench/services/harness/question"
	"github.com/AleutianAI/nlqbench/services/harness/report"
	"github.com/AleutianAI/nlqbench/services/harness/result"
	"github.com/AleutianAI/nlqbench/services/harness/runner"
	"github.com/AleutianAI/nlqbench/services/harness/secrets"
	"github.com/AleutianAI/nlqbench/services/harness/sqlinspect"
	"github.com/AleutianAI/nlqbench/services/harness/sut"
	"github.com/AleutianAI/nlqbench/services/harness/telemetry"
)

func runBenchmark(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runDatabase != "" {
		cfg.Run.Database = runDatabase
	}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	bank, err := loadBank(questionsPath)
	if err != nil {
		return err
	}

	ux.Title("NL-to-SQL Benchmark")
	ux.Info(fmt.Sprintf("%d questions against %d endpoints (%d warmup + %d measured runs each)",
		bank.Len(), len(cfg.Endpoints), cfg.Run.WarmupRuns, cfg.Run.MeasurementRuns))

	rep, err := executeRun(ctx, cfg, bank)
	if err != nil {
		return err
	}

	printRunSummary(rep)

	if !skipReport {
		if err := writeArtifacts(ctx, cfg, rep); err != nil {
			return err
		}
	}
	if saveBaseline {
		if err := persistRun(ctx, cfg, rep); err != nil {
			return err
		}
	}

	if rep.AnyFailures() {
		return errFailuresPresent
	}
	return nil
}

// executeRun builds the adapter set and runner, wires the progress
// display to the event stream, and executes the benchmark.
func executeRun(ctx context.Context, cfg *config.Config, bank *question.Bank) (*runner.RunReport, error) {
	store, err := secrets.NewStore()
	if err != nil {
		return nil, fmt.Errorf("init secrets store: %w", err)
	}
	defer store.Destroy()

	adapters, err := buildAdapters(cfg, store)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan runner.Event, 256)
	r, err := runner.New(*cfg, adapters, runner.WithEvents(events))
	if err != nil {
		return nil, err
	}

	// The display owns the receive side; the runner drops events when
	// nobody keeps up, so a broken display never stalls measurement.
	displayDone := make(chan struct{})
	go func() {
		defer close(displayDone)
		if ux.ShouldShowProgress() && !noProgress {
			if err := runProgress(events, cancel); err != nil {
				slog.Warn("progress display failed", "error", err)
				drainEvents(events)
			}
			return
		}
		printEvents(events)
	}()

	rep, runErr := r.Run(ctx, bank)
	close(events)
	<-displayDone

	if runErr != nil {
		return nil, runErr
	}
	return rep, nil
}

// buildAdapters resolves each endpoint's API key into the enclave and
// constructs its adapter, in config order.
func buildAdapters(cfg *config.Config, store *secrets.Store) ([]sut.Adapter, error) {
	adapters := make([]sut.Adapter, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		if ep.APIKeyEnv != "" {
			if err := store.ResolveEnv(ep.Name, ep.APIKeyEnv); err != nil {
				return nil, fmt.Errorf("endpoint %s: %w", ep.Name, err)
			}
		}
		adapter, err := sut.New(ep, store)
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", ep.Name, err)
		}
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}

// loadBank loads the question bank and applies the command-line
// filters.
func loadBank(path string) (*question.Bank, error) {
	bank, err := question.Load(path)
	if err != nil {
		return nil, err
	}

	filter := question.Filter{Domain: filterDomain, Tags: filterTags}
	for _, s := range filterLevels {
		filter.Levels = append(filter.Levels, sqlinspect.ParseLevel(s))
	}
	for _, s := range filterTiers {
		filter.Tiers = append(filter.Tiers, result.ParseQualityTier(s))
	}
	bank = bank.Filter(filter)
	if bank.Len() == 0 {
		return nil, errors.New("no questions left after filtering")
	}
	return bank, nil
}

// printEvents renders the event stream as one status line per finished
// question. Used in machine and minimal personalities and with
// --no-progress.
func printEvents(events <-chan runner.Event) {
	for ev := range events {
		switch ev.Type {
		case runner.EventRunStarted:
			ux.Muted(fmt.Sprintf("run %s started", ev.RunID))
		case runner.EventQuestionFinished:
			if ev.Result == nil {
				continue
			}
			icon, reason := statusOf(ev.Result)
			ux.QuestionStatus(fmt.Sprintf("%s/%s", ev.Endpoint, ev.QuestionID), icon, reason)
		case runner.EventEndpointFinished:
			ux.Muted(fmt.Sprintf("endpoint %s finished", ev.Endpoint))
		}
	}
}

// drainEvents discards remaining events after a display failure so the
// channel close is still observed.
func drainEvents(events <-chan runner.Event) {
	for range events {
	}
}

func statusOf(res *runner.QuestionResult) (ux.Icon, string) {
	switch {
	case res.Failed():
		return ux.IconError, res.Error
	case !res.Verdict.Match:
		return ux.IconWarning, res.Verdict.Reason
	default:
		return ux.IconSuccess, ""
	}
}

// printRunSummary writes the per-endpoint outcome table after a run.
func printRunSummary(rep *runner.RunReport) {
	duration := rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond)
	ux.Info(fmt.Sprintf("run %s finished in %s", rep.RunID, duration))

	var matched, failed, flagged, total int
	for _, ep := range rep.Endpoints {
		s := ep.Summary
		total += s.Questions
		matched += s.Matched
		failed += s.Failed
		for _, n := range s.FindingsBySeverity {
			flagged += n
		}

		line := fmt.Sprintf("%s: accuracy %.1f%% (%d/%d)", ep.Endpoint, s.Accuracy*100, s.Matched, s.Questions)
		if s.Latency != nil {
			line += fmt.Sprintf(", p95 %.1f ms", s.Latency.P95Ms)
		}
		if s.Robustness.Available && !s.Robustness.Undefined {
			line += fmt.Sprintf(", robustness %.3f", s.Robustness.Value)
		}
		if s.Cost.TotalCost > 0 {
			line += fmt.Sprintf(", cost $%.4f", s.Cost.TotalCost)
		}
		if s.Failed > 0 {
			ux.Warning(line + fmt.Sprintf(" [%d failed]", s.Failed))
		} else {
			ux.Success(line)
		}
	}
	ux.Summary(matched, failed, flagged, total)
}

// writeArtifacts renders configured report formats and pushes them to
// the optional sinks. Sink faults warn rather than fail: the run
// already happened and its outcome should not be masked.
func writeArtifacts(ctx context.Context, cfg *config.Config, rep *runner.RunReport) error {
	writer := report.NewWriter(cfg.Report)
	dir, err := writer.Write(ctx, rep)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	ux.Success("report written to " + dir)

	if cfg.Report.Influx.Enabled {
		if err := publishInflux(ctx, cfg, rep); err != nil {
			ux.Warning("influx publish failed: " + err.Error())
		}
	}
	if cfg.Report.GCS.Enabled {
		if err := uploadReports(ctx, cfg, dir); err != nil {
			ux.Warning("report upload failed: " + err.Error())
		}
	}
	return nil
}

func publishInflux(ctx context.Context, cfg *config.Config, rep *runner.RunReport) error {
	sink, err := report.NewInfluxSink(cfg.Report.Influx)
	if err != nil {
		return err
	}
	defer sink.Close()
	return sink.Publish(ctx, rep)
}

func uploadReports(ctx context.Context, cfg *config.Config, dir string) error {
	up, err := report.NewUploader(ctx, cfg.Report.GCS)
	if err != nil {
		return err
	}
	defer up.Close()
	return up.UploadDir(ctx, dir)
}

// persistRun stores the finished run in the baseline store.
func persistRun(ctx context.Context, cfg *config.Config, rep *runner.RunReport) error {
	st, err := openBaselineStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Put(ctx, rep); err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}
	ux.Success("run saved to baseline store as " + rep.RunID)
	return nil
}
