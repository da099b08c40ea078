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
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/nlqbench/pkg/ux"
	"github.com/AleutianAI/nlqbench/services/harness/baseline"
	"github.com/AleutianAI/nlqbench/services/harness/config"
	"github.com/AleutianAI/nlqbench/services/harness/question"
	"github.com/AleutianAI/nlqbench/services/harness/runner"
	"github.com/AleutianAI/nlqbench/services/harness/secrets"
	"github.com/AleutianAI/nlqbench/services/harness/server"
	"github.com/AleutianAI/nlqbench/services/harness/telemetry"
)

// runServe hosts the dashboard. With --questions it also watches the
// bank and re-runs the benchmark on every change, streaming progress
// to connected websocket clients and persisting each finished run.
func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	// Without a configured directory the store lives in memory: the
	// dashboard still shows this process's runs, they just don't
	// survive a restart.
	storeCfg := baseline.InMemoryConfig()
	if cfg.Baseline.Dir != "" {
		storeCfg = baseline.DefaultConfig(cfg.Baseline.Dir)
	}
	st, err := baseline.Open(storeCfg)
	if err != nil {
		return fmt.Errorf("open baseline store: %w", err)
	}
	defer st.Close()

	srv, err := server.New(cfg.Server, st, server.WithServiceName(cfg.Telemetry.ServiceName))
	if err != nil {
		return err
	}

	if serveQuestions != "" {
		if err := startBenchLoop(ctx, cfg, st, srv); err != nil {
			return err
		}
	}

	ux.Title("NL-to-SQL Benchmark Dashboard")
	ux.Info("listening on " + cfg.Server.Addr)
	if serveQuestions != "" {
		ux.Info("watching " + serveQuestions + " for question bank changes")
	}
	return srv.Run(ctx)
}

// startBenchLoop builds the benchmark stack once and arranges a fresh
// run for every question bank change (and at startup when requested).
// Run progress feeds the dashboard; finished runs land in the store.
func startBenchLoop(ctx context.Context, cfg *config.Config, st *baseline.Store, srv *server.Server) error {
	secretStore, err := secrets.NewStore()
	if err != nil {
		return fmt.Errorf("init secrets store: %w", err)
	}
	go func() {
		<-ctx.Done()
		secretStore.Destroy()
	}()

	adapters, err := buildAdapters(cfg, secretStore)
	if err != nil {
		return err
	}

	events := make(chan runner.Event, 256)
	r, err := runner.New(*cfg, adapters, runner.WithEvents(events))
	if err != nil {
		return err
	}
	go srv.Consume(events)

	// One run at a time. A change arriving mid-run is skipped; the
	// next change picks up the new bank.
	var running atomic.Bool
	trigger := func(bank *question.Bank) {
		if !running.CompareAndSwap(false, true) {
			slog.Warn("benchmark already in progress, skipping triggered run")
			return
		}
		go func() {
			defer running.Store(false)
			rep, err := r.Run(ctx, bank)
			if err != nil {
				slog.Error("triggered benchmark run failed", "error", err)
				return
			}
			if err := st.Put(ctx, rep); err != nil {
				slog.Error("failed to store run", "run_id", rep.RunID, "error", err)
				return
			}
			slog.Info("triggered run stored", "run_id", rep.RunID)
		}()
	}

	if runOnStart {
		bank, err := question.Load(serveQuestions)
		if err != nil {
			return err
		}
		trigger(bank)
	}

	go func() {
		err := question.Watch(ctx, serveQuestions, trigger)
		if err != nil {
			slog.Error("question bank watch stopped", "error", err)
		}
	}()
	return nil
}
