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
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/nlqbench/pkg/ux"
	"github.com/AleutianAI/nlqbench/pkg/validation"
	"github.com/AleutianAI/nlqbench/services/harness/baseline"
	"github.com/AleutianAI/nlqbench/services/harness/report"
	"github.com/AleutianAI/nlqbench/services/harness/runner"
)

// runBaselineList prints the stored runs, newest first.
func runBaselineList(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openBaselineStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	summaries, err := st.List(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list baseline runs: %w", err)
	}
	if len(summaries) == 0 {
		ux.Muted("No baseline runs stored.")
		return nil
	}

	for _, sum := range summaries {
		fmt.Printf("%s  %s  %s/%s\n",
			sum.RunID, sum.StartedAt.Format("2006-01-02 15:04"), sum.Database, sum.Dialect)
		for _, ep := range sum.Endpoints {
			line := fmt.Sprintf("  %-24s accuracy %5.1f%% (%d/%d)",
				ep.Endpoint, ep.Accuracy*100, ep.Matched, ep.Questions)
			if ep.P95Ms > 0 {
				line += fmt.Sprintf("  p95 %.1f ms", ep.P95Ms)
			}
			if ep.TotalCost > 0 {
				line += fmt.Sprintf("  $%.4f", ep.TotalCost)
			}
			if ep.Failed > 0 {
				line += fmt.Sprintf("  [%d failed]", ep.Failed)
			}
			fmt.Println(line)
		}
	}
	return nil
}

// runBaselineShow renders a stored run as Markdown on stdout.
func runBaselineShow(_ *cobra.Command, args []string) error {
	id, err := validation.SanitizeRunID(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openBaselineStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	rep, err := st.Get(context.Background(), id)
	if err != nil {
		if errors.Is(err, baseline.ErrNotFound) {
			return fmt.Errorf("no stored run with id %q", id)
		}
		return fmt.Errorf("failed to load run %s: %w", id, err)
	}
	fmt.Print(report.RenderMarkdown(rep))
	return nil
}

// runBaselineDiff compares a run against a stored baseline. The current
// side accepts either a stored run id or a path to a report.json written
// by a previous run, so CI can diff a fresh artifact without storing it
// first. Exits 1 when any endpoint regressed beyond tolerance.
func runBaselineDiff(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openBaselineStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	base, err := st.Get(ctx, args[0])
	if err != nil {
		if errors.Is(err, baseline.ErrNotFound) {
			return fmt.Errorf("no stored baseline with id %q", args[0])
		}
		return fmt.Errorf("failed to load baseline %s: %w", args[0], err)
	}

	current, err := resolveRun(ctx, st, args[1])
	if err != nil {
		return err
	}

	diff := baseline.Compare(base, current,
		baseline.WithLatencyTolerance(latencyTolerance),
		baseline.WithAccuracyTolerance(accuracyTolerance),
		baseline.WithCostTolerance(costTolerance))

	fmt.Print(report.RenderDiff(diff))
	if diff.Regressed() {
		ux.Error("Regressions detected.")
		return errFailuresPresent
	}
	ux.Success("No regressions beyond tolerance.")
	return nil
}

// runBaselineRm deletes a stored run.
func runBaselineRm(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openBaselineStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	id, err := validation.SanitizeRunID(args[0])
	if err != nil {
		return err
	}
	if err := st.Delete(context.Background(), id); err != nil {
		if errors.Is(err, baseline.ErrNotFound) {
			return fmt.Errorf("no stored run with id %q", id)
		}
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	ux.Success("Deleted run " + id)
	return nil
}

// resolveRun loads the current side of a diff from the store, or from a
// JSON report file when the argument names one on disk.
func resolveRun(ctx context.Context, st *baseline.Store, arg string) (*runner.RunReport, error) {
	if info, statErr := os.Stat(arg); statErr == nil && !info.IsDir() {
		rep, err := report.ReadJSON(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to read report file %s: %w", arg, err)
		}
		return rep, nil
	}
	rep, err := st.Get(ctx, arg)
	if err != nil {
		if errors.Is(err, baseline.ErrNotFound) {
			return nil, fmt.Errorf("no stored run with id %q", arg)
		}
		return nil, fmt.Errorf("failed to load run %s: %w", arg, err)
	}
	return rep, nil
}
