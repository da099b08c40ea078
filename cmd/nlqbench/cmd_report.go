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
	"github.com/AleutianAI/nlqbench/services/harness/baseline"
	"github.com/AleutianAI/nlqbench/services/harness/report"
	"github.com/AleutianAI/nlqbench/services/harness/runner"
)

// runReport regenerates report files for a past run. The argument is a
// stored run id or a path to a report.json artifact, so reports can be
// re-rendered in new formats without repeating the benchmark. The
// baseline store is only opened for the run-id form.
func runReport(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	var rep *runner.RunReport
	if info, statErr := os.Stat(args[0]); statErr == nil && !info.IsDir() {
		rep, err = report.ReadJSON(args[0])
		if err != nil {
			return fmt.Errorf("failed to read report file %s: %w", args[0], err)
		}
	} else {
		st, openErr := openBaselineStore(cfg)
		if openErr != nil {
			return openErr
		}
		defer st.Close()
		rep, err = st.Get(ctx, args[0])
		if err != nil {
			if errors.Is(err, baseline.ErrNotFound) {
				return fmt.Errorf("no stored run with id %q", args[0])
			}
			return fmt.Errorf("failed to load run %s: %w", args[0], err)
		}
	}

	if reportOut != "" {
		cfg.Report.Dir = reportOut
	}
	if len(reportFormats) > 0 {
		cfg.Report.Formats = reportFormats
	}

	dir, err := report.NewWriter(cfg.Report).Write(ctx, rep)
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	ux.Success("Report written to " + dir)
	return nil
}
