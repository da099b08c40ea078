// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command nlqbench benchmarks natural-language-to-SQL systems.
//
// A run loads a YAML question bank, asks each configured endpoint to
// translate every question, executes golden and generated SQL against
// the configured database, and grades the results for accuracy,
// latency, robustness, and self-report consistency.
//
// Usage:
//
//	nlqbench run --config config.yaml --questions questions.yaml
//	nlqbench serve --config config.yaml
//	nlqbench compare golden.json actual.json
//	nlqbench baseline list
//	nlqbench baseline diff <baseline-run-id> <current-run-id>
//	nlqbench report <run-id>
//
// Exit codes: 0 on a clean run, 1 when the benchmark finished but
// questions failed, mismatched, or regressed against a baseline, and
// 2 on a hard error.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/nlqbench/pkg/ux"
	"github.com/AleutianAI/nlqbench/services/harness/baseline"
	"github.com/AleutianAI/nlqbench/services/harness/config"
)

// Set at build time via -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

// errFailuresPresent marks a completed invocation whose outcome was
// negative: failed questions, mismatches, or a baseline regression.
// It maps to exit code 1; every other error maps to 2.
var errFailuresPresent = errors.New("failures present")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errFailuresPresent) {
			os.Exit(1)
		}
		ux.Error(err.Error())
		os.Exit(2)
	}
}

// loadConfig reads the file named by the persistent --config flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// openBaselineStore opens the persistent run store configured under
// baseline.dir.
func openBaselineStore(cfg *config.Config) (*baseline.Store, error) {
	if cfg.Baseline.Dir == "" {
		return nil, errors.New("baseline.dir is not configured")
	}
	return baseline.Open(baseline.DefaultConfig(cfg.Baseline.Dir))
}

func runVersion(_ *cobra.Command, _ []string) {
	fmt.Printf("nlqbench %s (%s)\n", version, commit)
}
