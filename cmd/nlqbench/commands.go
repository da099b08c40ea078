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
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/nlqbench/pkg/logging"
	"github.com/AleutianAI/nlqbench/pkg/ux"
)

// --- Global Command Variables ---
var (
	configPath       string
	personalityLevel string // UX personality level (full/standard/minimal/machine)
	verbose          bool
	logDir           string

	// appLogger backs slog for the lifetime of the process. Closed in
	// PersistentPostRun so file logs are flushed.
	appLogger *logging.Logger

	// run flags
	questionsPath string
	runDatabase   string
	filterDomain  string
	filterLevels  []string
	filterTiers   []string
	filterTags    []string
	noProgress    bool
	saveBaseline  bool
	skipReport    bool

	// serve flags
	serveAddr      string
	serveQuestions string
	runOnStart     bool

	// compare flags
	rowOrderMatters bool
	colOrderMatters bool
	floatTolerance  float64
	floatMode       string
	stringNorm      string
	nullHandling    string
	datetimeTolMs   int64

	// baseline diff / run regression flags
	latencyTolerance  float64
	accuracyTolerance float64
	costTolerance     float64

	// report flags
	reportOut     string
	reportFormats []string

	rootCmd = &cobra.Command{
		Use:   "nlqbench",
		Short: "A benchmark harness for natural-language-to-SQL systems",
		Long: `nlqbench grades NL-to-SQL endpoints side by side: semantic result
equivalence, statistically sound latency, schema-degradation robustness,
and cross-checked self-reported telemetry.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
			level := logging.LevelWarn
			if verbose {
				level = logging.LevelDebug
			}
			appLogger = logging.New(logging.Config{
				Level:   level,
				LogDir:  logDir,
				Service: "cli",
				JSON:    ux.GetPersonality().Level == ux.PersonalityMachine,
			})
			slog.SetDefault(appLogger.Slog())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if appLogger != nil {
				_ = appLogger.Close()
			}
		},
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the full benchmark against every configured endpoint",
		Args:  cobra.NoArgs,
		RunE:  runBenchmark, // Defined in cmd_run.go
	}

	compareCmd = &cobra.Command{
		Use:   "compare [golden.json] [actual.json]",
		Short: "Compare two tabular result files with the semantic comparator",
		Args:  cobra.ExactArgs(2),
		RunE:  runCompare, // Defined in cmd_compare.go
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the live dashboard, re-running the benchmark when the question bank changes",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	// --- Baseline store ---
	baselineCmd = &cobra.Command{
		Use:   "baseline",
		Short: "Inspect and compare stored benchmark runs",
	}
	baselineListCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE:  runBaselineList, // Defined in cmd_baseline.go
	}
	baselineShowCmd = &cobra.Command{
		Use:   "show [run-id]",
		Short: "Render a stored run as markdown",
		Args:  cobra.ExactArgs(1),
		RunE:  runBaselineShow, // Defined in cmd_baseline.go
	}
	baselineDiffCmd = &cobra.Command{
		Use:   "diff [baseline-run-id] [current-run-id or report.json]",
		Short: "Compare a run against a stored baseline and flag regressions",
		Args:  cobra.ExactArgs(2),
		RunE:  runBaselineDiff, // Defined in cmd_baseline.go
	}
	baselineRmCmd = &cobra.Command{
		Use:   "rm [run-id]",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  runBaselineRm, // Defined in cmd_baseline.go
	}

	reportCmd = &cobra.Command{
		Use:   "report [run-id or report.json]",
		Short: "Re-render report artifacts from a stored run or a report file",
		Args:  cobra.ExactArgs(1),
		RunE:  runReport, // Defined in cmd_report.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the nlqbench version",
		Args:  cobra.NoArgs,
		Run:   runVersion, // Defined in main.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml",
		"Path to the harness configuration file")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default), standard, minimal, or machine (scripting)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging on stderr")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "",
		"Also write JSON logs to this directory (one file per day)")

	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&questionsPath, "questions", "q", "questions.yaml",
		"Question bank file or directory")
	runCmd.Flags().StringVar(&runDatabase, "database", "", "Override run.database from the config")
	runCmd.Flags().StringVar(&filterDomain, "domain", "", "Only run questions from this domain")
	runCmd.Flags().StringSliceVar(&filterLevels, "complexity", nil,
		"Only run questions at these complexity levels (L1..L6)")
	runCmd.Flags().StringSliceVar(&filterTiers, "tier", nil,
		"Only run questions at these schema-quality tiers (high, medium, low)")
	runCmd.Flags().StringSliceVar(&filterTags, "tag", nil, "Only run questions carrying any of these tags")
	runCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the live progress display")
	runCmd.Flags().BoolVar(&saveBaseline, "save", false, "Persist the run to the baseline store")
	runCmd.Flags().BoolVar(&skipReport, "no-report", false, "Skip writing report artifacts")

	rootCmd.AddCommand(compareCmd)
	compareCmd.Flags().BoolVar(&rowOrderMatters, "row-order", true, "Require identical row order")
	compareCmd.Flags().BoolVar(&colOrderMatters, "column-order", true, "Require identical column order")
	compareCmd.Flags().Float64Var(&floatTolerance, "float-tolerance", 1e-6, "Numeric comparison tolerance")
	compareCmd.Flags().StringVar(&floatMode, "float-mode", "relative",
		"Numeric tolerance mode: relative or absolute")
	compareCmd.Flags().StringVar(&stringNorm, "string-norm", "trim",
		"String normalization: none, trim, or lowercase-trim")
	compareCmd.Flags().StringVar(&nullHandling, "null-handling", "strict",
		"NULL grading: strict or lenient")
	compareCmd.Flags().Int64Var(&datetimeTolMs, "datetime-tolerance-ms", 0,
		"Accepted timestamp difference in milliseconds")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Override server.addr from the config")
	serveCmd.Flags().StringVar(&serveQuestions, "questions", "",
		"Question bank to watch; each change triggers a fresh benchmark run")
	serveCmd.Flags().BoolVar(&runOnStart, "run-on-start", false,
		"Run the benchmark once at startup before watching")

	rootCmd.AddCommand(baselineCmd)
	baselineCmd.AddCommand(baselineListCmd)
	baselineCmd.AddCommand(baselineShowCmd)
	baselineCmd.AddCommand(baselineDiffCmd)
	baselineDiffCmd.Flags().Float64Var(&latencyTolerance, "latency-tolerance", -1,
		"Relative latency increase tolerated before flagging (default 0.10)")
	baselineDiffCmd.Flags().Float64Var(&accuracyTolerance, "accuracy-tolerance", -1,
		"Absolute accuracy drop tolerated before flagging (default 0)")
	baselineDiffCmd.Flags().Float64Var(&costTolerance, "cost-tolerance", -1,
		"Relative cost increase tolerated before flagging (default 0.10)")
	baselineCmd.AddCommand(baselineRmCmd)

	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "", "Override report.dir from the config")
	reportCmd.Flags().StringSliceVar(&reportFormats, "format", nil,
		"Override report formats (json, markdown, html)")

	rootCmd.AddCommand(versionCmd)
}
