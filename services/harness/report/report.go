// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report renders finished runs: JSON and Markdown files, an
// ECharts HTML page, an optional InfluxDB measurement stream, and an
// optional GCS upload of the report directory.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/nlqbench/pkg/validation"
	"github.com/AleutianAI/nlqbench/services/harness/config"
	"github.com/AleutianAI/nlqbench/services/harness/runner"
)

const tracerName = "nlqbench.harness.report"

// File names written into each run's report directory.
const (
	JSONFile     = "report.json"
	MarkdownFile = "report.md"
	HTMLFile     = "charts.html"
)

type options struct {
	logger *slog.Logger
}

// Option adjusts report construction.
type Option func(*options)

// WithLogger sets the logger. Nil keeps the default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// =============================================================================
// Writer
// =============================================================================

// Writer renders run reports into files under a per-run directory.
type Writer struct {
	cfg    config.ReportConfig
	logger *slog.Logger
}

// NewWriter creates a writer for the configured formats.
func NewWriter(cfg config.ReportConfig, opts ...Option) *Writer {
	o := applyOptions(opts)
	return &Writer{cfg: cfg, logger: o.logger}
}

// Write renders every configured format into <dir>/<run id> and
// returns that directory.
//
// # Inputs
//   - ctx: Tracing context.
//   - rep: The finished run.
//
// # Outputs
//   - string: The run's report directory.
//   - error: Directory creation or render failure. The first failing
//     format aborts; earlier files stay on disk.
func (w *Writer) Write(ctx context.Context, rep *runner.RunReport) (string, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "report.Write")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", rep.RunID),
		attribute.StringSlice("report.formats", w.cfg.Formats),
	)

	// Run ids from loaded report files are untrusted path components.
	if err := validation.ValidateRunID(rep.RunID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("refusing report directory: %w", err)
	}

	dir := filepath.Join(w.cfg.Dir, rep.RunID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("create report directory: %w", err)
	}

	for _, format := range w.cfg.Formats {
		var err error
		switch format {
		case "json":
			err = w.writeJSON(dir, rep)
		case "markdown":
			err = os.WriteFile(filepath.Join(dir, MarkdownFile), []byte(RenderMarkdown(rep)), 0o644)
		case "html":
			err = w.writeHTML(dir, rep)
		default:
			err = fmt.Errorf("%w: %s", ErrUnknownFormat, format)
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("render %s: %w", format, err)
		}
		w.logger.DebugContext(ctx, "rendered report file", "format", format, "dir", dir)
	}

	w.logger.InfoContext(ctx, "wrote run report",
		"run_id", rep.RunID,
		"dir", dir,
		"formats", w.cfg.Formats)
	span.SetStatus(codes.Ok, "")
	return dir, nil
}

func (w *Writer) writeJSON(dir string, rep *runner.RunReport) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, JSONFile), append(data, '\n'), 0o644)
}

func (w *Writer) writeHTML(dir string, rep *runner.RunReport) error {
	f, err := os.Create(filepath.Join(dir, HTMLFile))
	if err != nil {
		return err
	}
	defer f.Close()
	return renderCharts(rep).Render(f)
}

// ReadJSON loads a previously written report.json, for compare and
// re-render flows that start from a file instead of a live run.
func ReadJSON(path string) (*runner.RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var rep runner.RunReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}
	return &rep, nil
}
