// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dbexec runs SQL against the benchmark databases and scans
// results into the comparator's tabular model. Golden and generated
// queries go through the same path so systematic scan differences
// cancel out of every comparison.
package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/nlqbench/services/harness/result"
)

const tracerName = "nlqbench.harness.dbexec"

var (
	// ErrUnknownDialect indicates a dialect with no registered driver.
	ErrUnknownDialect = errors.New("unknown database dialect")

	// ErrClosed indicates use after Close.
	ErrClosed = errors.New("executor is closed")
)

// Target describes one database to execute against.
type Target struct {
	// Name labels the database in logs and spans.
	Name string

	// Dialect is "sqlite" or "duckdb".
	Dialect string

	// Path is the database file, or ":memory:" for a fresh in-memory
	// database.
	Path string

	// InitFile is an optional SQL script executed on open, typically
	// schema and fixtures for in-memory databases.
	InitFile string
}

// memory reports whether the target is an in-memory database.
func (t Target) memory() bool {
	return t.Path == "" || t.Path == ":memory:"
}

// Executor owns one database connection pool and a golden-result
// cache.
//
// Thread Safety: Safe for concurrent use. In-memory targets are
// pinned to a single connection, which serializes their queries.
type Executor struct {
	db      *sql.DB
	target  Target
	logger  *slog.Logger
	closed  bool
	closeMu sync.Mutex

	mu     sync.Mutex
	golden map[string]result.Tabular
}

// Option adjusts executor construction.
type Option func(*Executor)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// driverName maps a dialect to its database/sql driver.
func driverName(dialect string) (string, error) {
	switch dialect {
	case "sqlite":
		return "sqlite3", nil
	case "duckdb":
		return "duckdb", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDialect, dialect)
	}
}

// Open connects to a target, verifies the connection, and runs its
// init script.
//
// Inputs:
//   - ctx: Bounds the ping and init execution.
//   - target: The database to open.
//   - opts: Optional logger override.
//
// Outputs:
//   - *Executor: Ready for Run and Golden calls. Close it.
//   - error: Unknown dialect, unreachable database, or failed init.
func Open(ctx context.Context, target Target, opts ...Option) (*Executor, error) {
	driver, err := driverName(target.Dialect)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, target.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", target.Dialect, err)
	}

	// An in-memory database exists per connection; a pool of them
	// would scatter the schema across invisible silos.
	if target.memory() {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", target.Dialect, err)
	}

	e := &Executor{
		db:     db,
		target: target,
		logger: slog.Default(),
		golden: make(map[string]result.Tabular),
	}
	for _, opt := range opts {
		opt(e)
	}

	if target.InitFile != "" {
		script, err := os.ReadFile(target.InitFile)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("read init script %s: %w", target.InitFile, err)
		}
		if _, err := db.ExecContext(ctx, string(script)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("run init script %s: %w", target.InitFile, err)
		}
	}

	e.logger.Info("database opened",
		"database", target.Name,
		"dialect", target.Dialect,
		"path", target.Path,
	)
	return e, nil
}

// Dialect returns the target's dialect.
func (e *Executor) Dialect() string {
	return e.target.Dialect
}

// Close releases the connection pool.
func (e *Executor) Close() error {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.db.Close()
}

// Run executes a query and scans the full result set.
//
// Description:
//
//	Timeouts come from the caller's context deadline; the runner wraps
//	each execution in the configured query timeout. Failures return
//	the driver error so callers can distinguish cancellation from SQL
//	faults.
//
// Outputs:
//   - result.Tabular: Columns with semantic types, rows with NULLs
//     preserved as nil cells.
//   - error: Driver or scan failure.
func (e *Executor) Run(ctx context.Context, query string) (result.Tabular, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "dbexec.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.name", e.target.Name),
		attribute.String("db.dialect", e.target.Dialect),
	)

	if e.isClosed() {
		return result.Tabular{}, ErrClosed
	}

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return result.Tabular{}, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	tab, err := scanRows(rows)
	if err != nil {
		return result.Tabular{}, err
	}

	span.SetAttributes(
		attribute.Int("db.rows", tab.RowCount()),
		attribute.Int("db.columns", len(tab.Columns)),
	)
	return tab, nil
}

// Golden executes the reference query for a question, serving repeats
// from cache. Warmup and measurement loops re-grade against the same
// golden result without re-running it.
func (e *Executor) Golden(ctx context.Context, questionID, query string) (result.Tabular, error) {
	e.mu.Lock()
	cached, ok := e.golden[questionID]
	e.mu.Unlock()
	if ok {
		return cached, nil
	}

	tab, err := e.Run(ctx, query)
	if err != nil {
		return result.Tabular{}, fmt.Errorf("golden query for %s: %w", questionID, err)
	}

	e.mu.Lock()
	e.golden[questionID] = tab
	e.mu.Unlock()
	return tab, nil
}

// ResetGolden drops the golden cache, for bank reloads in serve mode.
func (e *Executor) ResetGolden() {
	e.mu.Lock()
	e.golden = make(map[string]result.Tabular)
	e.mu.Unlock()
}

func (e *Executor) isClosed() bool {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	return e.closed
}
