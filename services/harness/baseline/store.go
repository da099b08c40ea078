// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package baseline persists benchmark runs in a Badger key-value store
// so later runs can be compared against a stored reference.
//
// The store keeps three kinds of records:
//   - run:<id>      the full RunReport, canonical JSON
//   - summary:<id>  a small listing record for fast enumeration
//   - history:<ep>  the endpoint's latest consistency accumulator
//
// An empty directory runs the store in memory, which tests and one-off
// invocations use; a configured directory persists across processes.
package baseline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/mod/semver"

	"github.com/AleutianAI/nlqbench/pkg/validation"
	"github.com/AleutianAI/nlqbench/services/harness/consistency"
	"github.com/AleutianAI/nlqbench/services/harness/runner"
)

const tracerName = "nlqbench.harness.baseline"

// schemaVersion is written under schemaKey on first open. Opening a
// store whose major version differs fails with ErrSchemaMismatch
// rather than silently misreading old records.
const schemaVersion = "v1.0.0"

const (
	schemaKey     = "schema"
	runPrefix     = "run:"
	summaryPrefix = "summary:"
	historyPrefix = "history:"
)

// =============================================================================
// Configuration
// =============================================================================

// Config controls where and how the store runs.
type Config struct {
	// Dir is the store directory. Empty keeps the store in memory.
	Dir string

	// SyncWrites forces an fsync on every write. Slower, but a crash
	// cannot lose an acknowledged run.
	SyncWrites bool

	// GCInterval spaces value-log garbage collection for persistent
	// stores. Zero disables the collector. Ignored in memory mode.
	GCInterval time.Duration

	// GCDiscardRatio is the rewrite threshold handed to Badger.
	GCDiscardRatio float64

	// Logger receives store and Badger-internal logs. Nil uses the
	// default logger.
	Logger *slog.Logger
}

// DefaultConfig returns a persistent configuration rooted at dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration backed by memory only.
func InMemoryConfig() Config {
	return Config{}
}

// -----------------------------------------------------------------------------
// Badger logging bridge
// -----------------------------------------------------------------------------

// badgerLogger adapts slog to Badger's logger interface. Badger emits
// routine compaction chatter at info, so Infof lands at debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

// =============================================================================
// Store
// =============================================================================

// Store is a Badger-backed archive of benchmark runs.
//
// # Thread Safety
//
// Safe for concurrent use. Badger serializes conflicting writes and
// the store adds no mutable state beyond the closed flag.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	dir    string
	closed atomic.Bool

	stopGC chan struct{}
	doneGC chan struct{}
}

// Open creates or opens a store.
//
// # Description
//
//	A persistent store creates its directory on first use and verifies
//	the schema version written by whichever build touched it last; a
//	major-version mismatch refuses to open so a newer layout is never
//	misread. Memory mode skips both.
//
// # Inputs
//   - cfg: Store configuration. A zero value is a valid in-memory
//     store.
//
// # Outputs
//   - *Store: Ready for use. Callers own Close.
//   - error: Directory creation, Badger open, or schema failure.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if cfg.Dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open baseline store: %w", err)
	}

	s := &Store{db: db, logger: logger, dir: cfg.Dir}
	if err := s.checkSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if cfg.Dir != "" && cfg.GCInterval > 0 {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio >= 1 {
			ratio = 0.5
		}
		s.startGC(cfg.GCInterval, ratio)
	}

	logger.Info("baseline store opened",
		"dir", cfg.Dir,
		"in_memory", cfg.Dir == "")
	return s, nil
}

// checkSchema stamps a fresh store and rejects an incompatible one.
// Minor and patch drift is readable; a major bump is not.
func (s *Store) checkSchema() error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return txn.Set([]byte(schemaKey), []byte(schemaVersion))
		}
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		return item.Value(func(val []byte) error {
			stored := string(val)
			if !semver.IsValid(stored) || semver.Major(stored) != semver.Major(schemaVersion) {
				return fmt.Errorf("%w: store has %q, this build writes %s",
					ErrSchemaMismatch, stored, schemaVersion)
			}
			return nil
		})
	})
}

// Close stops the garbage collector and releases the database.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.doneGC
	}
	return s.db.Close()
}

// Dir returns the store directory, empty in memory mode.
func (s *Store) Dir() string {
	return s.dir
}

// -----------------------------------------------------------------------------
// Writes
// -----------------------------------------------------------------------------

// Put stores a finished run: the full report, its listing summary, and
// each endpoint's consistency snapshot, all in one transaction.
func (s *Store) Put(ctx context.Context, report *runner.RunReport) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "baseline.Put")
	defer span.End()

	if s.closed.Load() {
		return ErrClosed
	}
	if report == nil {
		return errors.New("put: nil report")
	}
	// Ids from loaded report files are untrusted key material.
	if err := validation.ValidateRunID(report.RunID); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	span.SetAttributes(attribute.String("run.id", report.RunID))

	runBytes, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", report.RunID, err)
	}
	sumBytes, err := json.Marshal(summarize(report))
	if err != nil {
		return fmt.Errorf("encode summary %s: %w", report.RunID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(runPrefix+report.RunID), runBytes); err != nil {
			return err
		}
		if err := txn.Set([]byte(summaryPrefix+report.RunID), sumBytes); err != nil {
			return err
		}
		for i := range report.Endpoints {
			ep := &report.Endpoints[i]
			if ep.HistorySnapshot == nil {
				continue
			}
			histBytes, err := json.Marshal(ep.HistorySnapshot)
			if err != nil {
				return fmt.Errorf("encode history for %s: %w", ep.Endpoint, err)
			}
			if err := txn.Set([]byte(historyPrefix+ep.Endpoint), histBytes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("store run %s: %w", report.RunID, err)
	}

	s.logger.InfoContext(ctx, "stored benchmark run",
		"run_id", report.RunID,
		"endpoints", len(report.Endpoints),
		"bytes", len(runBytes))
	span.SetStatus(codes.Ok, "")
	return nil
}

// Delete removes a run and its summary. The endpoint history keys stay;
// they always reflect the most recent run, deleted or not.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "baseline.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", id))

	if s.closed.Load() {
		return ErrClosed
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(runPrefix + id)); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		} else if err != nil {
			return err
		}
		if err := txn.Delete([]byte(runPrefix + id)); err != nil {
			return err
		}
		return txn.Delete([]byte(summaryPrefix + id))
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	s.logger.InfoContext(ctx, "deleted benchmark run", "run_id", id)
	return nil
}

// -----------------------------------------------------------------------------
// Reads
// -----------------------------------------------------------------------------

// Get loads a full run report by id.
func (s *Store) Get(ctx context.Context, id string) (*runner.RunReport, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "baseline.Get")
	defer span.End()
	span.SetAttributes(attribute.String("run.id", id))

	if s.closed.Load() {
		return nil, ErrClosed
	}

	var report runner.RunReport
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(runPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &report)
		})
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &report, nil
}

// List returns every stored run's summary, newest first.
func (s *Store) List(ctx context.Context) ([]RunSummary, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "baseline.List")
	defer span.End()

	if s.closed.Load() {
		return nil, ErrClosed
	}

	var summaries []RunSummary
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(summaryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var sum RunSummary
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sum)
			})
			if err != nil {
				return fmt.Errorf("decode summary %s: %w", it.Item().Key(), err)
			}
			summaries = append(summaries, sum)
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].StartedAt.Equal(summaries[j].StartedAt) {
			return summaries[i].StartedAt.After(summaries[j].StartedAt)
		}
		return summaries[i].RunID < summaries[j].RunID
	})
	span.SetAttributes(attribute.Int("runs", len(summaries)))
	return summaries, nil
}

// LatestHistory returns the consistency accumulator persisted by the
// most recent run that exercised the endpoint.
func (s *Store) LatestHistory(ctx context.Context, endpoint string) (*consistency.HistorySnapshot, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "baseline.LatestHistory")
	defer span.End()
	span.SetAttributes(attribute.String("endpoint", endpoint))

	if s.closed.Load() {
		return nil, ErrClosed
	}

	var snap consistency.HistorySnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(historyPrefix + endpoint))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: no history for %s", ErrNotFound, endpoint)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &snap, nil
}

// -----------------------------------------------------------------------------
// Garbage collection
// -----------------------------------------------------------------------------

// startGC runs Badger's value-log collector on a ticker until Close.
// ErrNoRewrite is the normal idle outcome and is not logged.
func (s *Store) startGC(interval time.Duration, ratio float64) {
	s.stopGC = make(chan struct{})
	s.doneGC = make(chan struct{})
	go func() {
		defer close(s.doneGC)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopGC:
				return
			case <-ticker.C:
				if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn("value log gc failed", "error", err)
				}
			}
		}
	}()
}
