// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package question

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the window that coalesces bursts of filesystem
// events into a single reload.
const DefaultDebounce = 100 * time.Millisecond

type watchOptions struct {
	debounce time.Duration
	logger   *slog.Logger
}

// WatchOption adjusts Watch behavior.
type WatchOption func(*watchOptions)

// WithDebounce sets the coalescing window. Non-positive values are
// ignored.
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithWatchLogger sets the logger for reload outcomes. Nil is ignored.
func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(o *watchOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Watch re-loads the bank at path whenever it changes on disk and
// hands each successfully loaded replacement to onChange.
//
// Description:
//
//	Events are debounced so an editor's save burst triggers one reload.
//	A reload that fails to parse or validate is logged and dropped; the
//	caller keeps serving the bank it already has. Watch blocks until
//	ctx is cancelled.
//
// Inputs:
//   - ctx: Cancelling it stops the watch and returns nil.
//   - path: Bank file or directory, as accepted by Load.
//   - onChange: Receives each reloaded bank. Called from the watch
//     goroutine; hand off to a channel if reload handling is slow.
//   - opts: Optional debounce and logger overrides.
//
// Outputs:
//   - error: Non-nil only when the watch could not be established.
//
// Thread Safety: Safe to run one Watch per path. onChange must be
// safe for calls from the watching goroutine.
func Watch(ctx context.Context, path string, onChange func(*Bank), opts ...WatchOption) error {
	if onChange == nil {
		return fmt.Errorf("watch %s: nil onChange handler", path)
	}

	o := watchOptions{
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat watch path %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the parent directory for a single file. Editors save via a
	// rename-over cycle; a watch on the file itself loses its handle on
	// the first save.
	watchDir := path
	if !info.IsDir() {
		watchDir = filepath.Dir(path)
	}
	if err := watcher.Add(watchDir); err != nil {
		return fmt.Errorf("watch %s: %w", watchDir, err)
	}

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(event, path, info.IsDir()) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(o.debounce)
				timerC = timer.C
			} else {
				timer.Reset(o.debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			o.logger.Error("question bank watch error", "path", path, "error", err)

		case <-timerC:
			timer = nil
			timerC = nil

			bank, err := Load(path)
			if err != nil {
				o.logger.Error("question bank reload failed", "path", path, "error", err)
				continue
			}
			o.logger.Info("question bank reloaded", "path", path, "questions", bank.Len())
			onChange(bank)
		}
	}
}

// relevantEvent filters directory noise down to events that can alter
// the bank.
func relevantEvent(event fsnotify.Event, path string, isDir bool) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	if isDir {
		ext := strings.ToLower(filepath.Ext(event.Name))
		return ext == ".yaml" || ext == ".yml"
	}
	return filepath.Base(event.Name) == filepath.Base(path)
}
