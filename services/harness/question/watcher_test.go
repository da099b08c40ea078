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
	"io"
	"log/slog"
	"testing"
	"time"
)

const extraQuestion = `  - id: q-extra
    text: An additional question appended by the test.
    golden_sql: {default: SELECT 3}
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startWatch runs Watch in the background and returns the channels the
// test observes it through.
func startWatch(t *testing.T, ctx context.Context, path string) (<-chan *Bank, <-chan error) {
	t.Helper()
	banks := make(chan *Bank, 4)
	errCh := make(chan error, 1)
	go func() {
		errCh <- Watch(ctx, path, func(b *Bank) { banks <- b },
			WithDebounce(20*time.Millisecond),
			WithWatchLogger(discardLogger()))
	}()
	// Let the watcher register before the test writes anything.
	time.Sleep(100 * time.Millisecond)
	return banks, errCh
}

func TestWatch_ReloadOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeBankFile(t, dir, "bank.yaml", sampleBank)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	banks, errCh := startWatch(t, ctx, path)

	writeBankFile(t, dir, "bank.yaml", sampleBank+extraQuestion)

	select {
	case bank := <-banks:
		if bank.Len() != 3 {
			t.Errorf("reloaded Len = %d, want 3", bank.Len())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload within 2s of a write")
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Watch after cancel = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_BadReloadDropped(t *testing.T) {
	dir := t.TempDir()
	path := writeBankFile(t, dir, "bank.yaml", sampleBank)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	banks, _ := startWatch(t, ctx, path)

	// A write that no longer parses must not reach onChange.
	writeBankFile(t, dir, "bank.yaml", "questions: [id: {{{")
	select {
	case bank := <-banks:
		t.Fatalf("unparseable bank delivered: %d questions", bank.Len())
	case <-time.After(300 * time.Millisecond):
	}

	// The next good write recovers.
	writeBankFile(t, dir, "bank.yaml", sampleBank)
	select {
	case bank := <-banks:
		if bank.Len() != 2 {
			t.Errorf("recovered Len = %d, want 2", bank.Len())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after recovery write")
	}
}

func TestWatch_Directory(t *testing.T) {
	dir := t.TempDir()
	writeBankFile(t, dir, "a.yaml", `
id: q-alpha
text: The only question at watch start.
golden_sql: {default: SELECT 1}
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	banks, _ := startWatch(t, ctx, dir)

	writeBankFile(t, dir, "b.yaml", `
id: q-beta
text: A question added while watching.
golden_sql: {default: SELECT 2}
`)

	select {
	case bank := <-banks:
		if bank.Len() != 2 {
			t.Errorf("reloaded Len = %d, want 2", bank.Len())
		}
		if _, ok := bank.ByID("q-beta"); !ok {
			t.Error("new file's question missing after reload")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reload within 2s of adding a file")
	}
}

func TestWatch_ArgumentErrors(t *testing.T) {
	ctx := context.Background()

	if err := Watch(ctx, "/nonexistent/bank.yaml", func(*Bank) {}); err == nil {
		t.Error("missing path: expected error")
	}
	if err := Watch(ctx, t.TempDir(), nil); err == nil {
		t.Error("nil handler: expected error")
	}
}
