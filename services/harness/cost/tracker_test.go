// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cost

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/AleutianAI/nlqbench/services/harness/consistency"
)

// warnCounter counts Warn-level records without formatting them.
type warnCounter struct {
	slog.Handler
	mu    sync.Mutex
	warns int
}

func newWarnCounter() *warnCounter {
	return &warnCounter{
		Handler: slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}
}

func (w *warnCounter) Handle(ctx context.Context, r slog.Record) error {
	if r.Level == slog.LevelWarn {
		w.mu.Lock()
		w.warns++
		w.mu.Unlock()
	}
	return nil
}

func (w *warnCounter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.warns
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestRecord_KnownModel(t *testing.T) {
	tracker := NewTracker()

	sample := tracker.Record("gpt-4o", consistency.TokenUsage{
		InputTokens: 1000, OutputTokens: 2000, TotalTokens: 3000,
	})

	if math.Abs(sample.InputCost-0.005) > 1e-9 {
		t.Errorf("input cost = %v, want 0.005", sample.InputCost)
	}
	if math.Abs(sample.OutputCost-0.030) > 1e-9 {
		t.Errorf("output cost = %v, want 0.030", sample.OutputCost)
	}
	if math.Abs(sample.TotalCost-0.035) > 1e-9 {
		t.Errorf("total cost = %v, want 0.035", sample.TotalCost)
	}
}

func TestRecord_LocalModelIsFree(t *testing.T) {
	tracker := NewTracker()

	sample := tracker.Record("llama3", consistency.TokenUsage{
		InputTokens: 50000, OutputTokens: 50000, TotalTokens: 100000,
	})
	if sample.TotalCost != 0 {
		t.Errorf("local model cost = %v, want 0", sample.TotalCost)
	}
}

func TestRecord_UnknownModelWarnsOnce(t *testing.T) {
	counter := newWarnCounter()
	tracker := NewTracker(WithLogger(slog.New(counter)))

	usage := consistency.TokenUsage{InputTokens: 10, OutputTokens: 10, TotalTokens: 20}
	for i := 0; i < 5; i++ {
		sample := tracker.Record("mystery-model", usage)
		if sample.TotalCost != 0 {
			t.Errorf("unknown model cost = %v, want 0", sample.TotalCost)
		}
	}

	if counter.count() != 1 {
		t.Errorf("expected exactly one warning for repeated unknown model, got %d", counter.count())
	}

	// Samples still count toward the run totals.
	if got := tracker.Summary().TotalQueries; got != 5 {
		t.Errorf("total queries = %d, want 5", got)
	}
}

func TestWithPricing_Override(t *testing.T) {
	tracker := NewTracker(WithPricing(Pricing{
		Model: "house-model", Provider: "custom",
		InputPer1K: 1.0, OutputPer1K: 2.0,
	}))

	sample := tracker.Record("house-model", consistency.TokenUsage{
		InputTokens: 500, OutputTokens: 500, TotalTokens: 1000,
	})
	if math.Abs(sample.TotalCost-1.5) > 1e-9 {
		t.Errorf("total cost = %v, want 1.5", sample.TotalCost)
	}
}

func TestSummary(t *testing.T) {
	tracker := NewTracker()
	usage := consistency.TokenUsage{InputTokens: 1000, OutputTokens: 1000, TotalTokens: 2000}

	tracker.Record("gpt-4o", usage)       // 0.005 + 0.015 = 0.020
	tracker.Record("gpt-4o", usage)       // 0.020
	tracker.Record("claude-3-haiku", usage) // 0.00025 + 0.00125 = 0.0015

	summary := tracker.Summary()
	if summary.TotalQueries != 3 {
		t.Errorf("total queries = %d, want 3", summary.TotalQueries)
	}
	if math.Abs(summary.TotalCost-0.0415) > 1e-9 {
		t.Errorf("total cost = %v, want 0.0415", summary.TotalCost)
	}
	if math.Abs(summary.ByModel["gpt-4o"]-0.040) > 1e-9 {
		t.Errorf("gpt-4o spend = %v, want 0.040", summary.ByModel["gpt-4o"])
	}
	if summary.TotalTokens != 6000 {
		t.Errorf("total tokens = %d, want 6000", summary.TotalTokens)
	}
	if math.Abs(summary.AverageCost-summary.TotalCost/3) > 1e-9 {
		t.Errorf("average cost = %v, want %v", summary.AverageCost, summary.TotalCost/3)
	}
}

func TestSummary_Empty(t *testing.T) {
	summary := NewTracker().Summary()
	if summary.TotalQueries != 0 || summary.TotalCost != 0 || summary.AverageCost != 0 {
		t.Errorf("empty summary should be all zero, got %+v", summary)
	}
}

func TestReset(t *testing.T) {
	tracker := NewTracker()
	tracker.Record("gpt-4o", consistency.TokenUsage{InputTokens: 100, OutputTokens: 100, TotalTokens: 200})

	tracker.Reset()

	if got := tracker.Summary().TotalQueries; got != 0 {
		t.Errorf("queries after reset = %d, want 0", got)
	}
}

func TestTracker_ConcurrentRecord(t *testing.T) {
	tracker := NewTracker()
	usage := consistency.TokenUsage{InputTokens: 10, OutputTokens: 10, TotalTokens: 20}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Record("gpt-4o", usage)
		}()
	}
	wg.Wait()

	if got := tracker.Summary().TotalQueries; got != 50 {
		t.Errorf("total queries = %d, want 50", got)
	}
}
