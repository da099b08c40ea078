// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package consistency

import (
	"fmt"
	"sync"
)

// DefaultWindow is the per-key ring size when none is given.
const DefaultWindow = 50

// Key groups comparable questions for rolling averages. Two questions are
// comparable when they share a complexity level and hit the same endpoint.
type Key struct {
	// Complexity is the question's complexity level (L1..L6).
	Complexity string `json:"complexity"`

	// Endpoint is the system-under-test endpoint name.
	Endpoint string `json:"endpoint"`
}

// String returns "complexity|endpoint" for use as a flat map key.
func (k Key) String() string {
	return fmt.Sprintf("%s|%s", k.Complexity, k.Endpoint)
}

// -----------------------------------------------------------------------------
// Rolling History
// -----------------------------------------------------------------------------

// History accumulates rolling measurements per comparable-question key.
//
// # Description
//
// The runner owns one History per benchmark run and injects it into the
// validator. It records the client-measured wall time and the
// reported/estimated token ratio after each question; the validator only
// reads. Each key keeps a bounded ring of the most recent entries, so a
// long run cannot grow the accumulator without bound.
//
// # Thread Safety
//
// Safe for concurrent use. All access is mutex-guarded.
type History struct {
	mu     sync.Mutex
	window int
	timing map[Key]*ring
	ratios map[Key]*ring
}

// HistorySnapshot is a serializable copy of the accumulator state,
// oldest entry first per key.
type HistorySnapshot struct {
	// Window is the per-key ring size.
	Window int `json:"window"`

	// TimingMs maps "complexity|endpoint" to wall-time samples.
	TimingMs map[string][]float64 `json:"timing_ms"`

	// TokenRatios maps "complexity|endpoint" to reported/estimated ratios.
	TokenRatios map[string][]float64 `json:"token_ratios"`
}

// NewHistory creates an empty accumulator. A window below 1 uses
// DefaultWindow.
func NewHistory(window int) *History {
	if window < 1 {
		window = DefaultWindow
	}
	return &History{
		window: window,
		timing: make(map[Key]*ring),
		ratios: make(map[Key]*ring),
	}
}

// Reset discards all recorded entries. Called at the start of every
// benchmark run so one run's timings never color another's checks.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timing = make(map[Key]*ring)
	h.ratios = make(map[Key]*ring)
}

// RecordTiming appends a client-measured wall time in milliseconds.
func (h *History) RecordTiming(key Key, totalMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.timing[key]
	if !ok {
		r = newRing(h.window)
		h.timing[key] = r
	}
	r.add(totalMs)
}

// RecordTokenRatio appends a reported/estimated token ratio.
func (h *History) RecordTokenRatio(key Key, ratio float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.ratios[key]
	if !ok {
		r = newRing(h.window)
		h.ratios[key] = r
	}
	r.add(ratio)
}

// TimingAverage returns the rolling mean wall time for a key and the
// number of samples behind it. A count of zero means no history.
func (h *History) TimingAverage(key Key) (float64, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.timing[key]
	if !ok {
		return 0, 0
	}
	return r.mean()
}

// TokenRatioMean returns the rolling mean token ratio for a key and the
// number of samples behind it. A count of zero means no history.
func (h *History) TokenRatioMean(key Key) (float64, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.ratios[key]
	if !ok {
		return 0, 0
	}
	return r.mean()
}

// Snapshot copies the accumulator state for persistence alongside a run
// report.
func (h *History) Snapshot() *HistorySnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := &HistorySnapshot{
		Window:      h.window,
		TimingMs:    make(map[string][]float64, len(h.timing)),
		TokenRatios: make(map[string][]float64, len(h.ratios)),
	}
	for key, r := range h.timing {
		snap.TimingMs[key.String()] = r.ordered()
	}
	for key, r := range h.ratios {
		snap.TokenRatios[key.String()] = r.ordered()
	}
	return snap
}

// -----------------------------------------------------------------------------
// Bounded Ring
// -----------------------------------------------------------------------------

// ring is a fixed-size overwrite-oldest buffer.
type ring struct {
	values []float64
	next   int
	count  int
}

func newRing(size int) *ring {
	return &ring{values: make([]float64, size)}
}

func (r *ring) add(v float64) {
	r.values[r.next] = v
	r.next = (r.next + 1) % len(r.values)
	if r.count < len(r.values) {
		r.count++
	}
}

func (r *ring) mean() (float64, int) {
	if r.count == 0 {
		return 0, 0
	}
	var sum float64
	for i := 0; i < r.count; i++ {
		sum += r.values[i]
	}
	return sum / float64(r.count), r.count
}

// ordered returns the live entries oldest first.
func (r *ring) ordered() []float64 {
	out := make([]float64, 0, r.count)
	if r.count < len(r.values) {
		out = append(out, r.values[:r.count]...)
		return out
	}
	out = append(out, r.values[r.next:]...)
	out = append(out, r.values[:r.next]...)
	return out
}
