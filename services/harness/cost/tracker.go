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
	"log/slog"
	"sync"

	"github.com/AleutianAI/nlqbench/services/harness/consistency"
)

// Sample is one priced query.
type Sample struct {
	// Model is the model that served the query.
	Model string `json:"model"`

	// InputTokens is the prompt token count.
	InputTokens int `json:"input_tokens"`

	// OutputTokens is the completion token count.
	OutputTokens int `json:"output_tokens"`

	// TotalTokens is the combined count.
	TotalTokens int `json:"total_tokens"`

	// InputCost is the prompt cost in USD.
	InputCost float64 `json:"input_cost"`

	// OutputCost is the completion cost in USD.
	OutputCost float64 `json:"output_cost"`

	// TotalCost is the combined cost in USD.
	TotalCost float64 `json:"total_cost"`
}

// Summary aggregates a run's spend.
type Summary struct {
	// TotalQueries is the number of priced queries.
	TotalQueries int `json:"total_queries"`

	// TotalCost is the combined spend in USD.
	TotalCost float64 `json:"total_cost"`

	// AverageCost is TotalCost / TotalQueries, zero when empty.
	AverageCost float64 `json:"average_cost"`

	// InputCost is the prompt share of the spend.
	InputCost float64 `json:"input_cost"`

	// OutputCost is the completion share of the spend.
	OutputCost float64 `json:"output_cost"`

	// TotalTokens is the combined token count.
	TotalTokens int `json:"total_tokens"`

	// ByModel maps model name to its total spend.
	ByModel map[string]float64 `json:"by_model"`
}

// -----------------------------------------------------------------------------
// Tracker
// -----------------------------------------------------------------------------

// Tracker prices token usage as it is recorded and answers for the run
// total.
//
// # Thread Safety
//
// Safe for concurrent use. All access is mutex-guarded.
type Tracker struct {
	mu      sync.Mutex
	pricing map[string]Pricing
	samples []Sample
	warned  map[string]bool
	logger  *slog.Logger
}

// TrackerOption customizes a Tracker.
type TrackerOption func(*Tracker)

// WithPricing adds or overrides pricing for one model.
func WithPricing(p Pricing) TrackerOption {
	return func(t *Tracker) {
		if p.Model != "" {
			t.pricing[p.Model] = p
		}
	}
}

// WithLogger sets the logger for unknown-model warnings.
func WithLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTracker creates a tracker over the default price table.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		pricing: DefaultPricing(),
		warned:  make(map[string]bool),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record prices one query's token usage and folds it into the run
// totals.
//
// Inputs:
//   - model: Model name as the endpoint reports it.
//   - usage: Self-reported token counts.
//
// Outputs:
//   - Sample: The priced query. Unknown models price at zero; the first
//     sighting of each unknown model logs one warning.
//
// Thread Safety: Safe for concurrent use.
func (t *Tracker) Record(model string, usage consistency.TokenUsage) Sample {
	t.mu.Lock()
	defer t.mu.Unlock()

	pricing, known := t.pricing[model]
	if !known && !t.warned[model] {
		t.warned[model] = true
		t.logger.Warn("no pricing for model, recording zero cost",
			"model", model)
	}

	sample := Sample{
		Model:        model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		TotalTokens:  usage.TotalTokens,
	}
	if known {
		sample.InputCost = float64(usage.InputTokens) / 1000 * pricing.InputPer1K
		sample.OutputCost = float64(usage.OutputTokens) / 1000 * pricing.OutputPer1K
		sample.TotalCost = sample.InputCost + sample.OutputCost
	}

	t.samples = append(t.samples, sample)
	return sample
}

// Summary totals the run's spend per model and overall.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	summary := Summary{ByModel: make(map[string]float64)}
	for _, s := range t.samples {
		summary.TotalQueries++
		summary.TotalCost += s.TotalCost
		summary.InputCost += s.InputCost
		summary.OutputCost += s.OutputCost
		summary.TotalTokens += s.TotalTokens
		summary.ByModel[s.Model] += s.TotalCost
	}
	if summary.TotalQueries > 0 {
		summary.AverageCost = summary.TotalCost / float64(summary.TotalQueries)
	}
	return summary
}

// Reset discards all recorded samples. Unknown-model warnings stay
// suppressed across resets.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples = nil
}
