// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cost prices self-reported token usage per model and
// aggregates spend across a benchmark run. Locally served models cost
// nothing; unknown models cost nothing but get flagged once so a typo
// in a model name cannot silently zero out a bill.
package cost

// Pricing holds a model's token prices in USD per 1000 tokens.
type Pricing struct {
	// Model is the model name the endpoint reports.
	Model string `json:"model" yaml:"model"`

	// Provider labels where the model is served.
	Provider string `json:"provider" yaml:"provider"`

	// InputPer1K is the prompt price per 1000 tokens.
	InputPer1K float64 `json:"input_per_1k" yaml:"input_per_1k"`

	// OutputPer1K is the completion price per 1000 tokens.
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
}

// DefaultPricing returns the built-in price table, January 2025 rates.
// Local models are free.
func DefaultPricing() map[string]Pricing {
	return map[string]Pricing{
		"gpt-4-turbo": {
			Model: "gpt-4-turbo", Provider: "openai",
			InputPer1K: 0.01, OutputPer1K: 0.03,
		},
		"gpt-4": {
			Model: "gpt-4", Provider: "openai",
			InputPer1K: 0.03, OutputPer1K: 0.06,
		},
		"gpt-4o": {
			Model: "gpt-4o", Provider: "openai",
			InputPer1K: 0.005, OutputPer1K: 0.015,
		},
		"gpt-3.5-turbo": {
			Model: "gpt-3.5-turbo", Provider: "openai",
			InputPer1K: 0.0005, OutputPer1K: 0.0015,
		},
		"claude-3-opus": {
			Model: "claude-3-opus", Provider: "anthropic",
			InputPer1K: 0.015, OutputPer1K: 0.075,
		},
		"claude-3-sonnet": {
			Model: "claude-3-sonnet", Provider: "anthropic",
			InputPer1K: 0.003, OutputPer1K: 0.015,
		},
		"claude-3-haiku": {
			Model: "claude-3-haiku", Provider: "anthropic",
			InputPer1K: 0.00025, OutputPer1K: 0.00125,
		},
		"gemini-pro": {
			Model: "gemini-pro", Provider: "google",
			InputPer1K: 0.00025, OutputPer1K: 0.0005,
		},
		"llama3": {
			Model: "llama3", Provider: "local",
		},
		"mistral": {
			Model: "mistral", Provider: "local",
		},
		"sqlcoder": {
			Model: "sqlcoder", Provider: "local",
		},
	}
}
