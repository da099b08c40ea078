// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tokenest

import "testing"

func TestEstimate_Heuristic(t *testing.T) {
	// Zero-value estimator always uses the word heuristic, so counts
	// are stable regardless of encoding availability.
	e := &Estimator{}

	tests := []struct {
		name     string
		question string
		schema   string
		want     int
	}{
		{"empty inputs", "", "", 0},
		{"single word", "count", "", 2},                         // ceil(1*1.3)
		{"ten words", "show me the total number of orders per customer please", "", 13},
		{"question plus schema", "list customers", "customers(id, name)", 6}, // ceil(2*1.3)+ceil(2*1.3)
		{"whitespace only schema", "list customers", "   ", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Estimate(tt.question, tt.schema); got != tt.want {
				t.Errorf("Estimate(%q, %q) = %d, want %d", tt.question, tt.schema, got, tt.want)
			}
		})
	}
}

func TestEstimate_Deterministic(t *testing.T) {
	e := NewEstimator()
	question := "what was the average order value last quarter"
	schema := "orders(id INTEGER, total DECIMAL, placed_at TIMESTAMP)"

	first := e.Estimate(question, schema)
	for i := 0; i < 10; i++ {
		if got := e.Estimate(question, schema); got != first {
			t.Fatalf("estimate changed between calls: %d then %d", first, got)
		}
	}
	if first <= 0 {
		t.Errorf("estimate = %d, want positive for non-empty input", first)
	}
}

func TestEstimate_LongerTextCostsMore(t *testing.T) {
	e := NewEstimator()

	short := e.Estimate("list customers", "")
	long := e.Estimate("list all customers together with their total order counts and lifetime spend", "")
	if long <= short {
		t.Errorf("longer question should cost more tokens: short=%d long=%d", short, long)
	}
}
