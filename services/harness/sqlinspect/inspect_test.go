// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sqlinspect

import (
	"context"
	"testing"
)

func TestScreen_SimpleSelect(t *testing.T) {
	report, err := Screen(context.Background(), "SELECT id, name FROM customers")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Valid {
		t.Fatalf("expected valid query, got %d error nodes", report.ErrorNodes)
	}
	if report.Joins != 0 || report.Subqueries != 0 || report.Aggregates != 0 {
		t.Errorf("simple select should have no structure, got %+v", report)
	}
	if report.Complexity != Level(1) {
		t.Errorf("complexity = %s, want L1", report.Complexity)
	}
}

func TestScreen_JoinWithAggregate(t *testing.T) {
	query := `SELECT c.name, COUNT(o.id)
FROM customers c
JOIN orders o ON o.customer_id = c.id
GROUP BY c.name`

	report, err := Screen(context.Background(), query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Valid {
		t.Fatalf("expected valid query, got %d error nodes", report.ErrorNodes)
	}
	if report.Joins != 1 {
		t.Errorf("joins = %d, want 1", report.Joins)
	}
	if report.Aggregates != 1 {
		t.Errorf("aggregates = %d, want 1", report.Aggregates)
	}
	if report.Complexity != Level(3) {
		t.Errorf("complexity = %s, want L3", report.Complexity)
	}
}

func TestScreen_Subquery(t *testing.T) {
	query := "SELECT name FROM customers WHERE id IN (SELECT customer_id FROM orders)"

	report, err := Screen(context.Background(), query)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Valid {
		t.Fatalf("expected valid query, got %d error nodes", report.ErrorNodes)
	}
	if report.Subqueries != 1 {
		t.Errorf("subqueries = %d, want 1", report.Subqueries)
	}
	if report.Complexity != Level(2) {
		t.Errorf("complexity = %s, want L2", report.Complexity)
	}
}

func TestScreen_MalformedQuery(t *testing.T) {
	report, err := Screen(context.Background(), "SELCT * FORM customers WHRE 1=1")
	if err != nil {
		t.Fatalf("malformed SQL must not error: %v", err)
	}
	if report.Valid {
		t.Error("expected invalid report for malformed SQL")
	}
	if report.ErrorNodes == 0 {
		t.Error("expected error nodes for malformed SQL")
	}
}

func TestScreen_EmptyQuery(t *testing.T) {
	for _, query := range []string{"", "   ", "\n\t"} {
		report, err := Screen(context.Background(), query)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.Valid {
			t.Errorf("blank query %q should be invalid", query)
		}
	}
}

func TestScreen_NotSQLAtAll(t *testing.T) {
	report, err := Screen(context.Background(),
		"I'm sorry, I cannot generate SQL for that question.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Valid {
		t.Error("prose should not screen as valid SQL")
	}
}

func TestComplexityOf(t *testing.T) {
	tests := []struct {
		name   string
		report Report
		want   Level
	}{
		{"bare select", Report{}, Level(1)},
		{"one join", Report{Joins: 1}, Level(2)},
		{"aggregate only", Report{Aggregates: 2}, Level(2)},
		{"join plus aggregate", Report{Joins: 1, Aggregates: 1}, Level(3)},
		{"many joins", Report{Joins: 4}, Level(3)},
		{"everything", Report{Joins: 3, Aggregates: 1, Subqueries: 2, CTEs: 1}, Level(6)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := complexityOf(&tt.report); got != tt.want {
				t.Errorf("complexityOf(%+v) = %s, want %s", tt.report, got, tt.want)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"L1", Level(1)},
		{"l4", Level(4)},
		{" L6 ", Level(6)},
		{"L9", Level(1)},
		{"advanced", Level(1)},
		{"", Level(1)},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestLevel_String(t *testing.T) {
	if Level(3).String() != "L3" {
		t.Errorf("Level(3) = %s, want L3", Level(3))
	}
}
