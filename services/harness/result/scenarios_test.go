// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package result

import (
	"strings"
	"testing"
)

// Realistic end-to-end fixtures modeled on answers a translation endpoint
// actually produces: same data in a different row order, cent-level money
// drift, and aliased column names.

func TestScenarioUnorderedTopCustomers(t *testing.T) {
	// "Top 3 customers by revenue" with no ORDER BY: the data matches but
	// arrives in storage order instead of rank order.
	golden := Tabular{
		Columns: []Column{
			{Name: "customer", Type: TypeString},
			{Name: "revenue", Type: TypeDecimal},
		},
		Rows: []Row{
			{"Acme Corp", 50000.0},
			{"Globex", 42000.0},
			{"Initech", 31000.0},
		},
	}
	actual := Tabular{
		Columns: golden.Columns,
		Rows: []Row{
			{"Initech", 31000.0},
			{"Acme Corp", 50000.0},
			{"Globex", 42000.0},
		},
	}

	verdict, err := Compare(golden, actual, DefaultRules())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Match {
		t.Error("unordered answer must fail when the question demands ranking")
	}

	verdict, err = Compare(golden, actual, createOrderInsensitiveRules(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verdict.Match {
		t.Errorf("same rows in any order must pass when order is ignored, got: %s", verdict.Reason)
	}
}

func TestScenarioMoneyRounding(t *testing.T) {
	// Monetary aggregates drift by fractions of a cent across engines.
	// Cent-level equivalence is an absolute window, not a relative one:
	// a relative 0.01 on a 100-dollar total would accept a dollar of drift.
	price := func(v float64) Tabular {
		return Tabular{
			Columns: []Column{{Name: "total", Type: TypeDecimal}},
			Rows:    []Row{{v}},
		}
	}

	tol, mode := 0.01, "absolute"
	rules, err := Resolve(DefaultRules(), &Overlay{FloatTolerance: &tol, FloatMode: &mode})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	verdict, _ := Compare(price(100.00), price(100.004), rules)
	if !verdict.Match {
		t.Errorf("sub-cent drift must match, got: %s", verdict.Reason)
	}

	verdict, _ = Compare(price(100.00), price(100.02), rules)
	if verdict.Match {
		t.Error("two cents of drift must mismatch at a one-cent window")
	}
}

func TestScenarioAliasedAggregateColumn(t *testing.T) {
	// COUNT(*) surfaced as "count" in the golden result but "total_orders"
	// by the generated query. Names differ, so even by-name pairing fails;
	// the verdict should point at the missing golden column.
	golden := Tabular{
		Columns: []Column{{Name: "count", Type: TypeInteger}},
		Rows:    []Row{{int64(7)}},
	}
	actual := Tabular{
		Columns: []Column{{Name: "total_orders", Type: TypeInteger}},
		Rows:    []Row{{int64(7)}},
	}

	verdict, err := Compare(golden, actual, createOrderInsensitiveRules(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Match {
		t.Error("aliased column name must fail schema pairing")
	}
	if !strings.Contains(verdict.Reason, `"count"`) {
		t.Errorf("reason should name the missing column, got: %s", verdict.Reason)
	}
}

func TestScenarioDuplicateColumnNames(t *testing.T) {
	// Self-join projecting id twice. By-name pairing must treat duplicate
	// names as a multiset, not collapse them.
	golden := Tabular{
		Columns: []Column{
			{Name: "id", Type: TypeInteger},
			{Name: "id", Type: TypeInteger},
		},
		Rows: []Row{{int64(1), int64(2)}},
	}
	actual := Tabular{
		Columns: golden.Columns,
		Rows:    []Row{{int64(1), int64(2)}},
	}

	verdict, err := Compare(golden, actual, createOrderInsensitiveRules(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verdict.Match {
		t.Errorf("duplicate column names must pair positionally within the name group, got: %s", verdict.Reason)
	}
}

func TestScenarioMixedDriverTypes(t *testing.T) {
	// SQLite returns int64 for an aggregate the golden store recorded as a
	// JSON number (float64). Integer columns must still compare exactly.
	golden := Tabular{
		Columns: []Column{{Name: "n", Type: TypeInteger}},
		Rows:    []Row{{float64(12)}},
	}
	actual := Tabular{
		Columns: []Column{{Name: "n", Type: TypeInteger}},
		Rows:    []Row{{int64(12)}},
	}

	verdict, err := Compare(golden, actual, DefaultRules())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verdict.Match {
		t.Errorf("12.0 and 12 in an integer column must match, got: %s", verdict.Reason)
	}
}
