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
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// Comparator
// =============================================================================

// Comparator grades actual results against golden results under a rule set.
//
// # Description
//
// The comparison runs three layers in order, short-circuiting at the first
// failure:
//
//  1. Schema: column counts and (name, type) agreement, positional or
//     by-name depending on the rules.
//  2. Row count: exact equality.
//  3. Values: cell-by-cell grading through the semantic-type registry,
//     after canonical row sorting when row order does not matter.
//
// # Thread Safety
//
// Safe for concurrent use. The comparator holds no per-call state.
type Comparator struct {
	registry *Registry
}

// ComparatorOption customizes a Comparator.
type ComparatorOption func(*Comparator)

// WithRegistry installs a custom comparison registry.
func WithRegistry(r *Registry) ComparatorOption {
	return func(c *Comparator) {
		if r != nil {
			c.registry = r
		}
	}
}

// NewComparator creates a Comparator with the default registry unless
// overridden.
func NewComparator(opts ...ComparatorOption) *Comparator {
	c := &Comparator{registry: DefaultRegistry()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// defaultComparator backs the package-level Compare convenience.
var defaultComparator = NewComparator()

// Compare grades actual against golden using the default registry.
//
// See Comparator.Compare for the contract.
func Compare(golden, actual Tabular, rules RuleSet) (Verdict, error) {
	return defaultComparator.Compare(golden, actual, rules)
}

// Compare grades an actual result against a golden result.
//
// # Description
//
// Pure and deterministic: no I/O, no mutation of inputs, identical inputs
// always produce the identical verdict. A failed comparison is a Verdict
// with Match=false; the error return fires only for malformed inputs.
//
// # Inputs
//
//   - golden: the precomputed reference result.
//   - actual: the result produced by the generated query.
//   - rules: a fully resolved rule set (DefaultRules or Resolve output).
//
// # Outputs
//
//   - Verdict: match decision with reason and, for value mismatches, the
//     first differing (row, column) location in canonical order.
//   - error: wraps ErrMalformedResult or ErrUnresolvedRules; nil for any
//     graded comparison, matched or not.
func (c *Comparator) Compare(golden, actual Tabular, rules RuleSet) (Verdict, error) {
	if err := rules.Validate(); err != nil {
		return Verdict{}, err
	}
	if err := golden.Validate(); err != nil {
		return Verdict{}, fmt.Errorf("golden: %w", err)
	}
	if err := actual.Validate(); err != nil {
		return Verdict{}, fmt.Errorf("actual: %w", err)
	}

	// Layer 1: schema.
	mapping, verdict := matchSchema(golden, actual, rules)
	if !verdict.Match {
		return verdict, nil
	}

	// Layer 2: row count.
	if len(golden.Rows) != len(actual.Rows) {
		return mismatched(fmt.Sprintf("row count mismatch: expected %d rows, got %d",
			len(golden.Rows), len(actual.Rows))), nil
	}

	// Layer 3: values. Zero rows on both sides is a match once the schema
	// agreed.
	if len(golden.Rows) == 0 {
		return matched("results equivalent: empty result sets"), nil
	}
	return c.matchValues(golden, actual, mapping, rules), nil
}

// =============================================================================
// Layer 1: Schema
// =============================================================================

// matchSchema checks column agreement and returns the canonical column
// mapping: mapping[i] is the actual-side column index paired with golden
// column i. The mapping is identity when column order matters.
func matchSchema(golden, actual Tabular, rules RuleSet) ([]int, Verdict) {
	if len(golden.Columns) != len(actual.Columns) {
		return nil, mismatched(fmt.Sprintf("schema mismatch: expected %d columns, got %d",
			len(golden.Columns), len(actual.Columns)))
	}

	if rules.ColumnOrderMatters {
		mapping := make([]int, len(golden.Columns))
		for i := range golden.Columns {
			g, a := golden.Columns[i], actual.Columns[i]
			if g.Name != a.Name {
				return nil, mismatched(fmt.Sprintf(
					"schema mismatch: column %d named %q, expected %q", i, a.Name, g.Name))
			}
			if !g.Type.Compatible(a.Type) {
				return nil, mismatched(fmt.Sprintf(
					"schema mismatch: column %q has type %s, expected %s", g.Name, a.Type, g.Type))
			}
			mapping[i] = i
		}
		return mapping, matched("")
	}

	// Order-insensitive: pair columns by name as a multiset so duplicate
	// names consume distinct actual columns. The resulting mapping is used
	// for every row comparison; columns are never re-paired positionally.
	byName := make(map[string][]int, len(actual.Columns))
	for i, col := range actual.Columns {
		byName[col.Name] = append(byName[col.Name], i)
	}

	mapping := make([]int, len(golden.Columns))
	for i, g := range golden.Columns {
		candidates := byName[g.Name]
		if len(candidates) == 0 {
			return nil, mismatched(fmt.Sprintf(
				"schema mismatch: missing column %q (actual columns: %s)",
				g.Name, strings.Join(actual.ColumnNames(), ", ")))
		}
		idx := candidates[0]
		byName[g.Name] = candidates[1:]

		if !g.Type.Compatible(actual.Columns[idx].Type) {
			return nil, mismatched(fmt.Sprintf(
				"schema mismatch: column %q has type %s, expected %s",
				g.Name, actual.Columns[idx].Type, g.Type))
		}
		mapping[i] = idx
	}
	return mapping, matched("")
}

// =============================================================================
// Layer 3: Values
// =============================================================================

// matchValues grades every aligned cell pair, short-circuiting on the
// first mismatch.
func (c *Comparator) matchValues(golden, actual Tabular, mapping []int, rules RuleSet) Verdict {
	// Project actual rows into golden column order so both sides share one
	// canonical shape before sorting and pairing.
	goldenRows := normalizeRows(golden.Rows, golden.Columns, identityMapping(len(golden.Columns)))
	actualRows := normalizeRows(actual.Rows, golden.Columns, mapping)

	if !rules.RowOrderMatters {
		sortRows(goldenRows)
		sortRows(actualRows)
	}

	for rowIdx := range goldenRows {
		gRow, aRow := goldenRows[rowIdx], actualRows[rowIdx]
		for colIdx, col := range golden.Columns {
			ok, detail := c.compareCell(gRow[colIdx], aRow[colIdx], col.Type, rules)
			if ok {
				continue
			}
			reason := fmt.Sprintf("value mismatch at row %d, column %q", rowIdx, col.Name)
			if detail != "" {
				reason += ": " + detail
			}
			return mismatchedAt(reason, rowIdx, col.Name)
		}
	}

	return matched(fmt.Sprintf("results equivalent: %d rows, %d columns",
		len(goldenRows), len(golden.Columns)))
}

// compareCell applies NULL handling, then dispatches non-NULL pairs to the
// registered handler for the column's semantic type.
func (c *Comparator) compareCell(a, b Value, t SemanticType, rules RuleSet) (bool, string) {
	switch {
	case a == nil && b == nil:
		return true, ""
	case a == nil || b == nil:
		if rules.NullHandling == NullLenient {
			present := a
			if present == nil {
				present = b
			}
			if isEmptyEquivalent(present, t, rules) {
				return true, ""
			}
		}
		return false, fmt.Sprintf("NULL vs %v", firstNonNil(a, b))
	}
	return c.registry.lookup(t)(a, b, rules)
}

func firstNonNil(a, b Value) Value {
	if a != nil {
		return a
	}
	return b
}

// normalizeRows projects rows through a column mapping and coerces cells to
// the canonical representation for their golden-side type.
func normalizeRows(rows []Row, cols []Column, mapping []int) []Row {
	out := make([]Row, len(rows))
	for i, row := range rows {
		projected := make(Row, len(cols))
		for j := range cols {
			projected[j] = normalizeCell(row[mapping[j]], cols[j].Type)
		}
		out[i] = projected
	}
	return out
}

func identityMapping(n int) []int {
	m := make([]int, n)
	for i := range m {
		m[i] = i
	}
	return m
}

// =============================================================================
// Canonical Row Ordering
// =============================================================================

// sortRows sorts rows with a total order over full row tuples. An explicit
// stable sort (not hashing) keeps duplicate rows intact and gives NULLs a
// deterministic position before all non-NULL values.
func sortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return compareRowTuples(rows[i], rows[j]) < 0
	})
}

// compareRowTuples orders two rows lexicographically cell by cell.
func compareRowTuples(a, b Row) int {
	for i := range a {
		if i >= len(b) {
			return 1
		}
		if cmp := compareCellOrder(a[i], b[i]); cmp != 0 {
			return cmp
		}
	}
	if len(a) < len(b) {
		return -1
	}
	return 0
}

// typeRank buckets cell kinds so mixed-type columns still sort totally.
func typeRank(v Value) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int64, int, int32, float64, float32:
		return 2
	case string:
		return 3
	case time.Time:
		return 4
	default:
		return 5
	}
}

// compareCellOrder is the total order over cell values: NULL before all
// non-NULL, then by kind rank, then within-kind natural order.
func compareCellOrder(a, b Value) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case 0: // both NULL
		return 0
	case 1:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case 2:
		af, _ := toFloat(a)
		bf, _ := toFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case 3:
		return strings.Compare(a.(string), b.(string))
	case 4:
		at, bt := a.(time.Time), b.(time.Time)
		switch {
		case at.Before(bt):
			return -1
		case at.After(bt):
			return 1
		default:
			return 0
		}
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}
