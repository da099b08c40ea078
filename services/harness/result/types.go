// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package result implements the tabular result model and the tri-layer
// equivalence comparator used to grade generated queries against golden
// results.
//
// The comparator is pure: it performs no I/O, never mutates its inputs, and
// is safe to call concurrently on independent inputs. Mismatches are data
// (a failed Verdict), not errors; only malformed inputs produce errors.
package result

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Semantic Types
// =============================================================================

// SemanticType classifies a column for comparison purposes.
//
// The semantic type decides which comparison function grades a cell pair,
// independent of how the backing database spells the type (NUMERIC, REAL,
// DOUBLE PRECISION and friends all collapse to TypeFloat or TypeDecimal).
type SemanticType int

const (
	// TypeUnknown is the zero value; columns with unknown type compare
	// by exact equality of their rendered form.
	TypeUnknown SemanticType = iota

	// TypeInteger holds exact whole numbers (int64 cells).
	TypeInteger

	// TypeFloat holds approximate binary floating-point values.
	TypeFloat

	// TypeDecimal holds fixed-point money-like values. Compared with the
	// same math as TypeFloat but may carry a distinct tolerance.
	TypeDecimal

	// TypeString holds text.
	TypeString

	// TypeBoolean holds true/false.
	TypeBoolean

	// TypeDate holds calendar dates without a time component.
	TypeDate

	// TypeDatetime holds timestamps, compared after normalization to the
	// rule set's reference timezone.
	TypeDatetime
)

// String returns the lowercase name used in YAML banks and reports.
func (t SemanticType) String() string {
	switch t {
	case TypeUnknown:
		return "unknown"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeDecimal:
		return "decimal"
	case TypeString:
		return "string"
	case TypeBoolean:
		return "boolean"
	case TypeDate:
		return "date"
	case TypeDatetime:
		return "datetime"
	default:
		return fmt.Sprintf("SemanticType(%d)", int(t))
	}
}

// ParseSemanticType maps a type name to its SemanticType.
//
// Common database spellings are accepted alongside the canonical names so
// adapters can pass driver-reported types straight through.
func ParseSemanticType(s string) SemanticType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "integer", "int", "int4", "int8", "bigint", "smallint", "tinyint":
		return TypeInteger
	case "float", "double", "real", "float4", "float8":
		return TypeFloat
	case "decimal", "numeric", "money", "currency":
		return TypeDecimal
	case "string", "text", "varchar", "char", "str":
		return TypeString
	case "boolean", "bool", "bit":
		return TypeBoolean
	case "date":
		return TypeDate
	case "datetime", "timestamp", "timestamptz", "timestamp with time zone":
		return TypeDatetime
	default:
		return TypeUnknown
	}
}

// MarshalJSON encodes the type as its canonical name.
func (t SemanticType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a type from its canonical (or driver) name.
func (t *SemanticType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*t = ParseSemanticType(s)
	return nil
}

// MarshalYAML encodes the type as its canonical name.
func (t SemanticType) MarshalYAML() (any, error) {
	return t.String(), nil
}

// UnmarshalYAML decodes a type from its canonical (or driver) name.
func (t *SemanticType) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	*t = ParseSemanticType(s)
	return nil
}

// IsNumeric reports whether the type belongs to the numeric compatibility
// group (integer, float, decimal). Schema-layer type mismatches inside one
// group are tolerated.
func (t SemanticType) IsNumeric() bool {
	return t == TypeInteger || t == TypeFloat || t == TypeDecimal
}

// Compatible reports whether two semantic types may be compared against
// each other. Identical types are always compatible; differing types only
// when both are numeric.
func (t SemanticType) Compatible(other SemanticType) bool {
	if t == other {
		return true
	}
	return t.IsNumeric() && other.IsNumeric()
}

// =============================================================================
// Tabular Model
// =============================================================================

// Value is a single cell. A nil Value is SQL NULL. Non-nil cells hold one of
// int64, float64, string, bool or time.Time, matching the column's semantic
// type. Adapters are responsible for scanning driver values into this set.
type Value = any

// Column describes one column of a tabular result.
type Column struct {
	// Name as reported by the database (or declared in the golden set).
	Name string `json:"name" yaml:"name"`

	// Type is the semantic type used for comparison dispatch.
	Type SemanticType `json:"type" yaml:"type"`
}

// Row is one row of cells, aligned positionally to the column list.
type Row []Value

// Tabular is the normalized representation of a query result. Both golden
// and actual results are expressed in this form before comparison.
//
// Invariant: every row has exactly len(Columns) cells. Validate enforces
// this; Compare calls Validate on both sides before grading.
type Tabular struct {
	Columns []Column `json:"columns" yaml:"columns"`
	Rows    []Row    `json:"rows" yaml:"rows"`
}

// NewTabular builds a Tabular from column definitions and rows.
//
// Inputs:
//
//	cols - column definitions in result order.
//	rows - cell rows; each must align to cols.
//
// Outputs:
//
//	Tabular - the assembled result. Not validated; call Validate.
func NewTabular(cols []Column, rows []Row) Tabular {
	return Tabular{Columns: cols, Rows: rows}
}

// Validate checks the width invariant.
//
// Outputs:
//
//	error - wraps ErrMalformedResult naming the first offending row, or nil.
func (t Tabular) Validate() error {
	want := len(t.Columns)
	for i, row := range t.Rows {
		if len(row) != want {
			return fmt.Errorf("%w: row %d has %d cells, expected %d",
				ErrMalformedResult, i, len(row), want)
		}
	}
	return nil
}

// ColumnNames returns the column names in declaration order.
func (t Tabular) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// RowCount returns the number of rows.
func (t Tabular) RowCount() int { return len(t.Rows) }

// =============================================================================
// Verdict
// =============================================================================

// Location pinpoints the first mismatching cell for diagnostics.
type Location struct {
	// Row is the zero-based index in canonical row order.
	Row int `json:"row"`

	// Column is the golden-side column name.
	Column string `json:"column"`
}

// Verdict is the outcome of one comparison. Immutable once returned.
//
// A failed Verdict is an expected, first-class result: the harness renders
// it in reports rather than treating it as an error.
type Verdict struct {
	// Match is true when the actual result is equivalent to the golden one.
	Match bool `json:"match"`

	// Reason describes the first mismatch, or confirms the match.
	Reason string `json:"reason"`

	// Location is set for value-layer mismatches only.
	Location *Location `json:"location,omitempty"`
}

func matched(reason string) Verdict {
	return Verdict{Match: true, Reason: reason}
}

func mismatched(reason string) Verdict {
	return Verdict{Match: false, Reason: reason}
}

func mismatchedAt(reason string, row int, column string) Verdict {
	return Verdict{
		Match:    false,
		Reason:   reason,
		Location: &Location{Row: row, Column: column},
	}
}

// QualityTier labels how degraded the schema variant behind a verdict was.
// The robustness aggregator groups verdicts by tier.
type QualityTier int

const (
	// TierHigh is the clean, well-named, documented schema.
	TierHigh QualityTier = iota

	// TierMedium has degraded naming and sparse documentation.
	TierMedium

	// TierLow has opaque names and no constraints or comments.
	TierLow
)

// String returns the lowercase tier name.
func (q QualityTier) String() string {
	switch q {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	default:
		return fmt.Sprintf("QualityTier(%d)", int(q))
	}
}

// ParseQualityTier maps a tier name to its QualityTier, defaulting to high.
func ParseQualityTier(s string) QualityTier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "medium", "med":
		return TierMedium
	case "low":
		return TierLow
	default:
		return TierHigh
	}
}

// MarshalJSON encodes the tier as its name.
func (q QualityTier) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

// UnmarshalJSON decodes a tier from its name.
func (q *QualityTier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*q = ParseQualityTier(s)
	return nil
}

// MarshalYAML encodes the tier as its name.
func (q QualityTier) MarshalYAML() (any, error) {
	return q.String(), nil
}

// UnmarshalYAML decodes a tier from its name.
func (q *QualityTier) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	*q = ParseQualityTier(s)
	return nil
}

// normalizeCell coerces adapter-provided cells into the canonical set.
//
// JSON round trips turn integers into float64 and timestamps into strings;
// this restores them using the column's declared type so comparisons stay
// exact where they should be.
func normalizeCell(v Value, t SemanticType) Value {
	if v == nil {
		return nil
	}
	switch t {
	case TypeInteger:
		switch n := v.(type) {
		case int:
			return int64(n)
		case int32:
			return int64(n)
		case int64:
			return n
		case float64:
			return int64(n)
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return i
			}
		}
	case TypeFloat, TypeDecimal:
		switch n := v.(type) {
		case int:
			return float64(n)
		case int32:
			return float64(n)
		case int64:
			return float64(n)
		case float32:
			return float64(n)
		case float64:
			return n
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f
			}
		}
	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b
		case int64:
			return b != 0
		case float64:
			return b != 0
		}
	case TypeDate, TypeDatetime:
		switch ts := v.(type) {
		case time.Time:
			return ts
		case string:
			if parsed, ok := parseTimeString(ts); ok {
				return parsed
			}
		}
	}
	return v
}

// timeLayouts are tried in order when a datetime cell arrives as a string.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimeString(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
