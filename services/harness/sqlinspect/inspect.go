// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sqlinspect screens generated SQL before it reaches a database.
// A query that does not parse fails its question immediately, which keeps
// hallucinated non-SQL from burning an execution slot, and the structural
// counts feed the complexity cross-check in reports.
package sqlinspect

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/sql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "nlqbench.harness.sqlinspect"

// maxDepth bounds tree traversal on heavily malformed input.
const maxDepth = 1000

// Level is a query complexity estimate, L1 (single-table select) through
// L6 (joins, aggregation, subqueries, and CTEs combined).
type Level int

// String returns the level as "L<n>".
func (l Level) String() string {
	return fmt.Sprintf("L%d", int(l))
}

// MarshalJSON encodes the level as its name.
func (l Level) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", l.String())), nil
}

// UnmarshalJSON decodes a level from its name.
func (l *Level) UnmarshalJSON(data []byte) error {
	*l = ParseLevel(strings.Trim(string(data), `"`))
	return nil
}

// MarshalYAML encodes the level as its name.
func (l Level) MarshalYAML() (any, error) {
	return l.String(), nil
}

// UnmarshalYAML decodes a level from its name.
func (l *Level) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	*l = ParseLevel(s)
	return nil
}

// ParseLevel maps "L1".."L6" (case-insensitive) to a Level. Anything
// else is L1.
func ParseLevel(s string) Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) == 2 && s[0] == 'L' && s[1] >= '1' && s[1] <= '6' {
		return Level(s[1] - '0')
	}
	return Level(1)
}

// Report is the structural screening outcome for one query.
type Report struct {
	// Valid is true when the query parsed without error nodes.
	Valid bool `json:"valid"`

	// ErrorNodes counts ERROR and MISSING nodes in the parse tree.
	ErrorNodes int `json:"error_nodes"`

	// Joins counts join clauses.
	Joins int `json:"joins"`

	// Subqueries counts nested selects.
	Subqueries int `json:"subqueries"`

	// Aggregates counts aggregate function calls.
	Aggregates int `json:"aggregates"`

	// CTEs counts common table expressions.
	CTEs int `json:"ctes"`

	// Complexity is the structural complexity estimate. Informational;
	// reports cross-check it against the question's declared level.
	Complexity Level `json:"complexity"`
}

// aggregateNames are the function names counted as aggregation.
var aggregateNames = map[string]bool{
	"count":        true,
	"sum":          true,
	"avg":          true,
	"min":          true,
	"max":          true,
	"total":        true,
	"group_concat": true,
	"string_agg":   true,
}

// Screen parses a query and reports its validity and structure.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - query: The SQL text to screen.
//
// Outputs:
//   - *Report: Structural screening outcome. Invalid SQL is a Report
//     with Valid false, never an error.
//   - error: Non-nil only when parsing itself could not run.
//
// Thread Safety: Safe for concurrent use. Each call owns its parser.
func Screen(ctx context.Context, query string) (*Report, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "sqlinspect.Screen")
	defer span.End()

	report := &Report{Complexity: Level(1)}
	if strings.TrimSpace(query) == "" {
		span.SetAttributes(attribute.Bool("sqlinspect.valid", false))
		return report, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(sql.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, []byte(query))
	if err != nil {
		return nil, fmt.Errorf("parse sql: %w", err)
	}
	defer tree.Close()

	walk(tree.RootNode(), []byte(query), report, 0)
	report.Valid = report.ErrorNodes == 0
	report.Complexity = complexityOf(report)

	span.SetAttributes(
		attribute.Bool("sqlinspect.valid", report.Valid),
		attribute.Int("sqlinspect.error_nodes", report.ErrorNodes),
		attribute.String("sqlinspect.complexity", report.Complexity.String()),
	)
	return report, nil
}

// walk counts structural features in one pass over the tree.
func walk(node *sitter.Node, content []byte, report *Report, depth int) {
	if depth > maxDepth {
		return
	}

	if node.IsError() || node.IsMissing() {
		report.ErrorNodes++
	}

	switch node.Type() {
	case "join":
		report.Joins++
	case "subquery":
		report.Subqueries++
	case "cte":
		report.CTEs++
	case "invocation":
		if isAggregate(node, content) {
			report.Aggregates++
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		walk(node.Child(i), content, report, depth+1)
	}
}

// isAggregate inspects an invocation's function name.
func isAggregate(node *sitter.Node, content []byte) bool {
	start, end := node.StartByte(), node.EndByte()
	if end > uint32(len(content)) {
		end = uint32(len(content))
	}
	text := string(content[start:end])
	paren := strings.Index(text, "(")
	if paren <= 0 {
		return false
	}
	return aggregateNames[strings.ToLower(strings.TrimSpace(text[:paren]))]
}

// complexityOf folds the counts into a level. One point for any
// aggregation, subquery use, or CTE use, up to two for join count,
// on top of the L1 floor.
func complexityOf(r *Report) Level {
	points := 0
	if r.Joins > 0 {
		points++
	}
	if r.Joins > 2 {
		points++
	}
	if r.Aggregates > 0 {
		points++
	}
	if r.Subqueries > 0 {
		points++
	}
	if r.CTEs > 0 {
		points++
	}
	level := 1 + points
	if level > 6 {
		level = 6
	}
	return Level(level)
}
