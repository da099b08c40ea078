// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sut

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"

	"github.com/AleutianAI/nlqbench/services/harness/config"
	"github.com/AleutianAI/nlqbench/services/harness/consistency"
	"github.com/AleutianAI/nlqbench/services/harness/question"
	"github.com/AleutianAI/nlqbench/services/harness/tokenest"
)

// mockAdapter is a deterministic stand-in for a real NL-to-SQL system.
// It synthesizes plausible SQL from question keywords, self-reports a
// fixed 60/30/10 parse/generate/execute timing split, and injects
// faults on a per-question hash so runs reproduce exactly regardless
// of worker interleaving.
type mockAdapter struct {
	name      string
	cfg       config.MockConfig
	estimator *tokenest.Estimator
}

func newMockAdapter(cfg config.EndpointConfig) (*mockAdapter, error) {
	return &mockAdapter{
		name:      cfg.Name,
		cfg:       cfg.Mock,
		estimator: tokenest.NewEstimator(),
	}, nil
}

func (a *mockAdapter) Name() string { return a.name }

func (a *mockAdapter) Translate(_ context.Context, q question.Question, schema SchemaContext) (GeneratedQuery, *consistency.SelfReport, error) {
	h := a.hash(q.ID)

	if a.cfg.FailRate > 0 && float64(h%10000)/10000 < a.cfg.FailRate {
		return GeneratedQuery{}, nil, fmt.Errorf("endpoint %s: question %s: %w", a.name, q.ID, ErrInjectedFault)
	}

	sql := a.generate(q, schema)
	report := a.selfReport(h, sql, q, schema)
	return GeneratedQuery{SQL: sql, Raw: sql}, report, nil
}

// hash folds the seed and question id into the per-question dice roll.
func (a *mockAdapter) hash(questionID string) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d:%s", a.cfg.Seed, questionID)
	return h.Sum64()
}

// selfReport fabricates the timing and token claims a real system
// would make. InflateTiming scales only the sub-phases, which breaks
// the sum-versus-total invariant the validator checks.
func (a *mockAdapter) selfReport(h uint64, sql string, q question.Question, schema SchemaContext) *consistency.SelfReport {
	totalMs := float64(40 + h%80)

	inflate := a.cfg.InflateTiming
	if inflate <= 0 {
		inflate = 1
	}
	phases := map[string]float64{
		"parse":    totalMs * 0.6 * inflate,
		"generate": totalMs * 0.3 * inflate,
		"execute":  totalMs * 0.1 * inflate,
	}

	input := a.estimator.Estimate(q.Text, schema.Schema)
	output := len(strings.Fields(sql)) * 2

	return &consistency.SelfReport{
		TotalTimeMs: totalMs,
		SubPhaseMs:  phases,
		Tokens: &consistency.TokenUsage{
			InputTokens:  input,
			OutputTokens: output,
			TotalTokens:  input + output,
		},
		Source: consistency.SourceVendor,
	}
}

// -----------------------------------------------------------------------------
// Keyword-to-SQL synthesis
// -----------------------------------------------------------------------------

var createTableRe = regexp.MustCompile(`(?i)CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?["']?(\w+)`)

// generate synthesizes SQL from the question text. With EchoGolden set
// it replays the reference SQL instead, which makes the mock a
// perfectly-behaved system for end-to-end runs.
func (a *mockAdapter) generate(q question.Question, schema SchemaContext) string {
	if a.cfg.EchoGolden {
		if golden, ok := q.Golden(schema.Dialect); ok {
			return golden
		}
	}

	text := strings.ToLower(q.Text)
	tables := schemaTables(schema.Schema)
	mentioned := mentionedTables(text, tables)

	table := "data"
	if len(mentioned) > 0 {
		table = mentioned[0]
	} else if len(tables) > 0 {
		table = tables[0]
	}

	selectList := "*"
	if agg := aggregateFor(text); agg != "" {
		selectList = agg
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", selectList, table)
	if len(mentioned) > 1 {
		second := mentioned[1]
		fmt.Fprintf(&b, " JOIN %s ON %s.id = %s.%s_id", second, table, second, table)
	}
	if group := groupColumn(text); group != "" && selectList != "*" {
		fmt.Fprintf(&b, " GROUP BY %s", group)
	}
	return b.String()
}

// schemaTables pulls table names out of the schema DDL, in order.
func schemaTables(schema string) []string {
	var tables []string
	for _, m := range createTableRe.FindAllStringSubmatch(schema, -1) {
		tables = append(tables, strings.ToLower(m[1]))
	}
	return tables
}

// mentionedTables returns schema tables the question names, matching
// naive singular/plural variants.
func mentionedTables(text string, tables []string) []string {
	var hits []string
	for _, t := range tables {
		if strings.Contains(text, t) || strings.Contains(text, strings.TrimSuffix(t, "s")) {
			hits = append(hits, t)
		}
	}
	return hits
}

// aggregateFor maps question phrasing to an aggregate expression.
func aggregateFor(text string) string {
	switch {
	case strings.Contains(text, "how many") || strings.Contains(text, "count"):
		return "COUNT(*)"
	case strings.Contains(text, "average") || strings.Contains(text, "mean"):
		return "AVG(total)"
	case strings.Contains(text, "total") || strings.Contains(text, "sum"):
		return "SUM(total)"
	case strings.Contains(text, "highest") || strings.Contains(text, "maximum") || strings.Contains(text, "most"):
		return "MAX(total)"
	case strings.Contains(text, "lowest") || strings.Contains(text, "minimum") || strings.Contains(text, "least"):
		return "MIN(total)"
	}
	return ""
}

// groupColumn guesses a grouping column from "per X" / "by X" / "each X".
func groupColumn(text string) string {
	for _, marker := range []string{" per ", " by ", " each "} {
		idx := strings.Index(text, marker)
		if idx < 0 {
			continue
		}
		rest := strings.Fields(text[idx+len(marker):])
		if len(rest) > 0 {
			return strings.Trim(rest[0], "?,.!")
		}
	}
	return ""
}
