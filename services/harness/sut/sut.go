// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sut adapts natural-language-to-SQL systems under test behind
// one Translate interface. Adapters turn a question plus schema context
// into generated SQL and a self-report of the system's own timing and
// token claims. They never execute or grade anything; the runner owns
// that.
package sut

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/nlqbench/services/harness/config"
	"github.com/AleutianAI/nlqbench/services/harness/consistency"
	"github.com/AleutianAI/nlqbench/services/harness/question"
	"github.com/AleutianAI/nlqbench/services/harness/secrets"
)

const tracerName = "nlqbench.harness.sut"

// =============================================================================
// Types
// =============================================================================

// SchemaContext describes the database a question targets. It rides
// along with every translation request so the system under test can
// ground its SQL.
type SchemaContext struct {
	// Database names the target in prompts and logs.
	Database string

	// Dialect is the SQL dialect the generated query must use.
	Dialect string

	// Schema is the DDL or prose description of the tables.
	Schema string
}

// GeneratedQuery is an adapter's answer to one question.
type GeneratedQuery struct {
	// SQL is the extracted query text, fence-stripped and trimmed.
	SQL string

	// Raw is the unmodified model output, kept for failure reports.
	Raw string
}

// Adapter translates questions into SQL.
//
// # Thread Safety
//
// Implementations must be safe for concurrent Translate calls; the
// runner fans questions out across workers.
type Adapter interface {
	// Name returns the configured endpoint name.
	Name() string

	// Translate produces SQL for a question. The self-report carries
	// whatever timing and token usage the system claims about itself;
	// nil means the system reports nothing and only client-side
	// measurements apply.
	Translate(ctx context.Context, q question.Question, schema SchemaContext) (GeneratedQuery, *consistency.SelfReport, error)
}

// =============================================================================
// Factory
// =============================================================================

// New builds the adapter an endpoint configuration selects.
//
// # Inputs
//
//   - cfg: Validated endpoint configuration.
//   - store: Secret store holding resolved API keys. May be nil for
//     kinds that need no credentials.
//
// # Outputs
//
//   - Adapter: Ready for Translate calls.
//   - error: ErrUnknownKind, or a kind-specific construction failure.
func New(cfg config.EndpointConfig, store *secrets.Store) (Adapter, error) {
	switch cfg.Kind {
	case config.KindHTTP:
		return newHTTPAdapter(cfg)
	case config.KindOpenAI:
		return newOpenAIAdapter(cfg, store)
	case config.KindOllama:
		return newOllamaAdapter(cfg)
	case config.KindMock:
		return newMockAdapter(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}

// =============================================================================
// Shared helpers
// =============================================================================

// ExtractSQL pulls a bare SQL statement out of model output. Models
// habitually wrap queries in markdown fences or prefix them with
// chatter; graders should see only the statement.
func ExtractSQL(raw string) string {
	text := strings.TrimSpace(raw)

	// Fenced block wins when present, whatever surrounds it.
	if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+3:]
		// Swallow the language tag on the fence line.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			tag := strings.TrimSpace(rest[:nl])
			if tag == "" || isFenceTag(tag) {
				rest = rest[nl+1:]
			}
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		text = strings.TrimSpace(rest)
	}

	// Drop leading prose such as "Here is the query:".
	if idx := sqlStart(text); idx > 0 {
		text = strings.TrimSpace(text[idx:])
	}

	return text
}

// isFenceTag reports whether a fence language tag plausibly labels SQL.
func isFenceTag(tag string) bool {
	switch strings.ToLower(tag) {
	case "sql", "sqlite", "duckdb", "mysql", "postgres", "postgresql":
		return true
	}
	return false
}

// sqlStart locates the first SQL keyword in free text, or 0.
func sqlStart(text string) int {
	upper := strings.ToUpper(text)
	best := -1
	for _, kw := range []string{"SELECT ", "WITH ", "INSERT ", "UPDATE ", "DELETE "} {
		if idx := strings.Index(upper, kw); idx >= 0 && (best < 0 || idx < best) {
			best = idx
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

