// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package question loads benchmark question banks from YAML files.
//
// A bank file holds either a single question document or a list under a
// top-level "questions:" key. Directories of bank files load in sorted
// filename order. Watch re-loads a bank when its file changes on disk,
// which lets serve mode pick up edits without a restart.
package question

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/nlqbench/services/harness/result"
	"github.com/AleutianAI/nlqbench/services/harness/sqlinspect"
)

// DefaultDialect is the golden SQL key that serves any database dialect
// without its own entry.
const DefaultDialect = "default"

// Question is one benchmark case: a natural-language question paired
// with the reference SQL that answers it.
type Question struct {
	// ID uniquely identifies the question within a bank.
	ID string `yaml:"id" json:"id"`

	// Text is the natural-language question sent to the system under
	// test.
	Text string `yaml:"text" json:"text"`

	// Domain groups questions by subject area (ecommerce, finance).
	Domain string `yaml:"domain,omitempty" json:"domain,omitempty"`

	// Complexity is the declared L1..L6 level. When omitted the loader
	// infers it from the golden SQL structure.
	Complexity sqlinspect.Level `yaml:"complexity,omitempty" json:"complexity"`

	// Tier is the linguistic quality of the phrasing. Degraded tiers
	// feed the robustness ratio.
	Tier result.QualityTier `yaml:"tier,omitempty" json:"tier"`

	// GoldenSQL maps database dialect to the reference query. The
	// "default" entry serves dialects without their own.
	GoldenSQL map[string]string `yaml:"golden_sql" json:"golden_sql"`

	// Rules overrides comparison rules for this question only. Nil
	// means the resolved database and global rules apply unchanged.
	Rules *result.Overlay `yaml:"rules,omitempty" json:"rules,omitempty"`

	// BaseID links a degraded-phrasing variant back to the clean
	// question it rephrases. Empty for standalone questions.
	BaseID string `yaml:"base_id,omitempty" json:"base_id,omitempty"`

	// Tags are free-form labels for filtering.
	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	// Metadata carries arbitrary annotations through to reports.
	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Golden returns the reference SQL for a dialect, falling back to the
// "default" entry when the dialect has none.
func (q *Question) Golden(dialect string) (string, bool) {
	if sql, ok := q.GoldenSQL[dialect]; ok {
		return sql, true
	}
	sql, ok := q.GoldenSQL[DefaultDialect]
	return sql, ok
}

// IsVariant reports whether the question is a degraded rephrasing of
// another question.
func (q *Question) IsVariant() bool {
	return q.BaseID != ""
}

// HasTag reports whether the question carries the tag.
func (q *Question) HasTag(tag string) bool {
	for _, t := range q.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// validate checks the fields a single question controls. Cross-question
// checks (id uniqueness, base references) happen at bank construction.
func (q *Question) validate() error {
	if strings.TrimSpace(q.ID) == "" {
		return ErrMissingID
	}
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: question %q", ErrMissingText, q.ID)
	}
	if len(q.GoldenSQL) == 0 {
		return fmt.Errorf("%w: question %q", ErrMissingGoldenSQL, q.ID)
	}
	for dialect, sql := range q.GoldenSQL {
		if strings.TrimSpace(sql) == "" {
			return fmt.Errorf("%w: question %q dialect %q", ErrMissingGoldenSQL, q.ID, dialect)
		}
	}
	if q.BaseID != "" && q.BaseID == q.ID {
		return fmt.Errorf("%w: question %q references itself", ErrInvalidBaseID, q.ID)
	}
	return nil
}
