// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"github.com/AleutianAI/nlqbench/services/harness/result"
)

// RuleLayers holds comparison-rule overlays below the per-question
// override a bank can carry.
type RuleLayers struct {
	// Global applies to every comparison.
	Global *result.Overlay `yaml:"global"`

	// PerDatabase applies to comparisons against a named database.
	PerDatabase map[string]*result.Overlay `yaml:"per_database"`

	// PerQuestion applies to a question id, letting a config adjust a
	// bank it does not own.
	PerQuestion map[string]*result.Overlay `yaml:"per_question"`
}

// Resolve merges the effective rule set for one comparison. Priority
// rises from defaults through global, database, and config-level
// question overlays to the bank's own in-question override.
func (r *RuleLayers) Resolve(database, questionID string, inQuestion *result.Overlay) (result.RuleSet, error) {
	return result.Resolve(
		result.DefaultRules(),
		r.Global,
		r.PerDatabase[database],
		r.PerQuestion[questionID],
		inQuestion,
	)
}
