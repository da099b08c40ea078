// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package robustness scores how well a system under test copes with
// degraded schemas. The same questions run against clean, degraded, and
// opaque schema variants; a system that only performs on the clean tier
// is brittle, and the score makes that visible as a single ratio.
package robustness

import (
	"sort"

	"github.com/AleutianAI/nlqbench/services/harness/result"
)

// TaggedVerdict pairs a comparison verdict with the schema quality tier
// the question ran against.
type TaggedVerdict struct {
	// Tier is the schema variant's quality tier.
	Tier result.QualityTier `json:"tier"`

	// Verdict is the comparator's outcome for this question.
	Verdict result.Verdict `json:"verdict"`
}

// TierAccuracy summarizes one tier's outcomes.
type TierAccuracy struct {
	// Tier identifies the schema variant group.
	Tier result.QualityTier `json:"tier"`

	// Matches is the number of matching verdicts.
	Matches int `json:"matches"`

	// Total is the number of verdicts in the tier.
	Total int `json:"total"`

	// Accuracy is Matches / Total.
	Accuracy float64 `json:"accuracy"`
}

// Score is the robustness outcome for one endpoint.
//
// # Description
//
// Value is accuracy(low tier) / accuracy(high tier): 1.0 means schema
// degradation costs nothing, 0.5 means half the clean-tier accuracy
// survives on opaque schemas. Two sentinel states replace errors: Undefined means
// the high tier scored zero so the ratio has no meaning, and
// !Available means at least one of the two tiers had no verdicts at all.
type Score struct {
	// Value is the low/high accuracy ratio. Zero when Undefined or not
	// Available.
	Value float64 `json:"value"`

	// Undefined is true when high-tier accuracy was zero.
	Undefined bool `json:"undefined"`

	// Available is false when the low or high tier had no verdicts.
	Available bool `json:"available"`

	// Tiers is the per-tier breakdown, best tier first. Includes every
	// tier that had at least one verdict, medium included.
	Tiers []TierAccuracy `json:"tiers"`
}

// Aggregate groups verdicts by tier and computes the robustness score.
//
// Inputs:
//   - tagged: Verdicts labeled with the tier they ran against. May be
//     empty.
//
// Outputs:
//   - Score: The aggregate outcome. Never an error; missing data is
//     expressed through the Available and Undefined fields.
//
// Thread Safety: Safe for concurrent use (pure function).
func Aggregate(tagged []TaggedVerdict) Score {
	matches := make(map[result.QualityTier]int)
	totals := make(map[result.QualityTier]int)
	for _, tv := range tagged {
		totals[tv.Tier]++
		if tv.Verdict.Match {
			matches[tv.Tier]++
		}
	}

	score := Score{Tiers: make([]TierAccuracy, 0, len(totals))}
	for tier, total := range totals {
		score.Tiers = append(score.Tiers, TierAccuracy{
			Tier:     tier,
			Matches:  matches[tier],
			Total:    total,
			Accuracy: float64(matches[tier]) / float64(total),
		})
	}
	sort.Slice(score.Tiers, func(i, j int) bool {
		return score.Tiers[i].Tier < score.Tiers[j].Tier
	})

	high, hasHigh := accuracyFor(score.Tiers, result.TierHigh)
	low, hasLow := accuracyFor(score.Tiers, result.TierLow)
	if !hasHigh || !hasLow {
		return score
	}

	score.Available = true
	if high == 0 {
		score.Undefined = true
		return score
	}
	score.Value = low / high
	return score
}

func accuracyFor(tiers []TierAccuracy, tier result.QualityTier) (float64, bool) {
	for _, t := range tiers {
		if t.Tier == tier {
			return t.Accuracy, true
		}
	}
	return 0, false
}
