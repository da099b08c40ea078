// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package robustness

import (
	"math"
	"testing"

	"github.com/AleutianAI/nlqbench/services/harness/result"
)

func createTagged(tier result.QualityTier, matches, misses int) []TaggedVerdict {
	out := make([]TaggedVerdict, 0, matches+misses)
	for i := 0; i < matches; i++ {
		out = append(out, TaggedVerdict{Tier: tier, Verdict: result.Verdict{Match: true}})
	}
	for i := 0; i < misses; i++ {
		out = append(out, TaggedVerdict{
			Tier:    tier,
			Verdict: result.Verdict{Match: false, Reason: "value mismatch"},
		})
	}
	return out
}

func TestAggregate_RatioAcrossTiers(t *testing.T) {
	// High tier 8/10, low tier 4/10: degraded schemas keep half the
	// clean-tier accuracy.
	tagged := append(createTagged(result.TierHigh, 8, 2),
		createTagged(result.TierLow, 4, 6)...)

	score := Aggregate(tagged)
	if !score.Available {
		t.Fatal("expected score to be available with both tiers present")
	}
	if score.Undefined {
		t.Fatal("score should not be undefined")
	}
	if math.Abs(score.Value-0.5) > 1e-9 {
		t.Errorf("score = %v, want 0.5", score.Value)
	}
}

func TestAggregate_PerfectRobustness(t *testing.T) {
	tagged := append(createTagged(result.TierHigh, 5, 0),
		createTagged(result.TierLow, 5, 0)...)

	score := Aggregate(tagged)
	if math.Abs(score.Value-1.0) > 1e-9 {
		t.Errorf("score = %v, want 1.0", score.Value)
	}
}

func TestAggregate_ZeroHighTier(t *testing.T) {
	// High tier scored nothing. The ratio is meaningless; the score is
	// zero with the undefined flag instead of a division panic.
	tagged := append(createTagged(result.TierHigh, 0, 5),
		createTagged(result.TierLow, 3, 2)...)

	score := Aggregate(tagged)
	if !score.Available {
		t.Fatal("expected score to be available")
	}
	if !score.Undefined {
		t.Error("expected undefined flag for zero high-tier accuracy")
	}
	if score.Value != 0 {
		t.Errorf("score = %v, want 0", score.Value)
	}
}

func TestAggregate_MissingTier(t *testing.T) {
	t.Run("no low tier", func(t *testing.T) {
		score := Aggregate(createTagged(result.TierHigh, 5, 0))
		if score.Available {
			t.Error("score should be unavailable without low-tier verdicts")
		}
		if score.Value != 0 {
			t.Errorf("score = %v, want 0", score.Value)
		}
	})

	t.Run("no high tier", func(t *testing.T) {
		score := Aggregate(createTagged(result.TierLow, 5, 0))
		if score.Available {
			t.Error("score should be unavailable without high-tier verdicts")
		}
	})

	t.Run("no verdicts at all", func(t *testing.T) {
		score := Aggregate(nil)
		if score.Available || score.Undefined || score.Value != 0 {
			t.Errorf("empty input should yield a zero unavailable score, got %+v", score)
		}
		if len(score.Tiers) != 0 {
			t.Errorf("expected no tier breakdown, got %v", score.Tiers)
		}
	})
}

func TestAggregate_TierBreakdown(t *testing.T) {
	tagged := append(createTagged(result.TierHigh, 9, 1),
		createTagged(result.TierMedium, 7, 3)...)
	tagged = append(tagged, createTagged(result.TierLow, 5, 5)...)

	score := Aggregate(tagged)
	if len(score.Tiers) != 3 {
		t.Fatalf("expected 3 tiers in breakdown, got %d", len(score.Tiers))
	}

	// Best tier first.
	order := []result.QualityTier{result.TierHigh, result.TierMedium, result.TierLow}
	accuracy := []float64{0.9, 0.7, 0.5}
	for i, tier := range order {
		if score.Tiers[i].Tier != tier {
			t.Errorf("tier[%d] = %s, want %s", i, score.Tiers[i].Tier, tier)
		}
		if math.Abs(score.Tiers[i].Accuracy-accuracy[i]) > 1e-9 {
			t.Errorf("tier %s accuracy = %v, want %v", tier, score.Tiers[i].Accuracy, accuracy[i])
		}
		if score.Tiers[i].Total != 10 {
			t.Errorf("tier %s total = %d, want 10", tier, score.Tiers[i].Total)
		}
	}

	// Medium influences the breakdown but not the ratio.
	if math.Abs(score.Value-0.5/0.9) > 1e-9 {
		t.Errorf("score = %v, want %v", score.Value, 0.5/0.9)
	}
}
