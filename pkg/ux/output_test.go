// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"strings"
	"testing"
)

// =============================================================================
// Icon Tests
// =============================================================================

func TestIcon_Render(t *testing.T) {
	tests := []struct {
		name string
		icon Icon
	}{
		{"success", IconSuccess},
		{"warning", IconWarning},
		{"error", IconError},
		{"pending", IconPending},
		{"arrow", IconArrow},
		{"bullet", IconBullet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rendered := tt.icon.Render()
			if rendered == "" {
				t.Error("Render() returned empty string")
			}
			// Styling escapes aside, the glyph itself survives.
			if !strings.Contains(rendered, string(tt.icon)) {
				t.Errorf("rendered icon should contain %q, got %q", tt.icon, rendered)
			}
		})
	}
}

// =============================================================================
// ProgressBar Tests
// =============================================================================

func TestProgressBar_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityMachine)

	bar := ProgressBar(3, 10, 20)
	if bar != "3/10" {
		t.Errorf("machine mode progress = %q, want 3/10", bar)
	}
}

func TestProgressBar_Percentage(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityFull)

	tests := []struct {
		current, total int
		wantPct        string
	}{
		{0, 10, "0%"},
		{5, 10, "50%"},
		{10, 10, "100%"},
	}

	for _, tt := range tests {
		bar := ProgressBar(tt.current, tt.total, 10)
		if !strings.Contains(bar, tt.wantPct) {
			t.Errorf("ProgressBar(%d, %d) = %q, want it to contain %q",
				tt.current, tt.total, bar, tt.wantPct)
		}
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestRepeatChar(t *testing.T) {
	tests := []struct {
		c    rune
		n    int
		want string
	}{
		{'█', 3, "███"},
		{'x', 0, ""},
		{'x', -1, ""},
		{'░', 1, "░"},
	}

	for _, tt := range tests {
		if got := repeatChar(tt.c, tt.n); got != tt.want {
			t.Errorf("repeatChar(%q, %d) = %q, want %q", tt.c, tt.n, got, tt.want)
		}
	}
}

// =============================================================================
// Styles Smoke Tests
// =============================================================================

func TestStyles_RenderNonEmpty(t *testing.T) {
	// Styles must render text regardless of color support detection.
	outputs := []string{
		Styles.Title.Render("title"),
		Styles.Success.Render("ok"),
		Styles.Error.Render("bad"),
		Styles.Muted.Render("quiet"),
	}
	for i, out := range outputs {
		if out == "" {
			t.Errorf("style %d rendered empty output", i)
		}
	}
}
