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
	"sync"
	"testing"
)

// =============================================================================
// GetPersonality / SetPersonality Tests
// =============================================================================

func TestSetPersonality_AndGet(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	custom := Personality{
		Level: PersonalityMinimal,
		Theme: "custom",
	}
	SetPersonality(custom)

	retrieved := GetPersonality()
	if retrieved.Level != PersonalityMinimal {
		t.Errorf("expected level %v, got %v", PersonalityMinimal, retrieved.Level)
	}
	if retrieved.Theme != "custom" {
		t.Errorf("expected theme 'custom', got %q", retrieved.Theme)
	}
}

func TestSetPersonalityLevel(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	levels := []PersonalityLevel{
		PersonalityFull,
		PersonalityStandard,
		PersonalityMinimal,
		PersonalityMachine,
	}
	for _, level := range levels {
		t.Run(string(level), func(t *testing.T) {
			SetPersonalityLevel(level)
			if GetPersonality().Level != level {
				t.Errorf("expected %v, got %v", level, GetPersonality().Level)
			}
		})
	}
}

// =============================================================================
// ParsePersonalityLevel Tests
// =============================================================================

func TestParsePersonalityLevel(t *testing.T) {
	tests := []struct {
		input string
		want  PersonalityLevel
	}{
		{"full", PersonalityFull},
		{"f", PersonalityFull},
		{"FULL", PersonalityFull},
		{"standard", PersonalityStandard},
		{"std", PersonalityStandard},
		{"s", PersonalityStandard},
		{"minimal", PersonalityMinimal},
		{"min", PersonalityMinimal},
		{"m", PersonalityMinimal},
		{"machine", PersonalityMachine},
		{"quiet", PersonalityMachine},
		{"q", PersonalityMachine},
		{"bogus", PersonalityStandard},
		{"", PersonalityStandard},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParsePersonalityLevel(tt.input); got != tt.want {
				t.Errorf("ParsePersonalityLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// =============================================================================
// InitPersonality Tests
// =============================================================================

func TestInitPersonality_EnvOverride(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	t.Setenv("NLQBENCH_PERSONALITY", "minimal")
	InitPersonality()

	if GetPersonality().Level != PersonalityMinimal {
		t.Errorf("expected PersonalityMinimal from env, got %v", GetPersonality().Level)
	}
}

func TestInitPersonality_NonTerminal(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	t.Setenv("NLQBENCH_PERSONALITY", "")
	InitPersonality()

	// Test binaries run with stdout redirected, so machine mode is expected.
	if isTerminal() {
		t.Skip("stdout is a terminal in this environment")
	}
	if GetPersonality().Level != PersonalityMachine {
		t.Errorf("expected PersonalityMachine for piped output, got %v", GetPersonality().Level)
	}
}

// =============================================================================
// Predicate Tests
// =============================================================================

func TestShouldShowProgress(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)
	if !ShouldShowProgress() {
		t.Error("full personality should show progress")
	}

	SetPersonalityLevel(PersonalityMachine)
	if ShouldShowProgress() {
		t.Error("machine personality should not show progress")
	}
}

func TestShouldShowColors(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityStandard)
	if !ShouldShowColors() {
		t.Error("standard personality should use colors")
	}

	SetPersonalityLevel(PersonalityMachine)
	if ShouldShowColors() {
		t.Error("machine personality should not use colors")
	}
}

func TestDefaultPersonality(t *testing.T) {
	p := DefaultPersonality()
	if p.Level != PersonalityFull {
		t.Errorf("expected PersonalityFull, got %v", p.Level)
	}
	if p.Theme != "default" {
		t.Errorf("expected default theme, got %q", p.Theme)
	}
}

// =============================================================================
// Concurrency
// =============================================================================

func TestPersonality_ConcurrentAccess(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				SetPersonalityLevel(PersonalityMinimal)
			} else {
				_ = GetPersonality()
			}
		}(i)
	}
	wg.Wait()
}
