// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"errors"
	"testing"
	"time"
)

func withMachineMode(t *testing.T) {
	t.Helper()
	orig := GetPersonality()
	t.Cleanup(func() { SetPersonality(orig) })
	SetPersonalityLevel(PersonalityMachine)
}

func TestSpinner_StartStop(t *testing.T) {
	withMachineMode(t)

	s := NewSpinner("loading question bank")
	s.Start()
	s.Stop()

	// Double stop must not panic.
	s.Stop()
}

func TestSpinner_DoubleStart(t *testing.T) {
	withMachineMode(t)

	s := NewSpinner("running warmup")
	s.Start()
	s.Start() // no-op
	s.Stop()
}

func TestSpinner_UpdateMessage(t *testing.T) {
	withMachineMode(t)

	s := NewSpinner("initial")
	s.Start()
	s.UpdateMessage("updated")
	s.Stop()

	if s.message != "updated" {
		t.Errorf("message = %q, want updated", s.message)
	}
}

func TestSpinner_AnimatedStop(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityFull)

	s := NewSpinner("measuring").WithType(SpinnerCompass)
	s.Start()
	time.Sleep(150 * time.Millisecond)
	// Stop must block until the animation goroutine exits.
	s.Stop()
}

func TestWithSpinner_Success(t *testing.T) {
	withMachineMode(t)

	called := false
	err := WithSpinner("executing queries", func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !called {
		t.Error("wrapped function was not called")
	}
}

func TestWithSpinner_Error(t *testing.T) {
	withMachineMode(t)

	wantErr := errors.New("endpoint unreachable")
	err := WithSpinner("translating", func() error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped error to propagate, got %v", err)
	}
}

func TestProgressSpinner_Increment(t *testing.T) {
	withMachineMode(t)

	p := NewProgressSpinner("evaluating", 5)
	p.Start()
	for i := 0; i < 3; i++ {
		p.Increment()
	}
	p.Stop()

	if p.current != 3 {
		t.Errorf("current = %d, want 3", p.current)
	}
}

func TestProgressSpinner_SetProgress(t *testing.T) {
	withMachineMode(t)

	p := NewProgressSpinner("evaluating", 10)
	p.SetProgress(7)

	if p.current != 7 {
		t.Errorf("current = %d, want 7", p.current)
	}
}
