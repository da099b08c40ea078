// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package secrets

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

// newTestStore builds a store, opting into insecure storage when the
// test machine's mlock limit is too low for enclaves.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := NewStore(WithLogger(logger))
	if errors.Is(err, ErrInsecureMemory) {
		t.Setenv(InsecureMemoryEnv, "true")
		s, err = NewStore(WithLogger(logger))
	}
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestResolveEnv_AndUse(t *testing.T) {
	t.Setenv("NLQ_TEST_API_KEY", "sk-test-123")
	s := newTestStore(t)

	if err := s.ResolveEnv("prod-api", "NLQ_TEST_API_KEY"); err != nil {
		t.Fatalf("ResolveEnv: %v", err)
	}
	if !s.Has("prod-api") {
		t.Error("Has(prod-api) = false after resolve")
	}

	var seen string
	err := s.Use("prod-api", func(value string) error {
		seen = value
		return nil
	})
	if err != nil {
		t.Fatalf("Use: %v", err)
	}
	if seen != "sk-test-123" {
		t.Errorf("secret = %q, want sk-test-123", seen)
	}

	// The enclave survives repeated use.
	if err := s.Use("prod-api", func(string) error { return nil }); err != nil {
		t.Errorf("second Use: %v", err)
	}
}

func TestResolveEnv_MissingVariable(t *testing.T) {
	s := newTestStore(t)

	if err := s.ResolveEnv("x", "NLQ_UNSET_VARIABLE"); !errors.Is(err, ErrEnvNotSet) {
		t.Errorf("unset var err = %v, want ErrEnvNotSet", err)
	}

	t.Setenv("NLQ_EMPTY_KEY", "")
	if err := s.ResolveEnv("x", "NLQ_EMPTY_KEY"); !errors.Is(err, ErrEnvNotSet) {
		t.Errorf("empty var err = %v, want ErrEnvNotSet", err)
	}
}

func TestUse_UnknownSecret(t *testing.T) {
	s := newTestStore(t)

	err := s.Use("never-resolved", func(string) error { return nil })
	if !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("err = %v, want ErrSecretNotFound", err)
	}
}

func TestUse_PropagatesCallbackError(t *testing.T) {
	t.Setenv("NLQ_TEST_API_KEY", "sk-test-123")
	s := newTestStore(t)
	if err := s.ResolveEnv("api", "NLQ_TEST_API_KEY"); err != nil {
		t.Fatalf("ResolveEnv: %v", err)
	}

	sentinel := errors.New("callback failed")
	if err := s.Use("api", func(string) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want callback sentinel", err)
	}
}

func TestNames(t *testing.T) {
	t.Setenv("NLQ_KEY_B", "beta")
	t.Setenv("NLQ_KEY_A", "alpha")
	s := newTestStore(t)

	if err := s.ResolveEnv("zeta", "NLQ_KEY_B"); err != nil {
		t.Fatalf("ResolveEnv: %v", err)
	}
	if err := s.ResolveEnv("alpha", "NLQ_KEY_A"); err != nil {
		t.Fatalf("ResolveEnv: %v", err)
	}

	names := s.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("Names = %v, want [alpha zeta]", names)
	}
}

func TestDestroy(t *testing.T) {
	t.Setenv("NLQ_TEST_API_KEY", "sk-test-123")
	s := newTestStore(t)
	if err := s.ResolveEnv("api", "NLQ_TEST_API_KEY"); err != nil {
		t.Fatalf("ResolveEnv: %v", err)
	}

	s.Destroy()

	if s.Has("api") {
		t.Error("Has(api) = true after Destroy")
	}
	if err := s.Use("api", func(string) error { return nil }); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("Use after Destroy = %v, want ErrSecretNotFound", err)
	}
}
