// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package secrets resolves API keys out of the environment into
// memguard enclaves so they never sit in plain pageable memory between
// uses. Configuration files carry only environment variable names;
// this package owns the values.
package secrets

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/sys/unix"
)

const (
	// MinMlockKB is the mlock limit required for enclave storage. A
	// handful of API keys costs a few guarded pages each.
	MinMlockKB = 64

	// InsecureMemoryEnv opts into unlocked storage when the mlock
	// limit is below MinMlockKB.
	InsecureMemoryEnv = "NLQBENCH_INSECURE_MEMORY"
)

var (
	// ErrSecretNotFound indicates no secret was resolved under a name.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrEnvNotSet indicates the referenced environment variable is
	// unset or empty.
	ErrEnvNotSet = errors.New("environment variable not set")

	// ErrInsecureMemory indicates the mlock limit cannot hold the
	// enclaves and the insecure override is not set.
	ErrInsecureMemory = errors.New("mlock limit insufficient for secure memory")
)

var (
	initOnce        sync.Once
	mlockSufficient bool
	mlockLimitKB    int64
)

// initSecure probes the mlock limit once and arms memguard's interrupt
// handler so enclaves are wiped on SIGINT.
func initSecure() {
	initOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, mlockLimitKB = probeMlock()
	})
}

// probeMlock reports whether RLIMIT_MEMLOCK can hold the enclaves.
// Unlimited or unreadable limits count as sufficient; allocation will
// fail loudly later if the probe was wrong.
func probeMlock() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("could not determine mlock limit", "error", err)
		return true, -1
	}
	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}
	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= MinMlockKB, limitKB
}

// Store holds resolved secrets keyed by name, usually endpoint name.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	enclaves map[string]*memguard.Enclave

	// insecure replaces enclaves when the mlock limit is too low and
	// the operator opted in via InsecureMemoryEnv.
	insecure map[string][]byte

	logger *slog.Logger
}

// Option adjusts store construction.
type Option func(*Store)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates an empty secret store.
//
// Outputs:
//   - *Store: Ready for ResolveEnv calls.
//   - error: Wraps ErrInsecureMemory when the mlock limit is below
//     MinMlockKB and InsecureMemoryEnv is not "true".
func NewStore(opts ...Option) (*Store, error) {
	initSecure()

	s := &Store{
		enclaves: make(map[string]*memguard.Enclave),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if !mlockSufficient {
		if os.Getenv(InsecureMemoryEnv) != "true" {
			return nil, fmt.Errorf("%w: have %d KB, need %d KB; raise the limit or set %s=true",
				ErrInsecureMemory, mlockLimitKB, MinMlockKB, InsecureMemoryEnv)
		}
		s.insecure = make(map[string][]byte)
		s.logger.Warn("storing secrets in unlocked memory",
			"mlock_limit_kb", mlockLimitKB,
			"required_kb", MinMlockKB,
		)
	}
	return s, nil
}

// ResolveEnv reads an environment variable and seals its value under
// name. The variable must be set and non-empty; a missing key should
// fail at startup, not on the first authenticated request.
func (s *Store) ResolveEnv(name, envVar string) error {
	value, ok := os.LookupEnv(envVar)
	if !ok || value == "" {
		return fmt.Errorf("%w: %s (secret %q)", ErrEnvNotSet, envVar, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insecure != nil {
		s.insecure[name] = []byte(value)
		return nil
	}
	// NewEnclave wipes the intermediate slice after sealing.
	s.enclaves[name] = memguard.NewEnclave([]byte(value))
	return nil
}

// Use opens the named secret and lends it to fn for the duration of
// the call. The backing buffer is destroyed when fn returns; fn gets a
// copy it should not retain longer than needed.
func (s *Store) Use(name string, fn func(value string) error) error {
	s.mu.Lock()
	enclave, sealed := s.enclaves[name]
	var plain []byte
	if s.insecure != nil {
		plain = s.insecure[name]
	}
	s.mu.Unlock()

	if plain != nil {
		return fn(string(plain))
	}
	if !sealed {
		return fmt.Errorf("%w: %q", ErrSecretNotFound, name)
	}

	buf, err := enclave.Open()
	if err != nil {
		return fmt.Errorf("open enclave %q: %w", name, err)
	}
	defer buf.Destroy()
	return fn(string(buf.Bytes()))
}

// Has reports whether a secret is resolved under name.
func (s *Store) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insecure != nil {
		_, ok := s.insecure[name]
		return ok
	}
	_, ok := s.enclaves[name]
	return ok
}

// Names returns the resolved secret names, sorted.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.enclaves)+len(s.insecure))
	for name := range s.enclaves {
		names = append(names, name)
	}
	for name := range s.insecure {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Destroy drops every secret from the store. Insecure values are
// zeroed first. Process-wide enclave destruction belongs to Purge at
// shutdown.
func (s *Store) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, value := range s.insecure {
		for i := range value {
			value[i] = 0
		}
		delete(s.insecure, name)
	}
	for name := range s.enclaves {
		delete(s.enclaves, name)
	}
}

// Purge wipes all memguard memory. Call once at process shutdown;
// every store is unusable afterwards.
func Purge() {
	memguard.Purge()
}
