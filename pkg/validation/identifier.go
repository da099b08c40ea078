// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for externally supplied identifiers that
// end up in file paths or store keys. Run ids loaded from report files and
// endpoint names from configuration both cross that boundary; validating
// them prevents path traversal and key-prefix collisions.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// runIDPattern matches valid run identifiers.
// Allows: letters, digits, dots, underscores, hyphens (covers UUIDs)
// Max length: 64 characters
// Excludes: path separators and ':' (the store's key-prefix separator)
var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,63}$`)

// endpointNamePattern matches valid endpoint names. Same alphabet as run
// ids; endpoint names become per-endpoint history keys in the store.
var endpointNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,63}$`)

// ValidateRunID validates a run identifier before it is used as a report
// directory name or a store key.
//
// Valid run ids:
//   - 1-64 characters
//   - Letters A-Z a-z and digits 0-9
//   - Dots (.), underscores (_), hyphens (-) after the first character
//
// Returns an error if the id is invalid.
//
// Example:
//
//	if err := validation.ValidateRunID(rep.RunID); err != nil {
//	    return fmt.Errorf("invalid run id: %w", err)
//	}
//	// Safe to use in filepath.Join
func ValidateRunID(id string) error {
	if id == "" {
		return fmt.Errorf("run id cannot be empty")
	}

	if !runIDPattern.MatchString(id) {
		return fmt.Errorf("invalid run id format: %q (must be 1-64 alphanumeric chars, dots, underscores, or hyphens)", id)
	}

	return nil
}

// ValidateEndpointName validates an endpoint name from configuration.
// Returns an error if the name is invalid.
func ValidateEndpointName(name string) error {
	if name == "" {
		return fmt.Errorf("endpoint name cannot be empty")
	}

	if !endpointNamePattern.MatchString(name) {
		return fmt.Errorf("invalid endpoint name: %q (must be 1-64 alphanumeric chars, dots, underscores, or hyphens)", name)
	}

	return nil
}

// ValidateEndpointNames validates multiple endpoint names.
// Returns an error listing all invalid names if any fail validation.
func ValidateEndpointNames(names []string) error {
	var invalid []string
	for _, n := range names {
		if err := ValidateEndpointName(n); err != nil {
			invalid = append(invalid, n)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid endpoint names: %v", invalid)
	}
	return nil
}

// SanitizeRunID normalizes and validates a run identifier.
// Returns the trimmed id if valid, or an error if invalid.
//
// Use this for ids arriving from CLI arguments:
//
//	id, err := validation.SanitizeRunID(args[0])
//	if err != nil {
//	    return err
//	}
//	// id is trimmed and validated
func SanitizeRunID(id string) (string, error) {
	normalized := strings.TrimSpace(id)
	if err := ValidateRunID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
