// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"testing"
)

func TestValidateRunID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		// Valid ids
		{"uuid", "7b0c2c3e-9a1f-4a7e-8a43-2f1f6f3f9d10", false},
		{"single char", "a", false},
		{"with digits", "run42", false},
		{"dotted", "2026.08.23-nightly", false},
		{"underscored", "run_baseline_v2", false},
		{"max length", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},

		// Invalid ids - traversal and key injection attempts
		{"empty", "", true},
		{"path traversal", "../../etc/passwd", true},
		{"absolute path", "/tmp/run", true},
		{"embedded slash", "runs/latest", true},
		{"backslash", `runs\latest`, true},
		{"key prefix separator", "run:1", true},
		{"null byte", "run\x001", true},
		{"newline", "run\n1", true},
		{"spaces", "run 1", true},
		{"too long", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},
		{"starts with dot", ".hidden", true},
		{"starts with hyphen", "-run", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRunID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRunID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateEndpointNames(t *testing.T) {
	tests := []struct {
		name    string
		names   []string
		wantErr bool
	}{
		{"all valid", []string{"gpt-4o", "local-llama", "mock"}, false},
		{"one invalid", []string{"gpt-4o", "bad name", "mock"}, true},
		{"all invalid", []string{"a:b", "c/d"}, true},
		{"empty slice", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEndpointNames(tt.names)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEndpointNames(%v) error = %v, wantErr %v", tt.names, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeRunID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		want    string
		wantErr bool
	}{
		{"passthrough", "run-1", "run-1", false},
		{"trimmed", "  run-1  ", "run-1", false},
		{"traversal rejected", "../run", "", true},
		{"empty rejected", "   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeRunID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizeRunID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SanitizeRunID(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}
