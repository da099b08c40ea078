// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package result

import "errors"

var (
	// ErrMalformedResult indicates a Tabular whose rows do not align to its
	// columns. This is a collaborator bug: fail fast, never coerce.
	ErrMalformedResult = errors.New("malformed tabular result")

	// ErrUnresolvedRules indicates a rule set with a required field left
	// unset or out of range. Rule sets must be fully resolved before any
	// comparison begins.
	ErrUnresolvedRules = errors.New("comparison rule set not fully resolved")

	// ErrComparatorExists is returned when registering a comparison
	// function for a semantic type that already has one without Replace.
	ErrComparatorExists = errors.New("comparator already registered for type")
)
