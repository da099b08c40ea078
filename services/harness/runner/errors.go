// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runner

import "errors"

var (
	// ErrNoEndpoints indicates a run with nothing to benchmark.
	ErrNoEndpoints = errors.New("no endpoints configured")

	// ErrEmptyBank indicates a run with no questions.
	ErrEmptyBank = errors.New("question bank is empty")

	// ErrAmbiguousDatabase indicates multiple databases are configured
	// and run.database does not pick one.
	ErrAmbiguousDatabase = errors.New("run.database must name one of the configured databases")

	// ErrUnknownDatabase indicates run.database names a database that
	// is not configured.
	ErrUnknownDatabase = errors.New("run.database names an unconfigured database")
)
