// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package perf

import "errors"

var (
	// ErrInsufficientSamples indicates fewer successful measurement runs
	// survived than the configured floor. Metrics computed from too few
	// samples would be noise, so the sampler refuses to produce them.
	ErrInsufficientSamples = errors.New("insufficient samples")

	// ErrInvalidConfig indicates an invalid sampler configuration.
	ErrInvalidConfig = errors.New("invalid sampler configuration")
)
