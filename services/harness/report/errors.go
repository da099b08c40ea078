// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import "errors"

var (
	// ErrUnknownFormat indicates a format name outside json, markdown
	// and html.
	ErrUnknownFormat = errors.New("unknown report format")

	// ErrMissingToken indicates the InfluxDB token environment
	// variable is unset or empty.
	ErrMissingToken = errors.New("influxdb token not resolved")

	// ErrMissingBucket indicates an upload destination without a
	// bucket name.
	ErrMissingBucket = errors.New("gcs bucket not configured")
)
