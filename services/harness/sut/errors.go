// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sut

import "errors"

var (
	// ErrUnknownKind indicates an endpoint kind with no adapter.
	ErrUnknownKind = errors.New("unknown endpoint kind")

	// ErrMissingCredentials indicates the configured API key was not
	// resolved into the secret store.
	ErrMissingCredentials = errors.New("missing endpoint credentials")

	// ErrEmptyResponse indicates the system answered without any SQL.
	ErrEmptyResponse = errors.New("endpoint returned no query")

	// ErrInjectedFault is returned by the mock adapter when its fault
	// dice come up, so tests can tell injected failures from real ones.
	ErrInjectedFault = errors.New("injected translation fault")
)
