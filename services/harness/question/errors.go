// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package question

import "errors"

var (
	// ErrEmptyBank indicates a bank file or directory yielded no
	// questions.
	ErrEmptyBank = errors.New("question bank is empty")

	// ErrMissingID indicates a question with a blank id.
	ErrMissingID = errors.New("question has no id")

	// ErrMissingText indicates a question with no natural-language
	// text.
	ErrMissingText = errors.New("question has no text")

	// ErrMissingGoldenSQL indicates a question with no golden SQL, or
	// a blank entry for a dialect.
	ErrMissingGoldenSQL = errors.New("question has no golden SQL")

	// ErrDuplicateID indicates two questions in one bank share an id.
	ErrDuplicateID = errors.New("duplicate question id")

	// ErrInvalidBaseID indicates a variant whose base_id does not name
	// another question in the bank.
	ErrInvalidBaseID = errors.New("invalid base question reference")
)
