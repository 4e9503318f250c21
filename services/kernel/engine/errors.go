// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import "errors"

var (
	// ErrInvalidTransition is returned when a state transition is not
	// allowed by the state machine.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrSessionNotFound is returned when a lookup names a session the
	// store has never seen.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptyInput is returned when a turn arrives with no input text.
	ErrEmptyInput = errors.New("turn input is empty")
)
