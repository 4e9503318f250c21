// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// =============================================================================
// Turn wire types
// =============================================================================

// TurnRequest is the inbound payload for POST /v1/turn.
//
// # Description
//
// One TurnRequest produces exactly one TurnResponse. SessionID binds the
// turn to a persistent session; unknown IDs create a fresh session with
// neutral internal state.
type TurnRequest struct {
	// SessionID identifies the session this turn belongs to.
	SessionID string `json:"session_id" binding:"required,min=1,max=128"`

	// Input is the raw user utterance for this turn.
	Input string `json:"input" binding:"required,min=1,max=32768"`
}

// TurnResponse is the outbound payload for a completed turn.
type TurnResponse struct {
	// TurnID uniquely identifies this turn (UUID).
	TurnID string `json:"turn_id"`

	// SessionID echoes the request session.
	SessionID string `json:"session_id"`

	// Response is the Synthesiser's user-facing text.
	Response string `json:"response"`

	// InternalState is the post-turn session state snapshot.
	InternalState InternalState `json:"internal_state"`

	// Degraded is true when any stage fell back to a default output
	// because every candidate model failed.
	Degraded bool `json:"degraded"`

	// ProcessingTimeMs is wall-clock turn duration in milliseconds.
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// SessionSummary is the list entry returned by GET /v1/sessions.
type SessionSummary struct {
	SessionID  string         `json:"session_id"`
	TurnCount  int            `json:"turn_count"`
	CreatedAt  string         `json:"created_at"`
	LastTurnAt string         `json:"last_turn_at,omitempty"`
	TrustTau   float64        `json:"trust_tau"`
	Regulation RegulationMode `json:"regulation"`
}

// SessionStateResponse is returned by GET /v1/sessions/:sessionId/state.
type SessionStateResponse struct {
	SessionID     string        `json:"session_id"`
	InternalState InternalState `json:"internal_state"`
	TurnCount     int           `json:"turn_count"`
}
