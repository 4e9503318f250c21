// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine drives the per-turn coherence loop: a finite state
// machine over ANALYZE, REPAIR, RELATIONAL, and FINALIZE phases, with
// bounded repair and deadline degradation.
package engine

import "time"

// TurnState represents a state in the turn state machine.
//
// Valid state transitions are enforced by the state machine. Invalid
// transitions return ErrInvalidTransition.
type TurnState string

const (
	// StateIdle is the resting state between turns.
	StateIdle TurnState = "IDLE"

	// StateAnalyze runs the Analyst and the signal pipeline.
	StateAnalyze TurnState = "ANALYZE"

	// StateRepairCheck decides whether a repair iteration runs.
	StateRepairCheck TurnState = "REPAIR_CHECK"

	// StateRepair prepares a regulation-adjusted Analyst re-run.
	StateRepair TurnState = "REPAIR"

	// StateRelational runs the Relational agent and graph inference.
	StateRelational TurnState = "RELATIONAL"

	// StateFinalize composes the user-facing reply.
	StateFinalize TurnState = "FINALIZE"

	// StateDone indicates the turn completed.
	StateDone TurnState = "DONE"

	// StateError indicates an unrecoverable turn failure.
	StateError TurnState = "ERROR"
)

// String returns the string representation of the state.
func (s TurnState) String() string {
	return string(s)
}

// IsTerminal reports whether the turn has finished in this state.
func (s TurnState) IsTerminal() bool {
	return s == StateDone || s == StateError
}

// AllStates returns every turn state.
func AllStates() []TurnState {
	return []TurnState{
		StateIdle, StateAnalyze, StateRepairCheck, StateRepair,
		StateRelational, StateFinalize, StateDone, StateError,
	}
}

// HistoryEntry is one audit event on a session: a state transition or a
// notable turn fact.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	State     TurnState `json:"state"`
	Detail    string    `json:"detail"`
}
