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

import (
	"fmt"
	"sync"
	"time"
)

// StateMachine manages valid state transitions for the turn loop.
//
// The state machine enforces the following transition graph:
//
//	IDLE → ANALYZE               : Turn received
//	ANALYZE → REPAIR_CHECK       : Signal pipeline completed
//	ANALYZE → FINALIZE           : Turn deadline expired, degrading
//	REPAIR_CHECK → REPAIR        : Regulation requested a repair
//	REPAIR_CHECK → RELATIONAL    : No repair needed or ceiling reached
//	REPAIR_CHECK → FINALIZE      : Turn deadline expired, degrading
//	REPAIR → ANALYZE             : Re-running the Analyst
//	REPAIR → FINALIZE            : Turn deadline expired, degrading
//	RELATIONAL → FINALIZE        : Graph inference completed
//	FINALIZE → DONE              : Reply composed and persisted
//	DONE → IDLE                  : Session ready for the next turn
//	* → ERROR                    : Any state can transition to ERROR
//
// Thread Safety:
//
//	StateMachine is safe for concurrent use.
type StateMachine struct {
	mu sync.RWMutex

	// transitions maps (from, to) pairs that are valid.
	transitions map[TurnState]map[TurnState]bool
}

// NewStateMachine creates a new state machine with all valid transitions.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[TurnState]map[TurnState]bool),
	}

	for _, state := range AllStates() {
		sm.transitions[state] = make(map[TurnState]bool)
	}

	sm.addTransition(StateIdle, StateAnalyze)

	sm.addTransition(StateAnalyze, StateRepairCheck)
	sm.addTransition(StateAnalyze, StateFinalize)

	sm.addTransition(StateRepairCheck, StateRepair)
	sm.addTransition(StateRepairCheck, StateRelational)
	sm.addTransition(StateRepairCheck, StateFinalize)

	sm.addTransition(StateRepair, StateAnalyze)
	sm.addTransition(StateRepair, StateFinalize)

	sm.addTransition(StateRelational, StateFinalize)

	sm.addTransition(StateFinalize, StateDone)

	sm.addTransition(StateDone, StateIdle)

	// Every non-terminal state may fail.
	for _, state := range AllStates() {
		if state != StateError && state != StateDone {
			sm.addTransition(state, StateError)
		}
	}

	return sm
}

func (sm *StateMachine) addTransition(from, to TurnState) {
	sm.transitions[from][to] = true
}

// CanTransition checks if a transition from one state to another is valid.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) CanTransition(from, to TurnState) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// Transition attempts to move a session's turn state, recording the
// transition in the session history.
//
// Outputs:
//
//	error - ErrInvalidTransition if the transition is not allowed
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) Transition(session *Session, to TurnState) error {
	from := session.TurnState()

	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	session.setTurnState(to)
	session.appendHistory(HistoryEntry{
		Timestamp: time.Now().UTC(),
		Type:      "state_transition",
		State:     to,
		Detail:    sm.TransitionReason(from, to),
	})
	return nil
}

// ValidTransitionsFrom returns all valid transitions from a given state.
func (sm *StateMachine) ValidTransitionsFrom(from TurnState) []TurnState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var result []TurnState
	if toMap, ok := sm.transitions[from]; ok {
		for state, valid := range toMap {
			if valid {
				result = append(result, state)
			}
		}
	}
	return result
}

// TransitionReason provides a human-readable description of a transition.
func (sm *StateMachine) TransitionReason(from, to TurnState) string {
	key := from.String() + "->" + to.String()

	reasons := map[string]string{
		"IDLE->ANALYZE":            "Turn received",
		"ANALYZE->REPAIR_CHECK":    "Signal pipeline completed",
		"ANALYZE->FINALIZE":        "Turn deadline expired, degrading",
		"REPAIR_CHECK->REPAIR":     "Regulation requested a repair",
		"REPAIR_CHECK->RELATIONAL": "No repair needed or ceiling reached",
		"REPAIR_CHECK->FINALIZE":   "Turn deadline expired, degrading",
		"REPAIR->ANALYZE":          "Re-running the Analyst",
		"REPAIR->FINALIZE":         "Turn deadline expired, degrading",
		"RELATIONAL->FINALIZE":     "Graph inference completed",
		"FINALIZE->DONE":           "Reply composed and persisted",
		"DONE->IDLE":               "Session ready for the next turn",
	}

	if reason, ok := reasons[key]; ok {
		return reason
	}
	if to == StateError {
		return "Unrecoverable turn failure"
	}
	return "Unknown transition"
}

// DefaultStateMachine is the shared state machine instance.
var DefaultStateMachine = NewStateMachine()
