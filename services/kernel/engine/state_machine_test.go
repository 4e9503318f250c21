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
	"errors"
	"testing"
)

func TestCanTransition_ValidTransitions(t *testing.T) {
	sm := NewStateMachine()

	tests := []struct {
		name string
		from TurnState
		to   TurnState
	}{
		{"idle to analyze", StateIdle, StateAnalyze},
		{"analyze to repair check", StateAnalyze, StateRepairCheck},
		{"analyze to finalize on deadline", StateAnalyze, StateFinalize},
		{"repair check to repair", StateRepairCheck, StateRepair},
		{"repair check to relational", StateRepairCheck, StateRelational},
		{"repair check to finalize on deadline", StateRepairCheck, StateFinalize},
		{"repair back to analyze", StateRepair, StateAnalyze},
		{"repair to finalize on deadline", StateRepair, StateFinalize},
		{"relational to finalize", StateRelational, StateFinalize},
		{"finalize to done", StateFinalize, StateDone},
		{"done back to idle", StateDone, StateIdle},
		{"idle to error", StateIdle, StateError},
		{"analyze to error", StateAnalyze, StateError},
		{"finalize to error", StateFinalize, StateError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !sm.CanTransition(tt.from, tt.to) {
				t.Errorf("CanTransition(%s, %s) = false, want true", tt.from, tt.to)
			}
		})
	}
}

func TestCanTransition_InvalidTransitions(t *testing.T) {
	sm := NewStateMachine()

	tests := []struct {
		name string
		from TurnState
		to   TurnState
	}{
		{"idle cannot skip to relational", StateIdle, StateRelational},
		{"idle cannot skip to finalize", StateIdle, StateFinalize},
		{"idle cannot skip to done", StateIdle, StateDone},
		{"analyze cannot repair directly", StateAnalyze, StateRepair},
		{"analyze cannot return to idle", StateAnalyze, StateIdle},
		{"repair cannot skip to relational", StateRepair, StateRelational},
		{"relational cannot restart analysis", StateRelational, StateAnalyze},
		{"done cannot fail", StateDone, StateError},
		{"error is terminal", StateError, StateIdle},
		{"error cannot analyze", StateError, StateAnalyze},
		{"no self loop", StateAnalyze, StateAnalyze},
		{"unknown state", TurnState("BOGUS"), StateAnalyze},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if sm.CanTransition(tt.from, tt.to) {
				t.Errorf("CanTransition(%s, %s) = true, want false", tt.from, tt.to)
			}
		})
	}
}

func TestTransition_UpdatesSessionAndHistory(t *testing.T) {
	sm := NewStateMachine()
	sess := NewSession("sess-1")

	if err := sm.Transition(sess, StateAnalyze); err != nil {
		t.Fatalf("Transition to ANALYZE failed: %v", err)
	}
	if got := sess.TurnState(); got != StateAnalyze {
		t.Errorf("TurnState = %s, want %s", got, StateAnalyze)
	}

	history := sess.History()
	if len(history) != 1 {
		t.Fatalf("History length = %d, want 1", len(history))
	}
	if history[0].Type != "state_transition" {
		t.Errorf("History entry type = %q, want state_transition", history[0].Type)
	}
	if history[0].Detail != "Turn received" {
		t.Errorf("History detail = %q, want %q", history[0].Detail, "Turn received")
	}
}

func TestTransition_InvalidReturnsError(t *testing.T) {
	sm := NewStateMachine()
	sess := NewSession("sess-1")

	err := sm.Transition(sess, StateDone)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Transition(IDLE, DONE) error = %v, want ErrInvalidTransition", err)
	}
	if got := sess.TurnState(); got != StateIdle {
		t.Errorf("TurnState after failed transition = %s, want %s", got, StateIdle)
	}
	if len(sess.History()) != 0 {
		t.Error("failed transition should not record history")
	}
}

func TestStateMachine_FullTurnPath(t *testing.T) {
	sm := NewStateMachine()
	sess := NewSession("sess-1")

	path := []TurnState{
		StateAnalyze, StateRepairCheck, StateRepair, StateAnalyze,
		StateRepairCheck, StateRelational, StateFinalize, StateDone, StateIdle,
	}
	for _, state := range path {
		if err := sm.Transition(sess, state); err != nil {
			t.Fatalf("Transition to %s failed: %v", state, err)
		}
	}
	if len(sess.History()) != len(path) {
		t.Errorf("History length = %d, want %d", len(sess.History()), len(path))
	}
}

func TestIsTerminal(t *testing.T) {
	for _, state := range AllStates() {
		want := state == StateDone || state == StateError
		if got := state.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", state, got, want)
		}
	}
}

func TestValidTransitionsFrom(t *testing.T) {
	sm := NewStateMachine()

	got := sm.ValidTransitionsFrom(StateRepairCheck)
	want := map[TurnState]bool{
		StateRepair: true, StateRelational: true, StateFinalize: true, StateError: true,
	}
	if len(got) != len(want) {
		t.Fatalf("ValidTransitionsFrom(REPAIR_CHECK) = %v, want %d states", got, len(want))
	}
	for _, state := range got {
		if !want[state] {
			t.Errorf("unexpected transition REPAIR_CHECK -> %s", state)
		}
	}

	if transitions := sm.ValidTransitionsFrom(StateError); len(transitions) != 0 {
		t.Errorf("ValidTransitionsFrom(ERROR) = %v, want none", transitions)
	}
}
