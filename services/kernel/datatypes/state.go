// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures shared across the coherence
// kernel service: internal session state, agent outputs, turn request and
// response wire types, and contribution audit records.
package datatypes

import "math"

// =============================================================================
// Regulation Mode
// =============================================================================

// RegulationMode governs repair behavior and response style for a session.
//
// # Description
//
// The regulation policy module selects one of three modes after each
// analysis cycle. The mode drives both the repair decision (anything other
// than RegulationNormal triggers a bounded repair iteration) and the tone
// the Synthesiser uses for the final response.
type RegulationMode string

const (
	// RegulationNormal indicates trust is high enough to answer directly.
	RegulationNormal RegulationMode = "normal"

	// RegulationClarify indicates moderate trust; the kernel steers the
	// analysis toward clarification-oriented reasoning.
	RegulationClarify RegulationMode = "clarify"

	// RegulationSlowDown indicates low trust; the kernel slows the exchange
	// down with deliberate, step-wise reasoning.
	RegulationSlowDown RegulationMode = "slow_down"
)

// String returns the string representation of the mode.
func (m RegulationMode) String() string {
	return string(m)
}

// Valid returns true if the mode is one of the three known values.
func (m RegulationMode) Valid() bool {
	switch m {
	case RegulationNormal, RegulationClarify, RegulationSlowDown:
		return true
	default:
		return false
	}
}

// =============================================================================
// Internal State
// =============================================================================

// MaxRepairs is the default upper bound on repair iterations per turn.
// Configurable via the kernel configuration surface; this is the ceiling
// applied when no override is supplied.
const MaxRepairs = 3

// SignalState holds the three affective signals produced by the SIM module.
//
// All fields are probability-like values clamped to [0.0, 1.0].
type SignalState struct {
	// Tension measures argumentative friction in the exchange.
	Tension float64 `json:"tension"`

	// Uncertainty measures hedging and epistemic vagueness.
	Uncertainty float64 `json:"uncertainty"`

	// EmotionalIntensity measures affectively charged language.
	EmotionalIntensity float64 `json:"emotional_intensity"`
}

// Clamped returns a copy with every field clamped to [0, 1].
func (s SignalState) Clamped() SignalState {
	return SignalState{
		Tension:            Clamp01(s.Tension),
		Uncertainty:        Clamp01(s.Uncertainty),
		EmotionalIntensity: Clamp01(s.EmotionalIntensity),
	}
}

// InternalState is the per-session psychometric state owned by the engine.
//
// # Description
//
// One InternalState exists per session. It is mutated in place by the turn
// in flight and persists across turns; it is reinitialized to neutral
// defaults only on session creation. All probability-like fields stay in
// [0.0, 1.0] at every observable point.
//
// # Thread Safety
//
// InternalState itself is not synchronized. Exclusive ownership by the
// in-flight turn is enforced by the engine's per-session serialization.
type InternalState struct {
	// SIM holds the tension/uncertainty/emotional-intensity triple.
	SIM SignalState `json:"sim"`

	// Contradiction is the CAM contradiction score in [0, 1].
	Contradiction float64 `json:"contradiction"`

	// Regulation is the current regulation mode.
	Regulation RegulationMode `json:"regulation"`

	// TrustTau is the CTM trust score in [0, 1].
	TrustTau float64 `json:"trust_tau"`

	// RepairCount is the number of repair iterations executed in the
	// current turn. Reset to 0 at the start of every turn; never exceeds
	// the configured repair ceiling.
	RepairCount int `json:"repair_count"`
}

// NewInternalState returns the neutral default state used at session
// creation: all signals zero, full trust, normal regulation.
func NewInternalState() *InternalState {
	return &InternalState{
		SIM:         SignalState{},
		Regulation:  RegulationNormal,
		TrustTau:    1.0,
		RepairCount: 0,
	}
}

// Snapshot returns a copy of the state suitable for handing to callers and
// persistence without exposing the engine-owned instance.
func (s *InternalState) Snapshot() InternalState {
	return *s
}

// InRange reports whether every probability-like field lies in [0, 1].
// A false result is a programming defect in a signal module, not data.
func (s *InternalState) InRange() bool {
	for _, v := range []float64{
		s.SIM.Tension, s.SIM.Uncertainty, s.SIM.EmotionalIntensity,
		s.Contradiction, s.TrustTau,
	} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return false
		}
	}
	return s.RepairCount >= 0
}

// Clamp01 clamps v to [0.0, 1.0]. NaN clamps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
