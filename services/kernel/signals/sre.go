// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package signals

import "github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"

// ======================================================================
// SRE - Self-Regulation Engine
// ======================================================================

// Thresholds are the regulation policy cut points. Both trust
// comparisons are strict less-than: trust exactly at a threshold takes
// the calmer mode.
type Thresholds struct {
	// SlowDownBelow: trust < SlowDownBelow selects slow_down.
	SlowDownBelow float64

	// ClarifyBelow: otherwise trust < ClarifyBelow selects clarify.
	ClarifyBelow float64

	// ContradictionEscalation: contradiction >= this escalates clarify
	// to slow_down.
	ContradictionEscalation float64
}

// DefaultThresholds returns the production cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SlowDownBelow:           0.50,
		ClarifyBelow:            0.85,
		ContradictionEscalation: 0.90,
	}
}

// Decision is the regulation outcome for one analysis cycle.
type Decision struct {
	// Mode is the selected regulation mode.
	Mode datatypes.RegulationMode

	// Repair is true when the engine should run a repair iteration
	// before proceeding. False once the repair ceiling is reached even
	// if the mode is not normal.
	Repair bool
}

// Regulate selects the regulation mode and repair decision.
//
// # Description
//
// Mode selection from trust, with strict comparisons:
//
//	trust < SlowDownBelow            -> slow_down
//	else trust < ClarifyBelow        -> clarify
//	else                             -> normal
//
// A contradiction score at or above ContradictionEscalation escalates
// clarify to slow_down; it never de-escalates. Repair is requested
// whenever the mode is not normal and repairCount is still below
// maxRepairs.
//
// # Thread Safety
//
// Pure function; safe from any goroutine.
func Regulate(trust, contradiction float64, repairCount, maxRepairs int, th Thresholds) Decision {
	mode := datatypes.RegulationNormal
	switch {
	case trust < th.SlowDownBelow:
		mode = datatypes.RegulationSlowDown
	case trust < th.ClarifyBelow:
		mode = datatypes.RegulationClarify
	}

	if mode == datatypes.RegulationClarify && contradiction >= th.ContradictionEscalation {
		mode = datatypes.RegulationSlowDown
	}

	return Decision{
		Mode:   mode,
		Repair: mode != datatypes.RegulationNormal && repairCount < maxRepairs,
	}
}
