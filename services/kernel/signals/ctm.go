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
// CTM - Coherence Trust Module
// ======================================================================

// Trust weighting coefficients. These are a published contract; changing
// them changes the meaning of every recorded trust score.
const (
	trustTensionWeight       = 0.4
	trustUncertaintyWeight   = 0.3
	trustContradictionWeight = 0.3
)

// TrustTau computes the coherence trust score:
//
//	trust = clamp(1 - (0.4*tension + 0.3*uncertainty + 0.3*contradiction), 0, 1)
//
// The formula is exact. Inputs outside [0, 1] are clamped before use so
// the output range holds regardless of caller bugs.
func TrustTau(tension, uncertainty, contradiction float64) float64 {
	t := datatypes.Clamp01(tension)
	u := datatypes.Clamp01(uncertainty)
	c := datatypes.Clamp01(contradiction)

	trust := 1 - (trustTensionWeight*t + trustUncertaintyWeight*u + trustContradictionWeight*c)
	return datatypes.Clamp01(trust)
}
