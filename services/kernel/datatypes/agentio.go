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
// Agent outputs
// =============================================================================

// AnalystOutput is the structured result of one Analyst pass.
//
// Models return this as strict JSON; anything that does not parse into
// this shape is a parsing failure for the attempt that produced it.
type AnalystOutput struct {
	// Premises are the claims the user's input rests on.
	Premises []string `json:"premises"`

	// Conclusion is the main claim advanced by the input.
	Conclusion string `json:"conclusion"`

	// Fallacies names reasoning defects the Analyst detected, empty when
	// none.
	Fallacies []string `json:"fallacies"`

	// Hedging is the model's own estimate of how hedged the input is,
	// in [0, 1].
	Hedging float64 `json:"hedging"`

	// Degraded is true when this output is a fallback default rather
	// than a model product.
	Degraded bool `json:"-"`
}

// ArgumentRecord is the per-turn premise/conclusion trace retained on the
// session for contradiction scoring against later turns.
type ArgumentRecord struct {
	TurnID     string   `json:"turn_id"`
	Premises   []string `json:"premises"`
	Conclusion string   `json:"conclusion"`
}

// ConceptEdge is a directed relation between two concepts with a
// confidence in [0, 1].
type ConceptEdge struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Relation   string  `json:"relation"`
	Confidence float64 `json:"confidence"`
}

// RelationalOutput is the structured result of the Relational agent:
// concept edges extracted from the exchange.
type RelationalOutput struct {
	Edges []ConceptEdge `json:"edges"`

	// Degraded is true when this output is a fallback default.
	Degraded bool `json:"-"`
}

// InferenceEdge is an edge derived by relational inference rather than
// extracted directly from model output. Derived marks the distinction in
// persisted graphs.
type InferenceEdge struct {
	ConceptEdge
	Derived bool `json:"derived"`
}
