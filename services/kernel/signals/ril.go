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

import (
	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
)

// ======================================================================
// RIL - Relational Inference Layer
// ======================================================================

// Infer derives one-hop transitive edges from the combined concept graph.
//
// # Description
//
// The prior session graph and the turn's newly extracted edges merge into
// one edge set. For every pair a->b, b->c a derived edge a->c is emitted
// with confidence conf(a,b)*conf(b,c)*damping. The relation label carries
// through when both hops share it, otherwise "related_to".
//
// Self-loops are dropped, as is any derived edge whose endpoints already
// have a direct edge in the merged set. Derived edges never feed further
// derivation within one call, so a single invocation is one hop by
// construction. Output ordering is deterministic: outer edge order, then
// inner edge order, as given.
//
// # Inputs
//
//   - prior: the session concept graph before this turn.
//   - extracted: the Relational agent's edges for this turn.
//   - damping: per-hop confidence multiplier in (0, 1].
//
// # Outputs
//
//   - All extracted edges (Derived=false) followed by derived edges
//     (Derived=true), confidences clamped to [0, 1].
//
// # Thread Safety
//
// Pure function; safe from any goroutine.
func Infer(prior, extracted []datatypes.ConceptEdge, damping float64) []datatypes.InferenceEdge {
	if damping <= 0 || damping > 1 {
		damping = 1
	}

	merged := make([]datatypes.ConceptEdge, 0, len(prior)+len(extracted))
	merged = append(merged, prior...)
	merged = append(merged, extracted...)

	direct := make(map[[2]string]bool, len(merged))
	bySource := make(map[string][]datatypes.ConceptEdge)
	for _, e := range merged {
		direct[[2]string{e.From, e.To}] = true
		bySource[e.From] = append(bySource[e.From], e)
	}

	out := make([]datatypes.InferenceEdge, 0, len(extracted))
	for _, e := range extracted {
		e.Confidence = datatypes.Clamp01(e.Confidence)
		out = append(out, datatypes.InferenceEdge{ConceptEdge: e})
	}

	seen := make(map[[2]string]bool)
	for _, first := range merged {
		for _, second := range bySource[first.To] {
			from, to := first.From, second.To
			if from == to {
				continue
			}
			key := [2]string{from, to}
			if direct[key] || seen[key] {
				continue
			}
			seen[key] = true

			relation := "related_to"
			if first.Relation == second.Relation {
				relation = first.Relation
			}

			out = append(out, datatypes.InferenceEdge{
				ConceptEdge: datatypes.ConceptEdge{
					From:       from,
					To:         to,
					Relation:   relation,
					Confidence: datatypes.Clamp01(first.Confidence * second.Confidence * damping),
				},
				Derived: true,
			})
		}
	}
	return out
}
