// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/invoker"
)

// Relational extracts concept edges from the exchange.
//
// Description:
//
//	Runs once per turn on the finalize path. Malformed edges (empty
//	endpoints, out-of-range confidence) are repaired or dropped rather
//	than failing the attempt; the strict part of the contract is the
//	JSON envelope, not every element.
//
// Thread Safety: safe for concurrent use; fields are read-only.
type Relational struct {
	invoker    ModelInvoker
	candidates []string
}

// NewRelational builds a Relational agent over the given cascade.
func NewRelational(inv ModelInvoker, candidates []string) *Relational {
	return &Relational{invoker: inv, candidates: candidates}
}

// Relate extracts concept edges for the turn.
func (r *Relational) Relate(ctx context.Context, sessionID, turnID, input string, analysis datatypes.AnalystOutput) (datatypes.RelationalOutput, []datatypes.ContributionRecord, error) {
	analysisJSON, _ := json.Marshal(analysis)

	result, records, err := r.invoker.Invoke(ctx, sessionID, turnID, invoker.Request{
		Agent:      "relational",
		Candidates: r.candidates,
		Messages: []datatypes.Message{
			datatypes.SystemMessage(relationalSystemPrompt),
			datatypes.UserMessage(fmt.Sprintf("Message:\n%s\n\nAnalysis:\n%s", input, analysisJSON)),
		},
		Parse: parseRelationalOutput,
	})
	if err != nil {
		if errors.Is(err, invoker.ErrExhausted) {
			slog.Warn("Relational agent degraded, all candidates failed",
				"session_id", sessionID, "turn_id", turnID)
			return datatypes.RelationalOutput{Edges: []datatypes.ConceptEdge{}, Degraded: true}, records, nil
		}
		return datatypes.RelationalOutput{}, records, err
	}

	return result.Output.(datatypes.RelationalOutput), records, nil
}

func parseRelationalOutput(raw string) (any, error) {
	var out datatypes.RelationalOutput
	if err := decodeStrict(raw, &out); err != nil {
		return nil, err
	}

	edges := make([]datatypes.ConceptEdge, 0, len(out.Edges))
	for _, e := range out.Edges {
		if e.From == "" || e.To == "" {
			continue
		}
		if e.Relation == "" {
			e.Relation = "related_to"
		}
		e.Confidence = datatypes.Clamp01(e.Confidence)
		edges = append(edges, e)
	}
	out.Edges = edges
	return out, nil
}
