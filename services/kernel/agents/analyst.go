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
	"errors"
	"log/slog"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/invoker"
)

// ModelInvoker is the slice of the invoker the agents depend on.
type ModelInvoker interface {
	Invoke(ctx context.Context, sessionID, turnID string, req invoker.Request) (*invoker.Result, []datatypes.ContributionRecord, error)
}

// Analyst extracts the logical structure of a user message.
//
// Description:
//
//	One Analyze call is one analysis cycle. Repair re-runs pass the
//	current regulation mode, which swaps in clarification-oriented or
//	step-wise instructions. On cascade exhaustion the Analyst returns a
//	neutral degraded output instead of an error; only configuration
//	mistakes propagate.
//
// Thread Safety: safe for concurrent use; fields are read-only.
type Analyst struct {
	invoker    ModelInvoker
	candidates []string
}

// NewAnalyst builds an Analyst over the given candidate cascade.
func NewAnalyst(inv ModelInvoker, candidates []string) *Analyst {
	return &Analyst{invoker: inv, candidates: candidates}
}

// Analyze runs one analysis cycle over the user input.
func (a *Analyst) Analyze(ctx context.Context, sessionID, turnID, input string, mode datatypes.RegulationMode) (datatypes.AnalystOutput, []datatypes.ContributionRecord, error) {
	system := analystSystemPrompt
	if instruction := repairInstruction(mode); instruction != "" {
		system = system + "\n\n" + instruction
	}

	result, records, err := a.invoker.Invoke(ctx, sessionID, turnID, invoker.Request{
		Agent:      "analyst",
		Candidates: a.candidates,
		Messages: []datatypes.Message{
			datatypes.SystemMessage(system),
			datatypes.UserMessage(input),
		},
		Parse: parseAnalystOutput,
	})
	if err != nil {
		if errors.Is(err, invoker.ErrExhausted) {
			slog.Warn("Analyst degraded, all candidates failed",
				"session_id", sessionID, "turn_id", turnID)
			return degradedAnalystOutput(), records, nil
		}
		return datatypes.AnalystOutput{}, records, err
	}

	output := result.Output.(datatypes.AnalystOutput)
	return output, records, nil
}

func parseAnalystOutput(raw string) (any, error) {
	var out datatypes.AnalystOutput
	if err := decodeStrict(raw, &out); err != nil {
		return nil, err
	}
	out.Hedging = datatypes.Clamp01(out.Hedging)
	if out.Premises == nil {
		out.Premises = []string{}
	}
	if out.Fallacies == nil {
		out.Fallacies = []string{}
	}
	return out, nil
}

// degradedAnalystOutput is the neutral fallback when no model answered.
// Hedging sits at the midpoint: the system genuinely does not know.
func degradedAnalystOutput() datatypes.AnalystOutput {
	return datatypes.AnalystOutput{
		Premises:  []string{},
		Fallacies: []string{},
		Hedging:   0.5,
		Degraded:  true,
	}
}
