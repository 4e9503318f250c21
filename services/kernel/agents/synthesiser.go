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

// degradedResponse is the user-facing fallback when every Synthesiser
// candidate failed. The turn still completes.
const degradedResponse = "I'm having trouble composing a full reply right now. I did read your message; could you give me a moment and try again, or rephrase if it was urgent?"

// Synthesis is the Synthesiser's result.
type Synthesis struct {
	// Text is the user-facing reply.
	Text string

	// Degraded is true when Text is the canned fallback.
	Degraded bool
}

// Synthesiser composes the user-facing reply.
//
// Description:
//
//	The reply is grounded in the final analysis and shaped by the
//	regulation mode: clarify restates understanding and invites
//	correction, slow_down asks one focused clarifying question. Free
//	text, no parser; an empty completion is the only parse failure.
//
// Thread Safety: safe for concurrent use; fields are read-only.
type Synthesiser struct {
	invoker    ModelInvoker
	candidates []string
}

// NewSynthesiser builds a Synthesiser over the given cascade.
func NewSynthesiser(inv ModelInvoker, candidates []string) *Synthesiser {
	return &Synthesiser{invoker: inv, candidates: candidates}
}

// Synthesise composes the turn's reply.
func (s *Synthesiser) Synthesise(ctx context.Context, sessionID, turnID, input string, history []datatypes.Message, analysis datatypes.AnalystOutput, mode datatypes.RegulationMode) (Synthesis, []datatypes.ContributionRecord, error) {
	system := synthesiserSystemPrompt
	if tone := toneInstruction(mode); tone != "" {
		system = system + "\n\n" + tone
	}

	analysisJSON, _ := json.Marshal(analysis)

	messages := make([]datatypes.Message, 0, len(history)+3)
	messages = append(messages, datatypes.SystemMessage(system))
	messages = append(messages, history...)
	messages = append(messages, datatypes.UserMessage(fmt.Sprintf(
		"%s\n\n[analysis for grounding, do not mention: %s]", input, analysisJSON)))

	result, records, err := s.invoker.Invoke(ctx, sessionID, turnID, invoker.Request{
		Agent:      "synthesiser",
		Candidates: s.candidates,
		Messages:   messages,
	})
	if err != nil {
		if errors.Is(err, invoker.ErrExhausted) {
			slog.Warn("Synthesiser degraded, all candidates failed",
				"session_id", sessionID, "turn_id", turnID)
			return Synthesis{Text: degradedResponse, Degraded: true}, records, nil
		}
		return Synthesis{}, records, err
	}

	return Synthesis{Text: result.Output.(string)}, records, nil
}
