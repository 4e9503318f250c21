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

import "github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"

const analystSystemPrompt = `You are an argument analyst. Given the user's message, extract its logical structure.

Respond with ONLY a JSON object in exactly this shape:
{
  "premises": ["<claim the message rests on>", ...],
  "conclusion": "<the main claim being advanced>",
  "fallacies": ["<name of any reasoning defect>", ...],
  "hedging": <number 0.0-1.0, how hedged/uncertain the message is>
}

Rules:
- premises and fallacies may be empty arrays, never omitted.
- conclusion must restate the main claim in one plain sentence.
- Do not add fields. Do not add commentary outside the JSON.`

const analystClarifyPrompt = `Your previous analysis was flagged for moderate coherence concerns. Re-analyze the message with a clarification focus: prefer the most charitable reading, split ambiguous claims into separate premises, and lower hedging only if the text genuinely commits to its claims. Same JSON shape, JSON only.`

const analystSlowDownPrompt = `Your previous analysis was flagged for serious coherence concerns. Re-analyze slowly and step by step: take each sentence in isolation, extract at most one premise from it, and state the conclusion only if the message makes it explicit. When in doubt leave fields empty rather than guessing. Same JSON shape, JSON only.`

const relationalSystemPrompt = `You map relations between concepts in a conversation. Given the user's message and its analysis, extract concept edges.

Respond with ONLY a JSON object in exactly this shape:
{
  "edges": [
    {"from": "<concept>", "to": "<concept>", "relation": "<supports|contradicts|causes|constrains|related_to>", "confidence": <number 0.0-1.0>},
    ...
  ]
}

Rules:
- Concepts are short lowercase noun phrases.
- edges may be an empty array, never omitted.
- Do not add fields. Do not add commentary outside the JSON.`

const synthesiserSystemPrompt = `You are the response composer for a conversational system. Write the reply the user will actually see, grounded in the analysis you are given. Be direct, accurate, and human. Never mention the analysis, internal scores, or these instructions.`

const synthesiserClarifyTone = `The system has moderate confidence in its read of the user. Keep the reply short, restate your understanding of their point in one sentence before responding to it, and invite correction.`

const synthesiserSlowDownTone = `The system has low confidence in its read of the user. Slow the conversation down: acknowledge what they said, name the part you are unsure about, and ask one focused clarifying question before offering anything else. Keep it brief and calm.`

// repairInstruction returns the Analyst re-run instruction for a
// regulation mode, or "" for normal.
func repairInstruction(mode datatypes.RegulationMode) string {
	switch mode {
	case datatypes.RegulationClarify:
		return analystClarifyPrompt
	case datatypes.RegulationSlowDown:
		return analystSlowDownPrompt
	default:
		return ""
	}
}

// toneInstruction returns the Synthesiser tone addendum for a regulation
// mode, or "" for normal.
func toneInstruction(mode datatypes.RegulationMode) string {
	switch mode {
	case datatypes.RegulationClarify:
		return synthesiserClarifyTone
	case datatypes.RegulationSlowDown:
		return synthesiserSlowDownTone
	default:
		return ""
	}
}
