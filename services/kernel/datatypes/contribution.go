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

import "time"

// =============================================================================
// Contribution records
// =============================================================================

// ErrorType classifies why a model attempt failed. ErrorNone marks a
// successful attempt.
type ErrorType string

const (
	// ErrorNone marks an attempt that produced a usable response.
	ErrorNone ErrorType = "none"

	// ErrorTimeout marks an attempt that exceeded its deadline. Retried
	// once on the same model, like a 5xx.
	ErrorTimeout ErrorType = "timeout"

	// ErrorCancelled marks an attempt abandoned because the caller's
	// context was cancelled. Never retried.
	ErrorCancelled ErrorType = "cancelled"

	// ErrorClient marks a 4xx provider response. Not retried on the
	// same model.
	ErrorClient ErrorType = "4xx"

	// ErrorServer marks a 5xx provider response. Retried once with a
	// short fixed backoff before falling through.
	ErrorServer ErrorType = "5xx"

	// ErrorParsing marks a response that arrived but did not match the
	// agent's expected output schema.
	ErrorParsing ErrorType = "parsing_error"

	// ErrorFallback marks a candidate skipped because the invoke budget
	// was already exhausted before the attempt started.
	ErrorFallback ErrorType = "fallback"
)

// ContributionRecord captures one model attempt within a turn.
//
// # Description
//
// The invoker emits exactly one record per attempt, success or failure.
// Contributed is true only for the attempt whose output was actually used
// by the calling agent; every other record in the same invocation carries
// Contributed=false and a non-empty ErrorType (or ErrorNone with
// Contributed=false never occurs).
//
// Records are append-only facts. Nothing in the kernel mutates a record
// after emission.
type ContributionRecord struct {
	// SessionID and TurnID key the record to its turn.
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`

	// Model is the candidate reference, e.g. "anthropic/claude-sonnet-4-5".
	Model string `json:"model_name"`

	// Agent is the logical agent on whose behalf the call was made
	// (analyst, relational, synthesiser).
	Agent string `json:"agent_name"`

	// Contributed is true iff this attempt's output was used.
	Contributed bool `json:"contributed"`

	// Offline is true when the provider was unreachable at the transport
	// level (connection refused, DNS failure), as opposed to answering
	// with an error.
	Offline bool `json:"offline"`

	// ErrorType classifies the failure; ErrorNone for the contributing
	// attempt.
	ErrorType ErrorType `json:"error_type"`

	// TokensUsed is input+output token count reported by the provider,
	// 0 when unavailable.
	TokensUsed int `json:"tokens_used"`

	// CostUSD is the estimated attempt cost from the pricing table.
	CostUSD float64 `json:"cost_usd"`

	// LatencyMs is the attempt wall-clock latency.
	LatencyMs int64 `json:"latency_ms"`

	// Timestamp is when the attempt completed.
	Timestamp time.Time `json:"timestamp"`
}

// ContributionSummary aggregates a turn's records for the wire.
type ContributionSummary struct {
	Attempts    int     `json:"attempts"`
	Contributed int     `json:"contributed"`
	Failed      int     `json:"failed"`
	TokensUsed  int     `json:"tokens_used"`
	CostUSD     float64 `json:"cost_usd"`
}

// Summarize folds a record slice into a ContributionSummary.
func Summarize(records []ContributionRecord) ContributionSummary {
	var s ContributionSummary
	for _, r := range records {
		s.Attempts++
		if r.Contributed {
			s.Contributed++
		} else {
			s.Failed++
		}
		s.TokensUsed += r.TokensUsed
		s.CostUSD += r.CostUSD
	}
	return s
}
