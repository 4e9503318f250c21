// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package invoker runs model calls through an ordered candidate cascade
// and accounts for every attempt with a contribution record.
package invoker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/config"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
	"github.com/AleutianAI/CoherenceKernel/services/llm"
)

var tracer = otel.Tracer("aleutian.kernel.invoker")

// Request describes one logical model call on behalf of an agent.
type Request struct {
	// Agent is the logical caller name recorded on every attempt.
	Agent string

	// Messages is the full prompt in provider-neutral form.
	Messages []datatypes.Message

	// Candidates is the ordered "provider/model" cascade. Must be
	// non-empty.
	Candidates []string

	// Params are sampling knobs forwarded to the provider.
	Params llm.GenerationParams

	// Parse validates and converts the raw completion. A nil Parse
	// accepts any non-empty text. A Parse error counts as an attempt
	// failure and the cascade moves on.
	Parse func(raw string) (any, error)
}

// Result is a successful invocation.
type Result struct {
	// Output is the parsed value (or the raw string when Parse is nil).
	Output any

	// Raw is the unmodified completion text.
	Raw string

	// Model is the candidate reference that contributed.
	Model string
}

// Invoker executes requests against the provider registry.
//
// # Thread Safety
//
// Safe for concurrent use; all fields are read-only after construction.
type Invoker struct {
	registry *llm.Registry
	timeouts config.Timeouts
	pricing  map[string]config.ModelPrice

	// sleep is swappable for tests.
	sleep func(time.Duration)

	// now is swappable for tests.
	now func() time.Time
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithSleep replaces the backoff sleep function.
func WithSleep(sleep func(time.Duration)) Option {
	return func(inv *Invoker) { inv.sleep = sleep }
}

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(inv *Invoker) { inv.now = now }
}

// New builds an Invoker over the given provider registry.
func New(registry *llm.Registry, timeouts config.Timeouts, pricing map[string]config.ModelPrice, opts ...Option) *Invoker {
	inv := &Invoker{
		registry: registry,
		timeouts: timeouts,
		pricing:  pricing,
		sleep:    time.Sleep,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke walks the candidate cascade until one attempt produces a
// parseable completion.
//
// # Description
//
// Candidates run strictly in order. Per attempt: a deadline from the
// attempt budget, classification of any failure, and exactly one record.
// A 5xx answer or a timed-out attempt earns the same model one retry
// after a fixed backoff; a 4xx answer, a cancelled caller, or an
// unreachable provider moves straight on. Candidates
// that never get to run because the invoke budget expired are still
// recorded, with the fallback error type.
//
// # Outputs
//
//   - On success: the result, all attempt records (exactly one of them
//     Contributed=true), nil error.
//   - On exhaustion: nil result, all attempt records, ErrExhausted.
//   - On an empty cascade or unknown provider: nil result, nil records,
//     *ConfigurationError.
//
// The records slice is always safe to append to the ledger as-is.
func (inv *Invoker) Invoke(ctx context.Context, sessionID, turnID string, req Request) (*Result, []datatypes.ContributionRecord, error) {
	if len(req.Candidates) == 0 {
		return nil, nil, &ConfigurationError{Agent: req.Agent, Reason: "no candidate models configured"}
	}
	// Validate the whole cascade up front; a bad reference is a
	// deployment mistake, not a runtime fault to degrade around.
	for _, ref := range req.Candidates {
		if _, _, err := inv.registry.Resolve(ref); err != nil {
			return nil, nil, &ConfigurationError{Agent: req.Agent, Reason: err.Error()}
		}
	}

	ctx, span := tracer.Start(ctx, "invoker.Invoke", trace.WithAttributes(
		attribute.String("agent", req.Agent),
		attribute.Int("candidates", len(req.Candidates)),
	))
	defer span.End()

	invokeCtx, cancel := context.WithTimeout(ctx, inv.timeouts.Invoke())
	defer cancel()

	var records []datatypes.ContributionRecord

	for i, ref := range req.Candidates {
		if invokeCtx.Err() != nil {
			// Budget exhausted; account for every candidate that never
			// got to run.
			for _, skipped := range req.Candidates[i:] {
				records = append(records, inv.record(sessionID, turnID, skipped, req.Agent, recordParams{
					errorType: datatypes.ErrorFallback,
				}))
			}
			break
		}

		result, attemptRecords := inv.tryCandidate(invokeCtx, sessionID, turnID, ref, req)
		records = append(records, attemptRecords...)
		if result != nil {
			span.SetAttributes(attribute.String("contributed_model", ref))
			return result, records, nil
		}
	}

	slog.Warn("Candidate cascade exhausted",
		"agent", req.Agent, "session_id", sessionID, "attempts", len(records))
	return nil, records, fmt.Errorf("agent %s: %w", req.Agent, ErrExhausted)
}

// tryCandidate runs one candidate, including its optional single retry.
// The ctx.Err() check stops a retry once the invoke budget itself is
// gone; only a per-attempt deadline earns the second try.
func (inv *Invoker) tryCandidate(ctx context.Context, sessionID, turnID, ref string, req Request) (*Result, []datatypes.ContributionRecord) {
	var records []datatypes.ContributionRecord

	for attempt := 0; attempt < 2; attempt++ {
		result, rec, retry := inv.attempt(ctx, sessionID, turnID, ref, req)
		records = append(records, rec)
		if result != nil {
			return result, records
		}
		if !retry || ctx.Err() != nil {
			return nil, records
		}
		inv.sleep(inv.timeouts.RetryBackoff())
	}
	return nil, records
}

func (inv *Invoker) attempt(ctx context.Context, sessionID, turnID, ref string, req Request) (*Result, datatypes.ContributionRecord, bool) {
	client, model, err := inv.registry.Resolve(ref)
	if err != nil {
		// Validated up front; unreachable unless the registry mutated.
		return nil, inv.record(sessionID, turnID, ref, req.Agent, recordParams{
			errorType: datatypes.ErrorFallback,
		}), false
	}

	attemptCtx, cancel := context.WithTimeout(ctx, inv.timeouts.Attempt())
	defer cancel()

	ctx, span := tracer.Start(attemptCtx, "invoker.attempt", trace.WithAttributes(
		attribute.String("model", ref),
		attribute.String("agent", req.Agent),
	))
	defer span.End()

	start := inv.now()
	completion, err := client.Chat(ctx, model, req.Messages, req.Params)
	latency := inv.now().Sub(start)

	if err != nil {
		c := classify(err)
		slog.Warn("Model attempt failed",
			"model", ref, "agent", req.Agent,
			"error_type", string(c.errorType), "offline", c.offline, "error", err)
		return nil, inv.record(sessionID, turnID, ref, req.Agent, recordParams{
			errorType: c.errorType,
			offline:   c.offline,
			latency:   latency,
		}), c.retry
	}

	tokens := completion.TotalTokens()
	cost := inv.cost(ref, completion)

	if req.Parse != nil {
		parsed, parseErr := req.Parse(completion.Text)
		if parseErr != nil {
			slog.Warn("Model response failed to parse",
				"model", ref, "agent", req.Agent, "error", parseErr)
			return nil, inv.record(sessionID, turnID, ref, req.Agent, recordParams{
				errorType: datatypes.ErrorParsing,
				tokens:    tokens,
				cost:      cost,
				latency:   latency,
			}), false
		}
		return &Result{Output: parsed, Raw: completion.Text, Model: ref},
			inv.record(sessionID, turnID, ref, req.Agent, recordParams{
				contributed: true,
				tokens:      tokens,
				cost:        cost,
				latency:     latency,
			}), false
	}

	if completion.Text == "" {
		return nil, inv.record(sessionID, turnID, ref, req.Agent, recordParams{
			errorType: datatypes.ErrorParsing,
			tokens:    tokens,
			cost:      cost,
			latency:   latency,
		}), false
	}

	return &Result{Output: completion.Text, Raw: completion.Text, Model: ref},
		inv.record(sessionID, turnID, ref, req.Agent, recordParams{
			contributed: true,
			tokens:      tokens,
			cost:        cost,
			latency:     latency,
		}), false
}

type recordParams struct {
	contributed bool
	offline     bool
	errorType   datatypes.ErrorType
	tokens      int
	cost        float64
	latency     time.Duration
}

func (inv *Invoker) record(sessionID, turnID, model, agent string, p recordParams) datatypes.ContributionRecord {
	errorType := p.errorType
	if p.contributed {
		errorType = datatypes.ErrorNone
	}
	return datatypes.ContributionRecord{
		SessionID:   sessionID,
		TurnID:      turnID,
		Model:       model,
		Agent:       agent,
		Contributed: p.contributed,
		Offline:     p.offline,
		ErrorType:   errorType,
		TokensUsed:  p.tokens,
		CostUSD:     p.cost,
		LatencyMs:   p.latency.Milliseconds(),
		Timestamp:   inv.now(),
	}
}

func (inv *Invoker) cost(ref string, completion *llm.Completion) float64 {
	price, ok := inv.pricing[ref]
	if !ok {
		return 0
	}
	return float64(completion.InputTokens)/1e6*price.InputPerMTok +
		float64(completion.OutputTokens)/1e6*price.OutputPerMTok
}
