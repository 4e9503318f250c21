// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/agents"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/config"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/ledger"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/signals"
)

var tracer = otel.Tracer("aleutian.kernel.engine")

// =============================================================================
// Collaborator interfaces
// =============================================================================

// AnalystAgent runs one analysis cycle.
type AnalystAgent interface {
	Analyze(ctx context.Context, sessionID, turnID, input string, mode datatypes.RegulationMode) (datatypes.AnalystOutput, []datatypes.ContributionRecord, error)
}

// RelationalAgent extracts concept edges.
type RelationalAgent interface {
	Relate(ctx context.Context, sessionID, turnID, input string, analysis datatypes.AnalystOutput) (datatypes.RelationalOutput, []datatypes.ContributionRecord, error)
}

// SynthesiserAgent composes the user-facing reply.
type SynthesiserAgent interface {
	Synthesise(ctx context.Context, sessionID, turnID, input string, history []datatypes.Message, analysis datatypes.AnalystOutput, mode datatypes.RegulationMode) (agents.Synthesis, []datatypes.ContributionRecord, error)
}

// ThresholdSource supplies the current regulation thresholds. The config
// watcher satisfies this; swaps take effect on the next analysis cycle.
type ThresholdSource interface {
	Thresholds() config.Thresholds
}

// GraphPersister pushes inference edges and state to the knowledge-graph
// boundary. Optional; nil means lightweight mode.
type GraphPersister interface {
	PersistEdges(ctx context.Context, sessionID, turnID string, edges []datatypes.InferenceEdge) error
	PersistSnapshot(ctx context.Context, snap ledger.Snapshot) error
}

// AnalyticsSink receives fire-and-forget per-attempt analytics.
// Optional. The Influx sink satisfies this.
type AnalyticsSink interface {
	Export(records []datatypes.ContributionRecord)
	ExportSnapshot(snap ledger.Snapshot)
}

// MetricsRecorder receives turn-level observability events. Optional.
type MetricsRecorder interface {
	RecordTurn(status string, duration time.Duration, state datatypes.InternalState)
	RecordRepair()
	RecordRegulation(mode datatypes.RegulationMode)
	RecordModelCalls(records []datatypes.ContributionRecord)
}

// =============================================================================
// Engine
// =============================================================================

// TurnResult is the outcome of one processed turn.
type TurnResult struct {
	TurnID   string
	Response string
	State    datatypes.InternalState
	Degraded bool
	Records  []datatypes.ContributionRecord
	Duration time.Duration
}

// Config carries the engine tunables fixed at construction.
type Config struct {
	// MaxRepairs caps repair iterations per turn.
	MaxRepairs int

	// Timeouts are the turn-level wall-clock budgets.
	Timeouts config.Timeouts

	// SmoothingAlpha is the affective-signal smoothing factor.
	SmoothingAlpha float64

	// InferenceDamping is the per-hop confidence multiplier.
	InferenceDamping float64
}

// Engine drives the coherence loop for every session.
//
// # Description
//
// One ProcessTurn call is one turn. Turns for the same session queue on
// the session's mutex and run strictly in arrival order; turns for
// different sessions run concurrently. The engine owns all InternalState
// mutation and is the only caller of the signal modules.
//
// # Thread Safety
//
// Safe for concurrent use.
type Engine struct {
	cfg         Config
	sessions    SessionStore
	sm          *StateMachine
	analyst     AnalystAgent
	relational  RelationalAgent
	synthesiser SynthesiserAgent
	thresholds  ThresholdSource
	store       ledger.Store

	sink    AnalyticsSink
	graph   GraphPersister
	metrics MetricsRecorder

	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSessionStore replaces the default in-memory session store.
func WithSessionStore(store SessionStore) Option {
	return func(e *Engine) { e.sessions = store }
}

// WithStateMachine replaces the default state machine.
func WithStateMachine(sm *StateMachine) Option {
	return func(e *Engine) { e.sm = sm }
}

// WithAnalyticsSink attaches the analytics export sink.
func WithAnalyticsSink(sink AnalyticsSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithGraphPersister attaches the knowledge-graph boundary.
func WithGraphPersister(graph GraphPersister) Option {
	return func(e *Engine) { e.graph = graph }
}

// WithMetrics attaches the metrics recorder.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(e *Engine) { e.metrics = metrics }
}

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an Engine.
func New(cfg Config, analyst AnalystAgent, relational RelationalAgent, synthesiser SynthesiserAgent, thresholds ThresholdSource, store ledger.Store, opts ...Option) *Engine {
	e := &Engine{
		cfg:         cfg,
		sessions:    NewInMemorySessionStore(),
		sm:          DefaultStateMachine,
		analyst:     analyst,
		relational:  relational,
		synthesiser: synthesiser,
		thresholds:  thresholds,
		store:       store,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sessions exposes the session store for read-only endpoints.
func (e *Engine) Sessions() SessionStore {
	return e.sessions
}

// Ledger exposes the ledger store for read-only endpoints.
func (e *Engine) Ledger() ledger.Store {
	return e.store
}

// DeleteSession removes a session and its persisted data.
func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	e.sessions.Delete(sessionID)
	return e.store.DeleteSession(ctx, sessionID)
}

// ProcessTurn runs one full turn for a session.
//
// # Description
//
// Loads or creates the session (rehydrating state from the ledger for
// known session IDs after a restart), queues behind any in-flight turn,
// then drives ANALYZE -> REPAIR_CHECK -> {REPAIR -> ANALYZE | RELATIONAL}
// -> FINALIZE -> DONE. Signal modules run strictly in SIM, CAM, CTM, SRE
// order within every analysis cycle. The turn deadline degrades to
// finalization rather than failing; a degraded turn still answers.
// Contribution records and the post-turn snapshot are durable before the
// call returns.
//
// # Outputs
//
//   - *TurnResult on any completed turn, degraded or not.
//   - error only for configuration mistakes, empty input, or persistence
//     failure.
func (e *Engine) ProcessTurn(ctx context.Context, sessionID, input string) (*TurnResult, error) {
	if input == "" {
		return nil, ErrEmptyInput
	}

	sess, created := e.sessions.GetOrCreate(sessionID)
	if created {
		e.rehydrate(ctx, sess)
	}

	// Per-session queue: concurrent turns wait their turn.
	sess.turnMu.Lock()
	defer sess.turnMu.Unlock()

	turnID := uuid.NewString()
	start := e.now()

	ctx, span := tracer.Start(ctx, "engine.ProcessTurn", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("turn_id", turnID),
	))
	defer span.End()

	// A prior turn that failed leaves the session in ERROR; a new turn
	// is the recovery path.
	if sess.TurnState() == StateError {
		sess.setTurnState(StateIdle)
		sess.appendHistory(HistoryEntry{
			Timestamp: e.now().UTC(),
			Type:      "recovery",
			State:     StateIdle,
			Detail:    "New turn after failed turn",
		})
	}

	turnCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeouts.Turn())
	defer cancel()

	state := sess.State()
	state.RepairCount = 0

	var allRecords []datatypes.ContributionRecord
	degraded := false

	if err := e.sm.Transition(sess, StateAnalyze); err != nil {
		return nil, err
	}

	// ====== Analysis loop (1 + at most MaxRepairs cycles) ======
	// Smoothing is per turn: every cycle blends against the state the
	// turn started with, so repairs do not decay the signals.
	priorSIM := state.SIM
	var analysis datatypes.AnalystOutput
	analysisMode := datatypes.RegulationNormal
	var inferred []datatypes.InferenceEdge
	relationalRan := false

	for {
		var records []datatypes.ContributionRecord
		var err error
		analysis, records, err = e.analyst.Analyze(turnCtx, sessionID, turnID, input, analysisMode)
		allRecords = append(allRecords, records...)
		if err != nil {
			return nil, e.fail(ctx, sess, allRecords, err)
		}
		degraded = degraded || analysis.Degraded

		// Signal pipeline, strictly sequential: SIM -> CAM -> CTM -> SRE.
		state.SIM = signals.Integrate(input, analysis, priorSIM, e.cfg.SmoothingAlpha)
		state.Contradiction = signals.Contradiction(analysis, sess.Arguments())
		state.TrustTau = signals.TrustTau(
			state.SIM.Tension, state.SIM.Uncertainty, state.Contradiction)

		th := e.thresholds.Thresholds()
		decision := signals.Regulate(state.TrustTau, state.Contradiction,
			state.RepairCount, e.cfg.MaxRepairs, signals.Thresholds{
				SlowDownBelow:           th.SlowDownBelow,
				ClarifyBelow:            th.ClarifyBelow,
				ContradictionEscalation: th.ContradictionEscalation,
			})
		state.Regulation = decision.Mode
		if e.metrics != nil {
			e.metrics.RecordRegulation(decision.Mode)
		}

		if err := e.sm.Transition(sess, StateRepairCheck); err != nil {
			return nil, e.fail(ctx, sess, allRecords, err)
		}

		if turnCtx.Err() != nil {
			// Out of time; answer with what we have.
			degraded = true
			if err := e.sm.Transition(sess, StateFinalize); err != nil {
				return nil, e.fail(ctx, sess, allRecords, err)
			}
			break
		}

		if decision.Repair {
			if err := e.sm.Transition(sess, StateRepair); err != nil {
				return nil, e.fail(ctx, sess, allRecords, err)
			}
			state.RepairCount++
			analysisMode = decision.Mode
			if e.metrics != nil {
				e.metrics.RecordRepair()
			}
			slog.Debug("Repair iteration",
				"session_id", sessionID, "turn_id", turnID,
				"repair_count", state.RepairCount, "mode", decision.Mode.String(),
				"trust_tau", state.TrustTau)

			if turnCtx.Err() != nil {
				degraded = true
				if err := e.sm.Transition(sess, StateFinalize); err != nil {
					return nil, e.fail(ctx, sess, allRecords, err)
				}
				break
			}
			if err := e.sm.Transition(sess, StateAnalyze); err != nil {
				return nil, e.fail(ctx, sess, allRecords, err)
			}
			continue
		}

		// ====== Relational phase ======
		if err := e.sm.Transition(sess, StateRelational); err != nil {
			return nil, e.fail(ctx, sess, allRecords, err)
		}

		relOut, relRecords, err := e.relational.Relate(turnCtx, sessionID, turnID, input, analysis)
		allRecords = append(allRecords, relRecords...)
		if err != nil {
			return nil, e.fail(ctx, sess, allRecords, err)
		}
		degraded = degraded || relOut.Degraded

		inferred = signals.Infer(sess.ConceptGraph(), relOut.Edges, e.cfg.InferenceDamping)
		sess.mergeConceptGraph(inferred)
		relationalRan = true

		if err := e.sm.Transition(sess, StateFinalize); err != nil {
			return nil, e.fail(ctx, sess, allRecords, err)
		}
		break
	}

	// ====== Finalize ======
	finCtx := turnCtx
	if turnCtx.Err() != nil {
		// The turn budget is gone but the user still gets an answer.
		var finCancel context.CancelFunc
		finCtx, finCancel = context.WithTimeout(
			context.WithoutCancel(ctx), e.cfg.Timeouts.FinalizeGrace())
		defer finCancel()
	}

	synthesis, synthRecords, err := e.synthesiser.Synthesise(
		finCtx, sessionID, turnID, input, sess.Conversation(), analysis, state.Regulation)
	allRecords = append(allRecords, synthRecords...)
	if err != nil {
		return nil, e.fail(ctx, sess, allRecords, err)
	}
	degraded = degraded || synthesis.Degraded

	if !analysis.Degraded {
		sess.recordArgument(datatypes.ArgumentRecord{
			TurnID:     turnID,
			Premises:   analysis.Premises,
			Conclusion: analysis.Conclusion,
		})
	}
	sess.setState(state)
	sess.appendExchange(input, synthesis.Text)

	// ====== Persist (durable before the turn completes) ======
	snap := ledger.Snapshot{
		SessionID: sessionID,
		TurnID:    turnID,
		State:     state,
		Timestamp: e.now().UTC(),
	}
	persistCtx := context.WithoutCancel(ctx)
	g, gctx := errgroup.WithContext(persistCtx)
	g.Go(func() error { return e.store.AppendContributions(gctx, allRecords) })
	g.Go(func() error { return e.store.SaveSnapshot(gctx, snap) })
	if err := g.Wait(); err != nil {
		slog.Error("Ledger persistence failed",
			"session_id", sessionID, "turn_id", turnID, "error", err)
		return nil, e.fail(ctx, sess, nil, err)
	}

	// Fire-and-forget exports; never on the turn's critical path.
	if e.sink != nil {
		e.sink.Export(allRecords)
		e.sink.ExportSnapshot(snap)
	}
	if e.graph != nil && relationalRan {
		go e.persistGraph(persistCtx, sessionID, turnID, inferred, snap)
	}

	if err := e.sm.Transition(sess, StateDone); err != nil {
		return nil, e.fail(ctx, sess, nil, err)
	}
	if err := e.sm.Transition(sess, StateIdle); err != nil {
		return nil, e.fail(ctx, sess, nil, err)
	}

	duration := e.now().Sub(start)
	if e.metrics != nil {
		status := "ok"
		if degraded {
			status = "degraded"
		}
		e.metrics.RecordTurn(status, duration, state)
		e.metrics.RecordModelCalls(allRecords)
	}
	span.SetAttributes(
		attribute.Float64("trust_tau", state.TrustTau),
		attribute.String("regulation", state.Regulation.String()),
		attribute.Int("repair_count", state.RepairCount),
		attribute.Bool("degraded", degraded),
	)

	return &TurnResult{
		TurnID:   turnID,
		Response: synthesis.Text,
		State:    state,
		Degraded: degraded,
		Records:  allRecords,
		Duration: duration,
	}, nil
}

// rehydrate restores internal state from the latest persisted snapshot
// for session IDs that predate a restart.
func (e *Engine) rehydrate(ctx context.Context, sess *Session) {
	snap, err := e.store.LatestSnapshot(ctx, sess.ID)
	if err != nil {
		return
	}
	sess.restoreState(snap.State)
	sess.appendHistory(HistoryEntry{
		Timestamp: e.now().UTC(),
		Type:      "rehydrate",
		State:     StateIdle,
		Detail:    "State restored from snapshot for turn " + snap.TurnID,
	})
	slog.Info("Rehydrated session state", "session_id", sess.ID, "turn_id", snap.TurnID)
}

// fail moves the session to ERROR, persists whatever records exist, and
// returns the original error for the caller.
func (e *Engine) fail(ctx context.Context, sess *Session, records []datatypes.ContributionRecord, err error) error {
	if e.sm.CanTransition(sess.TurnState(), StateError) {
		_ = e.sm.Transition(sess, StateError)
	}
	if len(records) > 0 {
		if persistErr := e.store.AppendContributions(context.WithoutCancel(ctx), records); persistErr != nil {
			slog.Error("Failed to persist records for failed turn",
				"session_id", sess.ID, "error", persistErr)
		}
	}
	if e.metrics != nil {
		e.metrics.RecordTurn("error", 0, sess.State())
	}
	slog.Error("Turn failed", "session_id", sess.ID, "error", err)
	return err
}

// persistGraph pushes the turn's inference edges and snapshot to the
// knowledge graph with a bounded budget.
func (e *Engine) persistGraph(ctx context.Context, sessionID, turnID string, edges []datatypes.InferenceEdge, snap ledger.Snapshot) {
	gctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if len(edges) > 0 {
		if err := e.graph.PersistEdges(gctx, sessionID, turnID, edges); err != nil {
			slog.Warn("Graph edge persistence failed",
				"session_id", sessionID, "turn_id", turnID, "error", err)
		}
	}
	if err := e.graph.PersistSnapshot(gctx, snap); err != nil {
		slog.Warn("Graph snapshot persistence failed",
			"session_id", sessionID, "turn_id", turnID, "error", err)
	}
}
