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
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/agents"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/config"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/invoker"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/ledger"
)

// =============================================================================
// Stubs
// =============================================================================

type stubAnalyst struct {
	mu      sync.Mutex
	calls   int
	modes   []datatypes.RegulationMode
	out     datatypes.AnalystOutput
	records []datatypes.ContributionRecord
	err     error
	delay   time.Duration
}

func (s *stubAnalyst) Analyze(ctx context.Context, sessionID, turnID, input string, mode datatypes.RegulationMode) (datatypes.AnalystOutput, []datatypes.ContributionRecord, error) {
	s.mu.Lock()
	s.calls++
	s.modes = append(s.modes, mode)
	out, records, err, delay := s.out, s.records, s.err, s.delay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	// Real agents return records already stamped by the invoker; the
	// stub mirrors that contract.
	stamped := make([]datatypes.ContributionRecord, len(records))
	copy(stamped, records)
	for i := range stamped {
		stamped[i].SessionID = sessionID
		stamped[i].TurnID = turnID
	}
	return out, stamped, err
}

func (s *stubAnalyst) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubAnalyst) seenModes() []datatypes.RegulationMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]datatypes.RegulationMode, len(s.modes))
	copy(out, s.modes)
	return out
}

type stubRelational struct {
	mu    sync.Mutex
	calls int
	out   datatypes.RelationalOutput
	err   error
}

func (s *stubRelational) Relate(ctx context.Context, sessionID, turnID, input string, analysis datatypes.AnalystOutput) (datatypes.RelationalOutput, []datatypes.ContributionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.out, nil, s.err
}

func (s *stubRelational) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubSynthesiser struct {
	mu        sync.Mutex
	calls     int
	lastMode  datatypes.RegulationMode
	synthesis agents.Synthesis
	err       error
}

func (s *stubSynthesiser) Synthesise(ctx context.Context, sessionID, turnID, input string, history []datatypes.Message, analysis datatypes.AnalystOutput, mode datatypes.RegulationMode) (agents.Synthesis, []datatypes.ContributionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastMode = mode
	return s.synthesis, nil, s.err
}

type staticThresholds struct {
	th config.Thresholds
}

func (s staticThresholds) Thresholds() config.Thresholds { return s.th }

type failingStore struct {
	ledger.Store
	snapshotErr error
}

func (f *failingStore) SaveSnapshot(ctx context.Context, snap ledger.Snapshot) error {
	if f.snapshotErr != nil {
		return f.snapshotErr
	}
	return f.Store.SaveSnapshot(ctx, snap)
}

// =============================================================================
// Fixture
// =============================================================================

type fixture struct {
	engine      *Engine
	analyst     *stubAnalyst
	relational  *stubRelational
	synthesiser *stubSynthesiser
	store       ledger.Store
}

func defaultTestThresholds() config.Thresholds {
	return config.Thresholds{
		SlowDownBelow:           0.50,
		ClarifyBelow:            0.85,
		ContradictionEscalation: 0.90,
	}
}

func newFixture(t *testing.T, th config.Thresholds) *fixture {
	t.Helper()

	analyst := &stubAnalyst{
		out: datatypes.AnalystOutput{
			Premises:   []string{"the sky is blue"},
			Conclusion: "it is daytime",
			Fallacies:  []string{},
		},
		records: []datatypes.ContributionRecord{{
			Model: "ollama/llama3.1:8b", Agent: "analyst", Contributed: true,
			ErrorType: datatypes.ErrorNone, TokensUsed: 30,
		}},
	}
	relational := &stubRelational{
		out: datatypes.RelationalOutput{Edges: []datatypes.ConceptEdge{
			{From: "sky", To: "daytime", Relation: "indicates", Confidence: 0.9},
		}},
	}
	synthesiser := &stubSynthesiser{synthesis: agents.Synthesis{Text: "Sounds right to me."}}
	store := ledger.NewInMemoryStore()

	cfg := Config{
		MaxRepairs: datatypes.MaxRepairs,
		Timeouts: config.Timeouts{
			AttemptMs: 1000, InvokeMs: 5000, TurnMs: 10000,
			FinalizeGraceMs: 2000, RetryBackoffMs: 1,
		},
		SmoothingAlpha:   0.6,
		InferenceDamping: 0.8,
	}
	eng := New(cfg, analyst, relational, synthesiser, staticThresholds{th}, store)

	return &fixture{
		engine:      eng,
		analyst:     analyst,
		relational:  relational,
		synthesiser: synthesiser,
		store:       store,
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestProcessTurn_HappyPath(t *testing.T) {
	f := newFixture(t, defaultTestThresholds())
	ctx := context.Background()

	result, err := f.engine.ProcessTurn(ctx, "sess-1", "hello there")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "Sounds right to me.", result.Response)
	assert.False(t, result.Degraded)
	assert.NotEmpty(t, result.TurnID)
	assert.Equal(t, datatypes.RegulationNormal, result.State.Regulation)
	assert.Equal(t, 0, result.State.RepairCount)
	assert.True(t, result.State.InRange())

	// Exactly one analysis cycle at full trust.
	assert.Equal(t, 1, f.analyst.callCount())
	assert.Equal(t, 1, f.relational.callCount())

	// Session bookkeeping.
	sess, err := f.engine.Sessions().Get("sess-1")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, sess.TurnState())
	assert.Equal(t, 1, sess.TurnCount())
	assert.Len(t, sess.Conversation(), 2)
	assert.Len(t, sess.Arguments(), 1)
	assert.NotEmpty(t, sess.ConceptGraph())

	// Durable before return.
	records, err := f.store.Contributions(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	snap, err := f.store.LatestSnapshot(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, result.TurnID, snap.TurnID)
}

func TestProcessTurn_EmptyInput(t *testing.T) {
	f := newFixture(t, defaultTestThresholds())

	_, err := f.engine.ProcessTurn(context.Background(), "sess-1", "")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Equal(t, 0, f.analyst.callCount())
}

func TestProcessTurn_RepairLoopBounded(t *testing.T) {
	// A slow-down floor above any reachable trust forces a repair on
	// every cycle; the ceiling must stop the loop.
	th := defaultTestThresholds()
	th.SlowDownBelow = 1.1
	th.ClarifyBelow = 1.1
	f := newFixture(t, th)

	result, err := f.engine.ProcessTurn(context.Background(), "sess-1", "hello")
	require.NoError(t, err)

	assert.Equal(t, 1+datatypes.MaxRepairs, f.analyst.callCount(),
		"one initial cycle plus the repair ceiling")
	assert.Equal(t, datatypes.MaxRepairs, result.State.RepairCount)
	assert.Equal(t, datatypes.RegulationSlowDown, result.State.Regulation)

	// The turn still completes through relational and finalize.
	assert.Equal(t, 1, f.relational.callCount())
	assert.Equal(t, "Sounds right to me.", result.Response)

	// The first cycle runs plain; every repair carries the mode.
	modes := f.analyst.seenModes()
	require.Len(t, modes, 4)
	assert.Equal(t, datatypes.RegulationNormal, modes[0])
	for _, mode := range modes[1:] {
		assert.Equal(t, datatypes.RegulationSlowDown, mode)
	}

	// Synthesiser sees the final regulation mode.
	assert.Equal(t, datatypes.RegulationSlowDown, f.synthesiser.lastMode)
}

func TestProcessTurn_RepairCountResetsPerTurn(t *testing.T) {
	th := defaultTestThresholds()
	th.SlowDownBelow = 1.1
	th.ClarifyBelow = 1.1
	f := newFixture(t, th)
	ctx := context.Background()

	first, err := f.engine.ProcessTurn(ctx, "sess-1", "hello")
	require.NoError(t, err)
	require.Equal(t, datatypes.MaxRepairs, first.State.RepairCount)

	second, err := f.engine.ProcessTurn(ctx, "sess-1", "hello again")
	require.NoError(t, err)
	assert.Equal(t, datatypes.MaxRepairs, second.State.RepairCount,
		"count reflects this turn's repairs, not an accumulation")
	assert.Equal(t, 2*(1+datatypes.MaxRepairs), f.analyst.callCount())
}

func TestProcessTurn_DegradedAnalystStillAnswers(t *testing.T) {
	f := newFixture(t, defaultTestThresholds())
	f.analyst.out = datatypes.AnalystOutput{
		Premises: []string{}, Fallacies: []string{}, Hedging: 0.5, Degraded: true,
	}
	f.analyst.records = []datatypes.ContributionRecord{
		{Model: "ollama/llama3.1:8b", Agent: "analyst", Offline: true, ErrorType: datatypes.ErrorServer},
		{Model: "anthropic/claude-sonnet-4-5", Agent: "analyst", Offline: true, ErrorType: datatypes.ErrorServer},
	}

	result, err := f.engine.ProcessTurn(context.Background(), "sess-1", "hello")
	require.NoError(t, err, "degradation is not an error")
	assert.True(t, result.Degraded)
	assert.NotEmpty(t, result.Response)

	// Failed attempts are still on the ledger, none contributed.
	records, err := f.store.Contributions(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotEmpty(t, records)
	for _, r := range records {
		assert.False(t, r.Contributed)
	}

	// Degraded analysis leaves no argument trace.
	sess, err := f.engine.Sessions().Get("sess-1")
	require.NoError(t, err)
	assert.Empty(t, sess.Arguments())
}

func TestProcessTurn_ConfigurationErrorPropagates(t *testing.T) {
	f := newFixture(t, defaultTestThresholds())
	f.analyst.err = &invoker.ConfigurationError{Agent: "analyst", Reason: "no candidates configured"}

	_, err := f.engine.ProcessTurn(context.Background(), "sess-1", "hello")
	require.Error(t, err)
	assert.True(t, invoker.IsConfigurationError(err))

	sess, getErr := f.engine.Sessions().Get("sess-1")
	require.NoError(t, getErr)
	assert.Equal(t, StateError, sess.TurnState())

	// The next turn recovers the session.
	f.analyst.err = nil
	result, err := f.engine.ProcessTurn(context.Background(), "sess-1", "hello again")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, sess.TurnState())
	assert.NotEmpty(t, result.Response)
}

func TestProcessTurn_DeadlineDegradesInsteadOfFailing(t *testing.T) {
	f := newFixture(t, defaultTestThresholds())
	f.engine.cfg.Timeouts.TurnMs = 1
	f.analyst.delay = 50 * time.Millisecond

	result, err := f.engine.ProcessTurn(context.Background(), "sess-1", "hello")
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Equal(t, "Sounds right to me.", result.Response,
		"finalization runs under the grace budget")
	assert.Equal(t, 0, f.relational.callCount(),
		"relational phase is skipped once the budget is gone")

	sess, err := f.engine.Sessions().Get("sess-1")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, sess.TurnState())
}

func TestProcessTurn_SequentialTurnsCarryState(t *testing.T) {
	f := newFixture(t, defaultTestThresholds())
	ctx := context.Background()

	first, err := f.engine.ProcessTurn(ctx, "sess-1", "this is wrong, absurd nonsense! I disagree!")
	require.NoError(t, err)
	require.Greater(t, first.State.SIM.Tension, 0.0)

	second, err := f.engine.ProcessTurn(ctx, "sess-1", "thank you for explaining")
	require.NoError(t, err)

	// Smoothing decays tension on a neutral turn without zeroing it.
	assert.Less(t, second.State.SIM.Tension, first.State.SIM.Tension)
	assert.Greater(t, second.State.SIM.Tension, 0.0)
}

func TestProcessTurn_ConcurrentTurnsSameSessionSerialize(t *testing.T) {
	f := newFixture(t, defaultTestThresholds())
	ctx := context.Background()

	const turns = 8
	var wg sync.WaitGroup
	errs := make([]error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.ProcessTurn(ctx, "sess-1", fmt.Sprintf("turn %d", i))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "turn %d", i)
	}

	sess, err := f.engine.Sessions().Get("sess-1")
	require.NoError(t, err)
	assert.Equal(t, turns, sess.TurnCount())
	assert.Len(t, sess.Conversation(), 2*turns)
	assert.Equal(t, StateIdle, sess.TurnState())
}

func TestProcessTurn_RehydratesFromSnapshot(t *testing.T) {
	f := newFixture(t, defaultTestThresholds())
	ctx := context.Background()

	prior := *datatypes.NewInternalState()
	prior.SIM.Tension = 1.0
	prior.TrustTau = 0.6
	require.NoError(t, f.store.SaveSnapshot(ctx, ledger.Snapshot{
		SessionID: "old-sess", TurnID: "turn-0", State: prior, Timestamp: time.Now().UTC(),
	}))

	result, err := f.engine.ProcessTurn(ctx, "old-sess", "thank you")
	require.NoError(t, err)

	// Neutral input against a rehydrated tension of 1.0 with alpha 0.6
	// decays to 0.4.
	assert.InDelta(t, 0.4, result.State.SIM.Tension, 1e-9)
}

func TestProcessTurn_PersistenceFailureFailsTurn(t *testing.T) {
	f := newFixture(t, defaultTestThresholds())
	wantErr := errors.New("disk full")
	f.engine.store = &failingStore{Store: f.store, snapshotErr: wantErr}

	_, err := f.engine.ProcessTurn(context.Background(), "sess-1", "hello")
	require.ErrorIs(t, err, wantErr)

	sess, getErr := f.engine.Sessions().Get("sess-1")
	require.NoError(t, getErr)
	assert.Equal(t, StateError, sess.TurnState())
}

func TestProcessTurn_ContradictionAcrossTurns(t *testing.T) {
	f := newFixture(t, defaultTestThresholds())
	ctx := context.Background()

	f.analyst.out = datatypes.AnalystOutput{
		Premises:   []string{"the budget is fixed"},
		Conclusion: "we proceed as planned",
		Fallacies:  []string{},
	}
	first, err := f.engine.ProcessTurn(ctx, "sess-1", "the budget is fixed")
	require.NoError(t, err)
	assert.Zero(t, first.State.Contradiction, "first turn has no history to contradict")

	f.analyst.mu.Lock()
	f.analyst.out = datatypes.AnalystOutput{
		Premises:   []string{"the budget is not fixed"},
		Conclusion: "we must replan",
		Fallacies:  []string{},
	}
	f.analyst.mu.Unlock()
	second, err := f.engine.ProcessTurn(ctx, "sess-1", "actually the budget is not fixed")
	require.NoError(t, err)
	assert.Greater(t, second.State.Contradiction, 0.0)
}

func TestDeleteSession_RemovesEverything(t *testing.T) {
	f := newFixture(t, defaultTestThresholds())
	ctx := context.Background()

	_, err := f.engine.ProcessTurn(ctx, "sess-1", "hello")
	require.NoError(t, err)

	require.NoError(t, f.engine.DeleteSession(ctx, "sess-1"))

	_, err = f.engine.Sessions().Get("sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	records, err := f.store.Contributions(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, records)
	_, err = f.store.LatestSnapshot(ctx, "sess-1")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
