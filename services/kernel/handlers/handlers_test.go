// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/agents"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/config"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/engine"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/ledger"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/middleware"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/routes"
)

// =============================================================================
// Stub agents
// =============================================================================

type okAnalyst struct{}

func (okAnalyst) Analyze(ctx context.Context, sessionID, turnID, input string, mode datatypes.RegulationMode) (datatypes.AnalystOutput, []datatypes.ContributionRecord, error) {
	return datatypes.AnalystOutput{
			Premises:   []string{"the user asked a question"},
			Conclusion: "an answer is expected",
			Fallacies:  []string{},
		}, []datatypes.ContributionRecord{{
			SessionID: sessionID, TurnID: turnID,
			Model: "ollama/granite4:micro-h", Agent: "analyst",
			Contributed: true, ErrorType: datatypes.ErrorNone, TokensUsed: 42,
		}}, nil
}

type okRelational struct{}

func (okRelational) Relate(ctx context.Context, sessionID, turnID, input string, analysis datatypes.AnalystOutput) (datatypes.RelationalOutput, []datatypes.ContributionRecord, error) {
	return datatypes.RelationalOutput{Edges: []datatypes.ConceptEdge{
		{From: "question", To: "answer", Relation: "expects", Confidence: 0.8},
	}}, nil, nil
}

type okSynthesiser struct{}

func (okSynthesiser) Synthesise(ctx context.Context, sessionID, turnID, input string, history []datatypes.Message, analysis datatypes.AnalystOutput, mode datatypes.RegulationMode) (agents.Synthesis, []datatypes.ContributionRecord, error) {
	return agents.Synthesis{Text: "Here is my answer."}, nil, nil
}

type staticThresholds struct{}

func (staticThresholds) Thresholds() config.Thresholds {
	return config.Thresholds{SlowDownBelow: 0.50, ClarifyBelow: 0.85, ContradictionEscalation: 0.90}
}

func newTestRouter(t *testing.T) (*gin.Engine, *engine.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	eng := engine.New(engine.Config{
		MaxRepairs: 3,
		Timeouts: config.Timeouts{
			AttemptMs: 1000, InvokeMs: 5000, TurnMs: 10000,
			FinalizeGraceMs: 2000, RetryBackoffMs: 1,
		},
		SmoothingAlpha:   0.6,
		InferenceDamping: 0.8,
	}, okAnalyst{}, okRelational{}, okSynthesiser{}, staticThresholds{}, ledger.NewInMemoryStore())

	router := gin.New()
	routes.SetupRoutes(router, eng, middleware.NewSessionLimiter(100, 100))
	return router, eng
}

func postTurn(t *testing.T, router *gin.Engine, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/turn", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}

func TestHandleTurn_Success(t *testing.T) {
	router, _ := newTestRouter(t)

	w := postTurn(t, router, datatypes.TurnRequest{SessionID: "sess-1", Input: "hello"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp datatypes.TurnResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, "Here is my answer.", resp.Response)
	assert.NotEmpty(t, resp.TurnID)
	assert.False(t, resp.Degraded)
	assert.Equal(t, datatypes.RegulationNormal, resp.InternalState.Regulation)
}

func TestHandleTurn_ValidationErrors(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing session id", map[string]string{"input": "hello"}},
		{"missing input", map[string]string{"session_id": "sess-1"}},
		{"empty input", map[string]string{"session_id": "sess-1", "input": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postTurn(t, router, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandleTurn_SessionRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, eng := newTestRouter(t)
	router := gin.New()
	routes.SetupRoutes(router, eng, middleware.NewSessionLimiter(0.001, 1))

	first := postTurn(t, router, datatypes.TurnRequest{SessionID: "sess-rl", Input: "one"})
	require.Equal(t, http.StatusOK, first.Code)

	second := postTurn(t, router, datatypes.TurnRequest{SessionID: "sess-rl", Input: "two"})
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// Other sessions are unaffected.
	other := postTurn(t, router, datatypes.TurnRequest{SessionID: "sess-other", Input: "one"})
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestSessionEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	w := postTurn(t, router, datatypes.TurnRequest{SessionID: "sess-1", Input: "hello"})
	require.Equal(t, http.StatusOK, w.Code)

	// List
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Sessions []datatypes.SessionSummary `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "sess-1", list.Sessions[0].SessionID)
	assert.Equal(t, 1, list.Sessions[0].TurnCount)

	// State
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/sessions/sess-1/state", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var state datatypes.SessionStateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, 1, state.TurnCount)
	assert.True(t, state.InternalState.InRange())

	// Contributions
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/sessions/sess-1/contributions", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var contrib struct {
		Records []datatypes.ContributionRecord `json:"records"`
		Summary datatypes.ContributionSummary  `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &contrib))
	require.Len(t, contrib.Records, 1)
	assert.Equal(t, 1, contrib.Summary.Contributed)

	// Delete
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/v1/sessions/sess-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	// State is gone afterwards.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/sessions/sess-1/state", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSessionState_UnknownSession(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/sessions/nope/state", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
