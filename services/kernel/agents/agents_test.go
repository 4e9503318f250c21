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
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
	"github.com/AleutianAI/CoherenceKernel/services/kernel/invoker"
)

// fakeInvoker replays a scripted completion through the request's parser,
// or fails the whole cascade.
type fakeInvoker struct {
	raw       string
	exhausted bool
	configErr bool

	lastRequest invoker.Request
}

func (f *fakeInvoker) Invoke(ctx context.Context, sessionID, turnID string, req invoker.Request) (*invoker.Result, []datatypes.ContributionRecord, error) {
	f.lastRequest = req

	record := datatypes.ContributionRecord{
		SessionID: sessionID, TurnID: turnID,
		Model: "fake/model", Agent: req.Agent,
	}

	if f.configErr {
		return nil, nil, &invoker.ConfigurationError{Agent: req.Agent, Reason: "no candidate models configured"}
	}
	if f.exhausted {
		record.ErrorType = datatypes.ErrorTimeout
		return nil, []datatypes.ContributionRecord{record}, fmt.Errorf("agent %s: %w", req.Agent, invoker.ErrExhausted)
	}

	output := any(f.raw)
	if req.Parse != nil {
		parsed, err := req.Parse(f.raw)
		if err != nil {
			record.ErrorType = datatypes.ErrorParsing
			return nil, []datatypes.ContributionRecord{record}, fmt.Errorf("agent %s: %w", req.Agent, invoker.ErrExhausted)
		}
		output = parsed
	}

	record.Contributed = true
	record.ErrorType = datatypes.ErrorNone
	return &invoker.Result{Output: output, Raw: f.raw, Model: "fake/model"},
		[]datatypes.ContributionRecord{record}, nil
}

func TestAnalyst_ParsesWellFormedOutput(t *testing.T) {
	inv := &fakeInvoker{raw: `{
		"premises": ["the budget is fixed"],
		"conclusion": "we cannot hire",
		"fallacies": [],
		"hedging": 0.2
	}`}
	analyst := NewAnalyst(inv, []string{"fake/model"})

	out, records, err := analyst.Analyze(context.Background(), "s1", "t1",
		"The budget is fixed so we cannot hire.", datatypes.RegulationNormal)

	require.NoError(t, err)
	assert.Equal(t, []string{"the budget is fixed"}, out.Premises)
	assert.Equal(t, "we cannot hire", out.Conclusion)
	assert.Equal(t, 0.2, out.Hedging)
	assert.False(t, out.Degraded)
	require.Len(t, records, 1)
	assert.True(t, records[0].Contributed)
}

func TestAnalyst_CodeFencedJSONAccepted(t *testing.T) {
	inv := &fakeInvoker{raw: "Here you go:\n```json\n{\"premises\": [], \"conclusion\": \"ok\", \"fallacies\": [], \"hedging\": 0}\n```"}
	analyst := NewAnalyst(inv, []string{"fake/model"})

	out, _, err := analyst.Analyze(context.Background(), "s1", "t1", "hi", datatypes.RegulationNormal)

	require.NoError(t, err)
	assert.Equal(t, "ok", out.Conclusion)
}

func TestAnalyst_DegradesOnExhaustion(t *testing.T) {
	inv := &fakeInvoker{exhausted: true}
	analyst := NewAnalyst(inv, []string{"fake/model"})

	out, records, err := analyst.Analyze(context.Background(), "s1", "t1", "hi", datatypes.RegulationNormal)

	require.NoError(t, err, "exhaustion must not fail the turn")
	assert.True(t, out.Degraded)
	assert.Equal(t, 0.5, out.Hedging)
	assert.NotEmpty(t, records, "failed attempts still produce records")
}

func TestAnalyst_ConfigurationErrorPropagates(t *testing.T) {
	inv := &fakeInvoker{configErr: true}
	analyst := NewAnalyst(inv, []string{})

	_, _, err := analyst.Analyze(context.Background(), "s1", "t1", "hi", datatypes.RegulationNormal)

	assert.True(t, invoker.IsConfigurationError(err))
}

func TestAnalyst_RepairModeAdjustsPrompt(t *testing.T) {
	raw := `{"premises": [], "conclusion": "c", "fallacies": [], "hedging": 0}`

	for _, tt := range []struct {
		mode     datatypes.RegulationMode
		fragment string
	}{
		{datatypes.RegulationClarify, "clarification focus"},
		{datatypes.RegulationSlowDown, "step by step"},
	} {
		inv := &fakeInvoker{raw: raw}
		analyst := NewAnalyst(inv, []string{"fake/model"})

		_, _, err := analyst.Analyze(context.Background(), "s1", "t1", "hi", tt.mode)
		require.NoError(t, err)

		require.NotEmpty(t, inv.lastRequest.Messages)
		system := inv.lastRequest.Messages[0].Content
		assert.Contains(t, system, tt.fragment, "mode %s", tt.mode)
	}
}

func TestRelational_SanitizesEdges(t *testing.T) {
	inv := &fakeInvoker{raw: `{"edges": [
		{"from": "budget", "to": "hiring", "relation": "constrains", "confidence": 0.9},
		{"from": "", "to": "hiring", "relation": "supports", "confidence": 0.5},
		{"from": "a", "to": "b", "relation": "", "confidence": 1.7}
	]}`}
	relational := NewRelational(inv, []string{"fake/model"})

	out, _, err := relational.Relate(context.Background(), "s1", "t1", "msg", datatypes.AnalystOutput{})

	require.NoError(t, err)
	require.Len(t, out.Edges, 2, "edge with empty endpoint dropped")
	assert.Equal(t, "constrains", out.Edges[0].Relation)
	assert.Equal(t, "related_to", out.Edges[1].Relation, "empty relation defaults")
	assert.Equal(t, 1.0, out.Edges[1].Confidence, "confidence clamped")
}

func TestRelational_DegradesOnExhaustion(t *testing.T) {
	inv := &fakeInvoker{exhausted: true}
	relational := NewRelational(inv, []string{"fake/model"})

	out, _, err := relational.Relate(context.Background(), "s1", "t1", "msg", datatypes.AnalystOutput{})

	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.Empty(t, out.Edges)
}

func TestSynthesiser_ReturnsModelText(t *testing.T) {
	inv := &fakeInvoker{raw: "Sure, here's what I think."}
	synthesiser := NewSynthesiser(inv, []string{"fake/model"})

	out, records, err := synthesiser.Synthesise(context.Background(), "s1", "t1",
		"what do you think?", nil, datatypes.AnalystOutput{}, datatypes.RegulationNormal)

	require.NoError(t, err)
	assert.Equal(t, "Sure, here's what I think.", out.Text)
	assert.False(t, out.Degraded)
	require.Len(t, records, 1)
}

func TestSynthesiser_ToneFollowsRegulation(t *testing.T) {
	for _, tt := range []struct {
		mode     datatypes.RegulationMode
		fragment string
	}{
		{datatypes.RegulationClarify, "invite correction"},
		{datatypes.RegulationSlowDown, "clarifying question"},
	} {
		inv := &fakeInvoker{raw: "reply"}
		synthesiser := NewSynthesiser(inv, []string{"fake/model"})

		_, _, err := synthesiser.Synthesise(context.Background(), "s1", "t1",
			"hi", nil, datatypes.AnalystOutput{}, tt.mode)
		require.NoError(t, err)

		system := inv.lastRequest.Messages[0].Content
		assert.Contains(t, system, tt.fragment, "mode %s", tt.mode)
	}
}

func TestSynthesiser_DegradesToCannedReply(t *testing.T) {
	inv := &fakeInvoker{exhausted: true}
	synthesiser := NewSynthesiser(inv, []string{"fake/model"})

	out, _, err := synthesiser.Synthesise(context.Background(), "s1", "t1",
		"hi", nil, datatypes.AnalystOutput{}, datatypes.RegulationNormal)

	require.NoError(t, err)
	assert.True(t, out.Degraded)
	assert.NotEmpty(t, out.Text, "degraded turns still answer the user")
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "bare object", raw: `{"a": 1}`, want: `{"a": 1}`},
		{name: "prose around object", raw: `Sure: {"a": 1} hope that helps`, want: `{"a": 1}`},
		{name: "nested braces", raw: `{"a": {"b": 2}}`, want: `{"a": {"b": 2}}`},
		{name: "braces inside strings", raw: `{"a": "}{"}`, want: `{"a": "}{"}`},
		{name: "no object", raw: "just words", wantErr: true},
		{name: "unbalanced", raw: `{"a": 1`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAnalystOutput_RejectsNonObject(t *testing.T) {
	_, err := parseAnalystOutput("the conclusion is that hiring is frozen")
	assert.Error(t, err)

	_, err = parseAnalystOutput(`{"premises": "not an array"}`)
	assert.Error(t, err)
}

func TestPrompts_NormalModeHasNoRepairInstruction(t *testing.T) {
	assert.Empty(t, repairInstruction(datatypes.RegulationNormal))
	assert.Empty(t, toneInstruction(datatypes.RegulationNormal))
	assert.True(t, strings.Contains(analystSystemPrompt, "JSON"))
}
