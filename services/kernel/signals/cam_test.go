// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package signals

import (
	"testing"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
)

func record(conclusion string, premises ...string) datatypes.ArgumentRecord {
	return datatypes.ArgumentRecord{Premises: premises, Conclusion: conclusion}
}

func TestContradiction_EmptyHistoryScoresZero(t *testing.T) {
	current := datatypes.AnalystOutput{
		Premises:   []string{"the budget is fixed"},
		Conclusion: "we cannot hire",
	}

	if got := Contradiction(current, nil); got != 0 {
		t.Errorf("Contradiction with empty history = %v, want 0", got)
	}
}

func TestContradiction_DirectNegationDetected(t *testing.T) {
	history := []datatypes.ArgumentRecord{
		record("the budget is fixed"),
	}
	current := datatypes.AnalystOutput{
		Conclusion: "the budget is not fixed",
	}

	got := Contradiction(current, history)
	if got <= 0 {
		t.Errorf("expected positive contradiction for direct negation, got %v", got)
	}
	if got > 1 {
		t.Errorf("contradiction out of range: %v", got)
	}
}

func TestContradiction_ConsistentClaimsScoreZero(t *testing.T) {
	history := []datatypes.ArgumentRecord{
		record("we should hire", "the budget is fixed"),
	}
	current := datatypes.AnalystOutput{
		Premises:   []string{"the budget is fixed"},
		Conclusion: "we should hire",
	}

	if got := Contradiction(current, history); got != 0 {
		t.Errorf("Contradiction for consistent claims = %v, want 0", got)
	}
}

func TestContradiction_MonotoneUnderAddedInconsistency(t *testing.T) {
	history := []datatypes.ArgumentRecord{
		record("the plan works", "we have enough time"),
	}

	one := Contradiction(datatypes.AnalystOutput{
		Conclusion: "the plan does not work",
	}, history)

	two := Contradiction(datatypes.AnalystOutput{
		Premises:   []string{"we do not have enough time"},
		Conclusion: "the plan does not work",
	}, history)

	if two < one {
		t.Errorf("score decreased under added inconsistency: %v -> %v", one, two)
	}
	if one <= 0 || two <= 0 {
		t.Errorf("expected positive scores, got %v and %v", one, two)
	}
}

func TestContradiction_NeverAlwaysInversion(t *testing.T) {
	history := []datatypes.ArgumentRecord{
		record("i never miss deadlines"),
	}
	current := datatypes.AnalystOutput{
		Conclusion: "I always miss deadlines",
	}

	if got := Contradiction(current, history); got <= 0 {
		t.Errorf("expected positive contradiction for never/always inversion, got %v", got)
	}
}

func TestContradiction_Pure(t *testing.T) {
	history := []datatypes.ArgumentRecord{
		record("the budget is fixed", "headcount is frozen"),
	}
	current := datatypes.AnalystOutput{
		Premises:   []string{"headcount is not frozen"},
		Conclusion: "the budget is not fixed",
	}

	first := Contradiction(current, history)
	for i := 0; i < 50; i++ {
		if got := Contradiction(current, history); got != first {
			t.Fatalf("Contradiction not deterministic: %v != %v", got, first)
		}
	}
}
