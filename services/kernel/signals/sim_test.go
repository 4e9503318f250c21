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

func TestIntegrate_RangeAlwaysHolds(t *testing.T) {
	inputs := []string{
		"",
		"hello there",
		"this is wrong, absolutely wrong, I hate it!!! never never never",
		"maybe perhaps possibly I guess it might probably seem unclear",
	}
	priors := []datatypes.SignalState{
		{},
		{Tension: 1, Uncertainty: 1, EmotionalIntensity: 1},
		{Tension: 0.5, Uncertainty: 0.2, EmotionalIntensity: 0.9},
	}

	for _, input := range inputs {
		for _, prior := range priors {
			got := Integrate(input, datatypes.AnalystOutput{}, prior, 0.6)
			for name, v := range map[string]float64{
				"tension":             got.Tension,
				"uncertainty":         got.Uncertainty,
				"emotional_intensity": got.EmotionalIntensity,
			} {
				if v < 0 || v > 1 {
					t.Errorf("Integrate(%q) %s out of range: %v", input, name, v)
				}
			}
		}
	}
}

func TestIntegrate_NeutralInputDecaysTowardZero(t *testing.T) {
	prior := datatypes.SignalState{Tension: 0.8, Uncertainty: 0.8, EmotionalIntensity: 0.8}

	got := Integrate("the sky is blue", datatypes.AnalystOutput{}, prior, 0.6)

	if got.Tension >= prior.Tension {
		t.Errorf("tension did not decay: %v -> %v", prior.Tension, got.Tension)
	}
	if got.Uncertainty >= prior.Uncertainty {
		t.Errorf("uncertainty did not decay: %v -> %v", prior.Uncertainty, got.Uncertainty)
	}
}

func TestIntegrate_TenseInputRaisesTension(t *testing.T) {
	prior := datatypes.SignalState{}

	got := Integrate("no, that is wrong and ridiculous, I disagree!",
		datatypes.AnalystOutput{}, prior, 0.6)

	if got.Tension == 0 {
		t.Error("expected nonzero tension for confrontational input")
	}
}

func TestIntegrate_HedgedInputRaisesUncertainty(t *testing.T) {
	got := Integrate("maybe, perhaps it might possibly work, I guess",
		datatypes.AnalystOutput{}, datatypes.SignalState{}, 1.0)

	if got.Uncertainty == 0 {
		t.Error("expected nonzero uncertainty for hedged input")
	}
}

func TestIntegrate_AnalystSignalsFeedIn(t *testing.T) {
	plain := Integrate("some statement", datatypes.AnalystOutput{}, datatypes.SignalState{}, 1.0)
	withFallacies := Integrate("some statement", datatypes.AnalystOutput{
		Fallacies: []string{"ad hominem", "strawman"},
	}, datatypes.SignalState{}, 1.0)
	withHedging := Integrate("some statement", datatypes.AnalystOutput{
		Hedging: 0.9,
	}, datatypes.SignalState{}, 1.0)

	if withFallacies.Tension <= plain.Tension {
		t.Errorf("fallacies should raise tension: %v <= %v", withFallacies.Tension, plain.Tension)
	}
	if withHedging.Uncertainty <= plain.Uncertainty {
		t.Errorf("hedging estimate should raise uncertainty: %v <= %v",
			withHedging.Uncertainty, plain.Uncertainty)
	}
}

func TestIntegrate_Pure(t *testing.T) {
	input := "no, wrong, I absolutely hate this!"
	analysis := datatypes.AnalystOutput{Fallacies: []string{"strawman"}, Hedging: 0.3}
	prior := datatypes.SignalState{Tension: 0.4, Uncertainty: 0.1, EmotionalIntensity: 0.2}

	first := Integrate(input, analysis, prior, 0.6)
	for i := 0; i < 50; i++ {
		if got := Integrate(input, analysis, prior, 0.6); got != first {
			t.Fatalf("Integrate not deterministic: %+v != %+v", got, first)
		}
	}

	// The prior must not be mutated.
	if prior.Tension != 0.4 || prior.Uncertainty != 0.1 || prior.EmotionalIntensity != 0.2 {
		t.Errorf("prior state mutated: %+v", prior)
	}
}

func TestIntegrate_AlphaOneIgnoresPrior(t *testing.T) {
	prior := datatypes.SignalState{Tension: 1, Uncertainty: 1, EmotionalIntensity: 1}

	got := Integrate("the sky is blue", datatypes.AnalystOutput{}, prior, 1.0)

	if got.Tension != 0 {
		t.Errorf("alpha=1 should discard prior tension, got %v", got.Tension)
	}
}
