// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package signals implements the five coherence signal modules. Every
// function here is pure and deterministic: identical inputs always yield
// identical outputs, no I/O, no clocks, no randomness. The engine is the
// only caller and owns sequencing.
package signals

import (
	"strings"
	"unicode"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
)

// ======================================================================
// SIM - Signal Integration Module
// ======================================================================

// Lexical marker sets for the affective heuristics. Matching is on
// lowercased whole words.
var (
	tensionMarkers = map[string]bool{
		"wrong": true, "never": true, "always": true, "ridiculous": true,
		"absurd": true, "nonsense": true, "no": true, "disagree": true,
		"false": true, "stop": true, "refuse": true, "impossible": true,
	}

	hedgeMarkers = map[string]bool{
		"maybe": true, "perhaps": true, "might": true, "possibly": true,
		"probably": true, "unclear": true, "unsure": true, "guess": true,
		"somehow": true, "seems": true, "apparently": true, "roughly": true,
	}

	emotionMarkers = map[string]bool{
		"hate": true, "love": true, "furious": true, "terrified": true,
		"amazing": true, "awful": true, "horrible": true, "wonderful": true,
		"angry": true, "scared": true, "thrilled": true, "devastated": true,
		"desperate": true, "outraged": true,
	}

	intensifiers = map[string]bool{
		"so": true, "really": true, "extremely": true, "totally": true,
		"absolutely": true, "completely": true, "utterly": true,
	}
)

// saturationK controls how fast marker counts saturate toward 1.0.
const saturationK = 3.0

// Integrate computes the smoothed affective signal triple for a turn.
//
// # Description
//
// Raw tension, uncertainty, and emotional intensity are scored from
// lexical heuristics over the user input plus the Analyst's structured
// output (fallacy count feeds tension, the hedging estimate feeds
// uncertainty). Each raw score is then exponentially smoothed against the
// prior turn's signal state:
//
//	smoothed = alpha*raw + (1-alpha)*prior
//
// and clamped to [0, 1].
//
// # Inputs
//
//   - input: the raw user utterance for the turn.
//   - analysis: the Analyst output for the same turn.
//   - prior: the session's signal state before this turn.
//   - alpha: smoothing factor in (0, 1]; 1 ignores the prior entirely.
//
// # Outputs
//
//   - The new signal state, every field in [0, 1].
//
// # Thread Safety
//
// Pure function; safe from any goroutine.
func Integrate(input string, analysis datatypes.AnalystOutput, prior datatypes.SignalState, alpha float64) datatypes.SignalState {
	if alpha <= 0 || alpha > 1 {
		alpha = 1
	}

	words := tokenize(input)

	rawTension := saturate(float64(countMarkers(words, tensionMarkers)) +
		0.5*float64(exclamationCount(input)) +
		float64(len(analysis.Fallacies)))

	rawUncertainty := saturate(float64(countMarkers(words, hedgeMarkers)))
	// Blend in the model's own hedging estimate when present.
	if h := datatypes.Clamp01(analysis.Hedging); h > 0 {
		rawUncertainty = 0.5*rawUncertainty + 0.5*h
	}

	rawEmotional := saturate(float64(countMarkers(words, emotionMarkers)) +
		0.5*float64(countMarkers(words, intensifiers)) +
		0.5*float64(exclamationCount(input)))

	next := datatypes.SignalState{
		Tension:            alpha*rawTension + (1-alpha)*prior.Tension,
		Uncertainty:        alpha*rawUncertainty + (1-alpha)*prior.Uncertainty,
		EmotionalIntensity: alpha*rawEmotional + (1-alpha)*prior.EmotionalIntensity,
	}
	return next.Clamped()
}

// saturate maps a non-negative count onto [0, 1) with diminishing
// returns: 0 -> 0, K -> 0.5, inf -> 1.
func saturate(count float64) float64 {
	if count <= 0 {
		return 0
	}
	return count / (count + saturationK)
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func countMarkers(words []string, markers map[string]bool) int {
	n := 0
	for _, w := range words {
		if markers[w] {
			n++
		}
	}
	return n
}

func exclamationCount(text string) int {
	return strings.Count(text, "!")
}
