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
	"strings"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
)

// ======================================================================
// CAM - Contradiction Assessment Module
// ======================================================================

// conflictSaturationK controls how fast conflict counts saturate.
const conflictSaturationK = 2.0

// Contradiction scores how much the latest analysis conflicts with the
// session's recorded argument history.
//
// # Description
//
// Each statement (premise or conclusion) reduces to a canonical core plus
// a polarity flag: negation tokens ("not", "never", "cannot") flip the
// polarity and drop out of the core, auxiliaries ("do", "does") and the
// positive counterpart "always" drop out, and remaining words get a light
// plural stem. Two statements conflict when their cores match but their
// polarities differ. The conflict count between the current analysis and
// all historical records maps onto [0, 1) with saturation, so the score
// is monotone non-decreasing under added inconsistency.
//
// An empty history always scores 0; a first turn cannot contradict
// anything.
//
// # Thread Safety
//
// Pure function; safe from any goroutine.
func Contradiction(current datatypes.AnalystOutput, history []datatypes.ArgumentRecord) float64 {
	if len(history) == 0 {
		return 0
	}

	currentStatements := collectStatements(current.Premises, current.Conclusion)
	if len(currentStatements) == 0 {
		return 0
	}

	conflicts := 0
	for _, record := range history {
		for _, past := range collectStatements(record.Premises, record.Conclusion) {
			for _, cur := range currentStatements {
				if cur.conflictsWith(past) {
					conflicts++
				}
			}
		}
	}

	return datatypes.Clamp01(float64(conflicts) / (float64(conflicts) + conflictSaturationK))
}

// statement is the canonical form used for conflict checks.
type statement struct {
	core     string
	negative bool
}

func (s statement) conflictsWith(other statement) bool {
	return s.core != "" && s.core == other.core && s.negative != other.negative
}

func collectStatements(premises []string, conclusion string) []statement {
	statements := make([]statement, 0, len(premises)+1)
	for _, p := range premises {
		if st := canonicalize(p); st.core != "" {
			statements = append(statements, st)
		}
	}
	if st := canonicalize(conclusion); st.core != "" {
		statements = append(statements, st)
	}
	return statements
}

// canonicalize lowercases, strips punctuation, folds negation into a
// polarity flag, and applies a light plural stem. Deliberately
// conservative; false positives poison trust.
func canonicalize(s string) statement {
	var st statement
	var core []string

	for _, token := range tokenize(s) {
		switch token {
		case "not", "never", "nor", "dont", "doesnt", "cant", "isnt", "arent", "wont":
			st.negative = !st.negative
		case "cannot":
			st.negative = !st.negative
			core = append(core, "can")
		case "always", "do", "does":
			// Auxiliaries and the positive counterpart of "never"
			// carry no content of their own.
		default:
			core = append(core, stem(token))
		}
	}

	st.core = strings.Join(core, " ")
	return st
}

// stem strips a trailing plural "s". Both sides of every comparison pass
// through the same stem, so over-stemming cannot create asymmetry.
func stem(word string) string {
	if len(word) > 3 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") {
		return word[:len(word)-1]
	}
	return word
}
