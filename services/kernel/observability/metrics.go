// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the coherence
// kernel.
//
// # Description
//
// Metrics cover the turn loop (counts, duration, repairs, regulation
// modes), the trust signal distribution, and model invocation outcomes
// (calls, tokens, cost). Exposed via the /metrics endpoint for
// Prometheus + Grafana.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
)

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for kernel metrics
const kernelSubsystem = "kernel"

// KernelMetrics holds all Prometheus metrics for turn processing.
//
// Initialize once at startup via InitMetrics().
type KernelMetrics struct {
	// TurnsTotal counts processed turns.
	// Labels: status (ok, degraded, error)
	TurnsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures wall-clock turn duration.
	// Labels: status (ok, degraded, error)
	TurnDurationSeconds *prometheus.HistogramVec

	// RepairsTotal counts repair iterations across all turns.
	RepairsTotal prometheus.Counter

	// RegulationTotal counts regulation mode selections per analysis cycle.
	// Labels: mode (normal, clarify, slow_down)
	RegulationTotal *prometheus.CounterVec

	// TrustTau observes the post-turn trust score distribution.
	TrustTau prometheus.Histogram

	// ModelCallsTotal counts model invocation attempts.
	// Labels: model, agent, error_type (none, timeout, 4xx, 5xx, parsing_error, fallback)
	ModelCallsTotal *prometheus.CounterVec

	// ModelLatencySeconds measures per-attempt model call latency.
	// Labels: model
	ModelLatencySeconds *prometheus.HistogramVec

	// TokensTotal counts tokens consumed by contributing calls.
	// Labels: model
	TokensTotal *prometheus.CounterVec

	// CostUSDTotal accumulates estimated spend in USD.
	// Labels: model
	CostUSDTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of KernelMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *KernelMetrics

// InitMetrics creates and registers all kernel metrics.
//
// # Description
//
// Should be called once at application startup. Panics if called twice
// (duplicate registration with the default registry).
func InitMetrics() *KernelMetrics {
	DefaultMetrics = &KernelMetrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: kernelSubsystem,
				Name:      "turns_total",
				Help:      "Total processed turns by status",
			},
			[]string{"status"},
		),

		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: kernelSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "Wall-clock turn duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
			},
			[]string{"status"},
		),

		RepairsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: kernelSubsystem,
				Name:      "repairs_total",
				Help:      "Total repair iterations across all turns",
			},
		),

		RegulationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: kernelSubsystem,
				Name:      "regulation_selected_total",
				Help:      "Regulation mode selections per analysis cycle",
			},
			[]string{"mode"},
		),

		TrustTau: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: kernelSubsystem,
				Name:      "trust_tau",
				Help:      "Post-turn trust score distribution",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
		),

		ModelCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: kernelSubsystem,
				Name:      "model_calls_total",
				Help:      "Model invocation attempts by model, agent, and error type",
			},
			[]string{"model", "agent", "error_type"},
		),

		ModelLatencySeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: kernelSubsystem,
				Name:      "model_call_duration_seconds",
				Help:      "Per-attempt model call latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"model"},
		),

		TokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: kernelSubsystem,
				Name:      "tokens_total",
				Help:      "Tokens consumed by contributing model calls",
			},
			[]string{"model"},
		),

		CostUSDTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: kernelSubsystem,
				Name:      "model_cost_usd_total",
				Help:      "Estimated model spend in USD",
			},
			[]string{"model"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Recorder methods
// =============================================================================

// RecordTurn records one completed or failed turn.
func (m *KernelMetrics) RecordTurn(status string, duration time.Duration, state datatypes.InternalState) {
	m.TurnsTotal.WithLabelValues(status).Inc()
	m.TurnDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
	if status != "error" {
		m.TrustTau.Observe(state.TrustTau)
	}
}

// RecordRepair counts one repair iteration.
func (m *KernelMetrics) RecordRepair() {
	m.RepairsTotal.Inc()
}

// RecordRegulation counts one regulation mode selection.
func (m *KernelMetrics) RecordRegulation(mode datatypes.RegulationMode) {
	m.RegulationTotal.WithLabelValues(mode.String()).Inc()
}

// RecordModelCalls records the invocation attempts of a finished turn.
func (m *KernelMetrics) RecordModelCalls(records []datatypes.ContributionRecord) {
	for _, r := range records {
		m.ModelCallsTotal.WithLabelValues(r.Model, r.Agent, string(r.ErrorType)).Inc()
		if r.ErrorType == datatypes.ErrorFallback {
			// Skipped candidates never ran; no latency or spend.
			continue
		}
		m.ModelLatencySeconds.WithLabelValues(r.Model).Observe(float64(r.LatencyMs) / 1000)
		if r.TokensUsed > 0 {
			m.TokensTotal.WithLabelValues(r.Model).Add(float64(r.TokensUsed))
		}
		if r.CostUSD > 0 {
			m.CostUSDTotal.WithLabelValues(r.Model).Add(r.CostUSD)
		}
	}
}
