// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and watches the kernel configuration surface:
// candidate model lists per role, regulation thresholds, timeout budgets,
// the repair ceiling, and backing-store endpoints.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Role names used as keys into the candidate map.
const (
	RoleAnalyst     = "analyst"
	RoleRelational  = "relational"
	RoleSynthesiser = "synthesiser"
)

// Thresholds are the regulation policy tunables. These hot-reload; see
// Watcher.
type Thresholds struct {
	// SlowDownBelow selects slow_down when trust is strictly below it.
	SlowDownBelow float64 `yaml:"slow_down_below"`

	// ClarifyBelow selects clarify when trust is strictly below it (and
	// not already slow_down).
	ClarifyBelow float64 `yaml:"clarify_below"`

	// ContradictionEscalation escalates clarify to slow_down when the
	// contradiction score is at or above it.
	ContradictionEscalation float64 `yaml:"contradiction_escalation"`
}

// Timeouts are the per-call and per-turn wall-clock budgets.
type Timeouts struct {
	// AttemptMs bounds a single model attempt.
	AttemptMs int `yaml:"attempt_ms"`

	// InvokeMs bounds one whole invoker call across its candidate
	// cascade.
	InvokeMs int `yaml:"invoke_ms"`

	// TurnMs bounds a whole turn. On expiry the engine degrades to
	// finalization instead of failing.
	TurnMs int `yaml:"turn_ms"`

	// FinalizeGraceMs is the extra budget granted to the Synthesiser
	// when the turn deadline has already passed.
	FinalizeGraceMs int `yaml:"finalize_grace_ms"`

	// RetryBackoffMs is the fixed pause before the single 5xx retry.
	RetryBackoffMs int `yaml:"retry_backoff_ms"`
}

// Attempt returns the per-attempt budget as a duration.
func (t Timeouts) Attempt() time.Duration { return time.Duration(t.AttemptMs) * time.Millisecond }

// Invoke returns the per-invoke budget as a duration.
func (t Timeouts) Invoke() time.Duration { return time.Duration(t.InvokeMs) * time.Millisecond }

// Turn returns the per-turn budget as a duration.
func (t Timeouts) Turn() time.Duration { return time.Duration(t.TurnMs) * time.Millisecond }

// FinalizeGrace returns the finalize grace budget as a duration.
func (t Timeouts) FinalizeGrace() time.Duration {
	return time.Duration(t.FinalizeGraceMs) * time.Millisecond
}

// RetryBackoff returns the 5xx retry pause as a duration.
func (t Timeouts) RetryBackoff() time.Duration {
	return time.Duration(t.RetryBackoffMs) * time.Millisecond
}

// ModelPrice is per-million-token pricing for cost attribution.
type ModelPrice struct {
	InputPerMTok  float64 `yaml:"input_per_mtok"`
	OutputPerMTok float64 `yaml:"output_per_mtok"`
}

// Signals are the signal-module tunables.
type Signals struct {
	// SmoothingAlpha is the exponential smoothing factor applied to the
	// affective signals, in (0, 1]. Higher weights the newest turn more.
	SmoothingAlpha float64 `yaml:"smoothing_alpha"`

	// InferenceDamping multiplies derived-edge confidence per hop.
	InferenceDamping float64 `yaml:"inference_damping"`
}

// RateLimit configures the per-session token bucket.
type RateLimit struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// Weaviate configures the optional knowledge-graph boundary. Empty host
// means lightweight mode.
type Weaviate struct {
	Scheme string `yaml:"scheme"`
	Host   string `yaml:"host"`
}

// Influx configures the optional analytics sink. Empty URL disables it.
type Influx struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Config is the full kernel configuration.
type Config struct {
	// Host and Port bind the HTTP listener.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Candidates maps role name to an ordered "provider/model" list.
	Candidates map[string][]string `yaml:"candidates"`

	// MaxRepairs caps repair iterations per turn.
	MaxRepairs int `yaml:"max_repairs"`

	Thresholds Thresholds `yaml:"thresholds"`
	Timeouts   Timeouts   `yaml:"timeouts"`
	Signals    Signals    `yaml:"signals"`
	RateLimit  RateLimit  `yaml:"rate_limit"`

	// Pricing maps "provider/model" to its price entry. Unknown models
	// cost 0.
	Pricing map[string]ModelPrice `yaml:"pricing"`

	// BadgerPath is the durable ledger directory. Empty means in-memory
	// only.
	BadgerPath string `yaml:"badger_path"`

	Weaviate Weaviate `yaml:"weaviate"`
	Influx   Influx   `yaml:"influx"`

	// OTLPEndpoint is the trace exporter target (host:port). Empty
	// disables trace export.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{
		Host: "0.0.0.0",
		Port: 8090,
		Candidates: map[string][]string{
			RoleAnalyst:     {"ollama/granite4:micro-h"},
			RoleRelational:  {"ollama/granite4:micro-h"},
			RoleSynthesiser: {"ollama/granite4:micro-h"},
		},
		MaxRepairs: 3,
		Thresholds: Thresholds{
			SlowDownBelow:           0.50,
			ClarifyBelow:            0.85,
			ContradictionEscalation: 0.90,
		},
		Timeouts: Timeouts{
			AttemptMs:       30_000,
			InvokeMs:        90_000,
			TurnMs:          300_000,
			FinalizeGraceMs: 10_000,
			RetryBackoffMs:  250,
		},
		Signals: Signals{
			SmoothingAlpha:   0.6,
			InferenceDamping: 0.8,
		},
		RateLimit: RateLimit{
			PerSecond: 1.0,
			Burst:     3,
		},
		Weaviate: Weaviate{Scheme: "http"},
	}
	return cfg
}

// Load reads the YAML file at path (when non-empty), applies defaults for
// anything unset, then applies environment overrides, then validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read the config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse the config file: %w", err)
		}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if len(cfg.Candidates) == 0 {
		cfg.Candidates = def.Candidates
	}
	if cfg.MaxRepairs == 0 {
		cfg.MaxRepairs = def.MaxRepairs
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = def.Thresholds
	}
	if cfg.Timeouts.AttemptMs == 0 {
		cfg.Timeouts.AttemptMs = def.Timeouts.AttemptMs
	}
	if cfg.Timeouts.InvokeMs == 0 {
		cfg.Timeouts.InvokeMs = def.Timeouts.InvokeMs
	}
	if cfg.Timeouts.TurnMs == 0 {
		cfg.Timeouts.TurnMs = def.Timeouts.TurnMs
	}
	if cfg.Timeouts.FinalizeGraceMs == 0 {
		cfg.Timeouts.FinalizeGraceMs = def.Timeouts.FinalizeGraceMs
	}
	if cfg.Timeouts.RetryBackoffMs == 0 {
		cfg.Timeouts.RetryBackoffMs = def.Timeouts.RetryBackoffMs
	}
	if cfg.Signals.SmoothingAlpha == 0 {
		cfg.Signals.SmoothingAlpha = def.Signals.SmoothingAlpha
	}
	if cfg.Signals.InferenceDamping == 0 {
		cfg.Signals.InferenceDamping = def.Signals.InferenceDamping
	}
	if cfg.RateLimit.PerSecond == 0 {
		cfg.RateLimit.PerSecond = def.RateLimit.PerSecond
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.Weaviate.Scheme == "" {
		cfg.Weaviate.Scheme = def.Weaviate.Scheme
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KERNEL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("KERNEL_BADGER_PATH"); v != "" {
		cfg.BadgerPath = v
	}
	if v := os.Getenv("WEAVIATE_HOST"); v != "" {
		cfg.Weaviate.Host = v
	}
	if v := os.Getenv("WEAVIATE_SCHEME"); v != "" {
		cfg.Weaviate.Scheme = v
	}
	if v := os.Getenv("INFLUXDB_URL"); v != "" {
		cfg.Influx.URL = v
	}
	if v := os.Getenv("INFLUXDB_TOKEN"); v != "" {
		cfg.Influx.Token = v
	}
	if v := os.Getenv("INFLUXDB_ORG"); v != "" {
		cfg.Influx.Org = v
	}
	if v := os.Getenv("INFLUXDB_BUCKET"); v != "" {
		cfg.Influx.Bucket = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.MaxRepairs < 0 {
		return fmt.Errorf("max_repairs must be >= 0, got %d", c.MaxRepairs)
	}
	if c.Thresholds.SlowDownBelow > c.Thresholds.ClarifyBelow {
		return fmt.Errorf("slow_down_below (%.2f) must not exceed clarify_below (%.2f)",
			c.Thresholds.SlowDownBelow, c.Thresholds.ClarifyBelow)
	}
	for _, v := range []float64{
		c.Thresholds.SlowDownBelow, c.Thresholds.ClarifyBelow, c.Thresholds.ContradictionEscalation,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("threshold %.2f out of [0, 1]", v)
		}
	}
	if c.Signals.SmoothingAlpha <= 0 || c.Signals.SmoothingAlpha > 1 {
		return fmt.Errorf("smoothing_alpha must be in (0, 1], got %.2f", c.Signals.SmoothingAlpha)
	}
	if c.Signals.InferenceDamping <= 0 || c.Signals.InferenceDamping > 1 {
		return fmt.Errorf("inference_damping must be in (0, 1], got %.2f", c.Signals.InferenceDamping)
	}
	for role, refs := range c.Candidates {
		for _, ref := range refs {
			if ref == "" {
				return fmt.Errorf("empty candidate reference for role %q", role)
			}
		}
	}
	return nil
}
