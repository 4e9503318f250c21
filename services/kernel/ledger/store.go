// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ledger persists contribution records and per-turn internal
// state snapshots. The ledger is append-only: records are written once
// and never mutated.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
)

// ErrNotFound is returned when a session has no persisted data.
var ErrNotFound = errors.New("ledger: not found")

// Snapshot is one post-turn internal state capture.
type Snapshot struct {
	SessionID string                  `json:"session_id"`
	TurnID    string                  `json:"turn_id"`
	State     datatypes.InternalState `json:"state"`
	Timestamp time.Time               `json:"timestamp"`
}

// Store is the persistence boundary for the contribution ledger.
//
// # Thread Safety
//
// Implementations must be safe for concurrent writers across sessions.
type Store interface {
	// AppendContributions appends the turn's attempt records.
	AppendContributions(ctx context.Context, records []datatypes.ContributionRecord) error

	// SaveSnapshot stores the post-turn state; the newest snapshot per
	// session must stay retrievable.
	SaveSnapshot(ctx context.Context, snap Snapshot) error

	// Contributions returns every record for a session in append order.
	// A session with no records returns an empty slice, not an error.
	Contributions(ctx context.Context, sessionID string) ([]datatypes.ContributionRecord, error)

	// LatestSnapshot returns the most recent snapshot for a session, or
	// ErrNotFound.
	LatestSnapshot(ctx context.Context, sessionID string) (*Snapshot, error)

	// DeleteSession removes all persisted data for a session.
	DeleteSession(ctx context.Context, sessionID string) error

	// Close releases backing resources.
	Close() error
}
