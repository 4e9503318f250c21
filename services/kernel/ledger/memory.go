// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"context"
	"sync"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
)

// InMemoryStore keeps the ledger in process memory. Used for tests and
// lightweight deployments without a Badger path.
type InMemoryStore struct {
	mu        sync.RWMutex
	records   map[string][]datatypes.ContributionRecord
	snapshots map[string]Snapshot
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory ledger.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records:   make(map[string][]datatypes.ContributionRecord),
		snapshots: make(map[string]Snapshot),
	}
}

// AppendContributions implements Store.
func (s *InMemoryStore) AppendContributions(ctx context.Context, records []datatypes.ContributionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.SessionID] = append(s.records[r.SessionID], r)
	}
	return nil
}

// SaveSnapshot implements Store.
func (s *InMemoryStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.SessionID] = snap
	return nil
}

// Contributions implements Store.
func (s *InMemoryStore) Contributions(ctx context.Context, sessionID string) ([]datatypes.ContributionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.records[sessionID]
	out := make([]datatypes.ContributionRecord, len(records))
	copy(out, records)
	return out, nil
}

// LatestSnapshot implements Store.
func (s *InMemoryStore) LatestSnapshot(ctx context.Context, sessionID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &snap, nil
}

// DeleteSession implements Store.
func (s *InMemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, sessionID)
	delete(s.snapshots, sessionID)
	return nil
}

// Close implements Store.
func (s *InMemoryStore) Close() error {
	return nil
}
