// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/AleutianAI/CoherenceKernel/services/kernel/datatypes"
)

// Session holds everything the kernel remembers about one conversation.
//
// # Thread Safety
//
// turnMu serializes turn processing: concurrent turns for the same
// session queue on it in arrival order rather than failing. The inner
// mutex guards field access so read-only endpoints can observe a session
// while a turn is in flight.
type Session struct {
	// ID is the caller-chosen session identifier.
	ID string

	// CreatedAt is when the session object was first built.
	CreatedAt time.Time

	// turnMu serializes ProcessTurn per session.
	turnMu sync.Mutex

	mu           sync.RWMutex
	turnState    TurnState
	state        datatypes.InternalState
	conversation []datatypes.Message
	arguments    []datatypes.ArgumentRecord
	conceptGraph []datatypes.ConceptEdge
	history      []HistoryEntry
	turnCount    int
	lastTurnAt   time.Time
}

// NewSession creates a session with neutral internal state.
func NewSession(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		turnState: StateIdle,
		state:     *datatypes.NewInternalState(),
	}
}

// TurnState returns the current turn state.
func (s *Session) TurnState() TurnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turnState
}

func (s *Session) setTurnState(state TurnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnState = state
}

// State returns a copy of the internal state.
func (s *Session) State() datatypes.InternalState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(state datatypes.InternalState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// restoreState overwrites the internal state during rehydration.
func (s *Session) restoreState(state datatypes.InternalState) {
	s.setState(state)
}

// Conversation returns a copy of the chat history.
func (s *Session) Conversation() []datatypes.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]datatypes.Message, len(s.conversation))
	copy(out, s.conversation)
	return out
}

func (s *Session) appendExchange(input, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation = append(s.conversation,
		datatypes.UserMessage(input),
		datatypes.AssistantMessage(reply))
	s.turnCount++
	s.lastTurnAt = time.Now().UTC()
}

// Arguments returns a copy of the premise/conclusion trace.
func (s *Session) Arguments() []datatypes.ArgumentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]datatypes.ArgumentRecord, len(s.arguments))
	copy(out, s.arguments)
	return out
}

func (s *Session) recordArgument(record datatypes.ArgumentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arguments = append(s.arguments, record)
}

// ConceptGraph returns a copy of the accumulated concept edges.
func (s *Session) ConceptGraph() []datatypes.ConceptEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]datatypes.ConceptEdge, len(s.conceptGraph))
	copy(out, s.conceptGraph)
	return out
}

func (s *Session) mergeConceptGraph(edges []datatypes.InferenceEdge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := make(map[[2]string]bool, len(s.conceptGraph))
	for _, e := range s.conceptGraph {
		existing[[2]string{e.From, e.To}] = true
	}
	for _, e := range edges {
		key := [2]string{e.From, e.To}
		if existing[key] {
			continue
		}
		existing[key] = true
		s.conceptGraph = append(s.conceptGraph, e.ConceptEdge)
	}
}

// History returns a copy of the audit trail.
func (s *Session) History() []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) appendHistory(entry HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, entry)
}

// TurnCount returns the number of completed turns.
func (s *Session) TurnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turnCount
}

// LastTurnAt returns when the last turn completed; zero for a fresh
// session.
func (s *Session) LastTurnAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTurnAt
}

// Summary builds the wire representation for session listings.
func (s *Session) Summary() datatypes.SessionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary := datatypes.SessionSummary{
		SessionID:  s.ID,
		TurnCount:  s.turnCount,
		CreatedAt:  s.CreatedAt.Format(time.RFC3339),
		TrustTau:   s.state.TrustTau,
		Regulation: s.state.Regulation,
	}
	if !s.lastTurnAt.IsZero() {
		summary.LastTurnAt = s.lastTurnAt.Format(time.RFC3339)
	}
	return summary
}

// =============================================================================
// Session store
// =============================================================================

// SessionStore tracks live sessions.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type SessionStore interface {
	// GetOrCreate returns the session, creating it with neutral state
	// when unknown. The second return is true when a session was
	// created.
	GetOrCreate(sessionID string) (*Session, bool)

	// Get returns the session or ErrSessionNotFound.
	Get(sessionID string) (*Session, error)

	// List returns all sessions, ordered by ID.
	List() []*Session

	// Delete forgets the session.
	Delete(sessionID string)
}

// InMemorySessionStore is the default map-backed store.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

var _ SessionStore = (*InMemorySessionStore)(nil)

// NewInMemorySessionStore creates an empty store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]*Session)}
}

// GetOrCreate implements SessionStore.
func (s *InMemorySessionStore) GetOrCreate(sessionID string) (*Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return session, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok {
		return session, false
	}
	session = NewSession(sessionID)
	s.sessions[sessionID] = session
	return session, true
}

// Get implements SessionStore.
func (s *InMemorySessionStore) Get(sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// List implements SessionStore.
func (s *InMemorySessionStore) List() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Delete implements SessionStore.
func (s *InMemorySessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
