// Package session provides the process-local store mapping session ids to
// production state. It is the single source of truth for pipeline
// artifacts; the orchestrator guarantees that no two tool invocations for
// the same id run concurrently, so mutators never contend within a session.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lordpython/aisoulstudio/production"
)

// Sentinel errors for store operations.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
)

// Store maps session ids to production state. Safe for concurrent use
// across sessions; writes within one session are serialized by the caller.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*production.State
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*production.State),
	}
}

// Create registers a new session. The id must pass validation and must not
// already exist; session ids are never reused.
func (s *Store) Create(id string, initial *production.State) error {
	if err := production.ValidateSessionID(id); err != nil {
		return err
	}
	if initial == nil {
		initial = production.NewState(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; exists {
		return fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	s.sessions[id] = initial
	return nil
}

// Get returns the state for id.
func (s *Store) Get(id string) (*production.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return state, nil
}

// Update runs mutate against the state for id. The mutator executes under
// the store lock; callers keep it short and never call back into the store.
func (s *Store) Update(id string, mutate func(*production.State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	mutate(state)
	state.Touch()
	return nil
}

// Delete hard-removes a session. Deleting an unknown id is not an error.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Has reports whether a session exists.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// IDs returns the ids of all live sessions, in no particular order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}
