// Package sessionstore provides the durable, append-only conversation log
// backing the session cache. Backends share one contract: appends are
// ordered per session and loads return the full log.
package sessionstore

import (
	"context"
	"sync"

	"github.com/memtrail/memtrail/pkg/conversation"
)

// Store is the durable session log. Loading an unknown session returns an
// empty log, not an error; a session exists once something is appended.
type Store interface {
	Append(ctx context.Context, sessionID string, turns ...conversation.Turn) error
	Load(ctx context.Context, sessionID string) ([]conversation.Turn, error)
	Close() error
}

// MemoryStore keeps session logs in process memory. For tests and
// single-node development.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]conversation.Turn
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]conversation.Turn)}
}

// Append appends turns to a session log.
func (s *MemoryStore) Append(ctx context.Context, sessionID string, turns ...conversation.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], turns...)
	return nil
}

// Load returns a copy of the session log.
func (s *MemoryStore) Load(ctx context.Context, sessionID string) ([]conversation.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.sessions[sessionID]
	out := make([]conversation.Turn, len(log))
	copy(out, log)
	return out, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
