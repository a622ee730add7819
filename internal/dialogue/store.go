package dialogue

import (
	"context"
	"sync"
)

// Store persists chat id -> dialogue state. Operations on distinct keys do
// not interfere; operations on the same key are linearizable. An absent
// key reads as Idle, and putting Idle is equivalent to removal.
type Store interface {
	Get(ctx context.Context, chatID int64) (State, error)
	Put(ctx context.Context, chatID int64, state State) error
	Close() error
}

// MemoryStore is the map-backed Store used when no DB path is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[int64]State
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[int64]State)}
}

func (s *MemoryStore) Get(_ context.Context, chatID int64) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[chatID]
	if !ok {
		return Idle(), nil
	}
	return st, nil
}

func (s *MemoryStore) Put(_ context.Context, chatID int64, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.IsIdle() {
		delete(s.states, chatID)
		return nil
	}
	s.states[chatID] = state
	return nil
}

func (s *MemoryStore) Close() error { return nil }
