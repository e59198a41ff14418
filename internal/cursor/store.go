// Package cursor tracks continuation tokens for paginated GET requests.
// State is keyed by a request fingerprint that ignores the pagination
// parameter itself, so successive pages of one request share one entry.
package cursor

import (
	"context"
	"sync"
)

// State is the continuation state of one request fingerprint.
type State struct {
	Token   string `json:"token,omitempty"`
	HasMore bool   `json:"hasMore"`
	Param   string `json:"param"`
}

// Store holds pagination state. Implementations must be safe for concurrent
// use because entity requests are issued in parallel.
type Store interface {
	// Get returns the state for key. The boolean is false when no state exists.
	Get(ctx context.Context, key string) (State, bool, error)

	// Set stores state for key.
	Set(ctx context.Context, key string, state State) error

	// Delete removes the state for key.
	Delete(ctx context.Context, key string) error

	// Reset drops every entry. It is called whenever the active
	// configuration is replaced.
	Reset(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// MemoryStore keeps pagination state in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]State)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.entries[key]
	return state, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, state State) error {
	s.mu.Lock()
	s.entries[key] = state
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]State)
	s.mu.Unlock()
	return nil
}

// Len returns the number of tracked fingerprints.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) Close() error { return nil }
