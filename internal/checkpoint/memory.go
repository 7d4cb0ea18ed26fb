package checkpoint

import (
	"context"
	"sync"
)

// MemoryStore keeps encoded snapshots in memory. Used by tests and the HTTP server
// when no durable backend is configured.
type MemoryStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	saves int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Save stores an encoded copy of the snapshot.
func (s *MemoryStore) Save(_ context.Context, snap *Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[snap.RunID] = data
	s.saves++
	return nil
}

// Load decodes the stored snapshot, or returns nil, nil.
func (s *MemoryStore) Load(_ context.Context, runID string) (*Snapshot, error) {
	s.mu.Lock()
	data, ok := s.data[runID]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return Decode(runID, data)
}

// Saves returns how many snapshots have been written.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
