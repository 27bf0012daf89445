// Package memory provides an in-process progress store for development and
// tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/resourcewatch/resourcewatch/internal/progress"
)

// Store keeps snapshots in a map guarded by a mutex.
type Store struct {
	mu    sync.RWMutex
	snaps map[uuid.UUID]progress.Snapshot
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{snaps: make(map[uuid.UUID]progress.Snapshot)}
}

// Set overwrites the snapshot for the token.
func (s *Store) Set(_ context.Context, token uuid.UUID, snap progress.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.RejectedURLs = append([]string(nil), snap.RejectedURLs...)
	s.snaps[token] = snap
	return nil
}

// Get returns the snapshot for the token.
func (s *Store) Get(_ context.Context, token uuid.UUID) (progress.Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[token]
	return snap, ok, nil
}
