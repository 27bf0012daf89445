// Package memory provides an in-memory blob store for development and tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/resourcewatch/resourcewatch/internal/storage"
)

// BlobStore keeps blobs in a map guarded by a mutex.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// New constructs an empty BlobStore.
func New() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

// PutObject stores the blob under path and returns a mem:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	payload, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read blob data: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[path] = payload
	return "mem://" + path, nil
}

// GetObject returns the blob stored under path.
func (s *BlobStore) GetObject(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	payload, ok := s.blobs[path]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return append([]byte(nil), payload...), nil
}
