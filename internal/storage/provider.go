// Package storage defines the blob persistence contract used for archive
// staging.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound signals that no blob exists at the given path.
var ErrObjectNotFound = errors.New("object not found")

// Provider stores and retrieves opaque blobs. The upload handler stages
// archives through it so the ingestion runner can resolve references instead
// of carrying archive bytes through the queue.
type Provider interface {
	// PutObject writes data at path and returns a provider-specific URI.
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// GetObject reads the blob at path, or ErrObjectNotFound.
	GetObject(ctx context.Context, path string) ([]byte, error)
}
