// Package progress defines the ephemeral per-job progress snapshot and the
// store contract backing it.
package progress

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Snapshot is a point-in-time projection of an in-flight ingestion job's
// counters. It is overwritten on every processed line and carries no
// durability guarantee; once the job reaches a terminal status the durable
// job record is authoritative instead.
type Snapshot struct {
	Total        int       `json:"total"`
	Processed    int       `json:"processed"`
	ErrorCount   int       `json:"error_count"`
	RejectedURLs []string  `json:"rejected_urls,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store holds snapshots keyed by a job's correlation token. Each token is
// written by exactly one runner, so implementations need no write
// coordination beyond key isolation.
type Store interface {
	// Set overwrites the snapshot for the token.
	Set(ctx context.Context, token uuid.UUID, snap Snapshot) error
	// Get returns the snapshot for the token; ok is false when the store has
	// no value (never written, expired, or lost on restart).
	Get(ctx context.Context, token uuid.UUID) (Snapshot, bool, error)
}
