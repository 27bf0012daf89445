package registry

import (
	"context"

	"github.com/google/uuid"
)

// Store is the durable registry of resources, their status history, feed
// events, and ingestion job records. Implementations must make every method
// transactional at single-entity granularity; RecordObservation and Delete
// span the entity and its owned rows inside one transaction.
type Store interface {
	// Insert adds a new resource and fills in its ID. A URL collision
	// surfaces ErrDuplicateResource.
	Insert(ctx context.Context, r *Resource) error
	// BulkInsert persists a batch of resources in a single operation. The
	// caller is expected to have deduplicated against the registry first; a
	// uniqueness violation here fails the whole batch.
	BulkInsert(ctx context.Context, rs []Resource) error
	// FindByURL fetches a resource by its full URL or returns ErrNotFound.
	FindByURL(ctx context.Context, fullURL string) (Resource, error)
	// GetByUUID fetches a resource by external identifier or ErrNotFound.
	GetByUUID(ctx context.Context, id uuid.UUID) (Resource, error)
	// List returns resources matching the filter, newest first.
	List(ctx context.Context, f ListFilter) ([]Resource, error)
	// ExistingURLs reports which of the given URLs are already registered.
	ExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error)
	// Delete removes a resource together with its status records and feed
	// events. Missing resources surface ErrNotFound.
	Delete(ctx context.Context, resourceID int64) error
	// SetScreenshot stores image bytes on the resource.
	SetScreenshot(ctx context.Context, id uuid.UUID, image []byte) error

	// RecordObservation applies one sweep observation atomically: it appends
	// the status record, resets or increments the unavailability counter, and
	// appends a status_changed feed event when availability flipped versus
	// the previous record. An absent previous record counts as "unknown",
	// which any concrete availability differs from. It reports whether the
	// availability changed.
	RecordObservation(ctx context.Context, resourceID int64, obs Observation) (bool, error)
	// LatestStatus returns the newest status record for the resource, or
	// ErrNotFound when none has been observed yet.
	LatestStatus(ctx context.Context, resourceID int64) (StatusRecord, error)
	// ListUnavailable returns resources whose unavailability counter has
	// reached the threshold.
	ListUnavailable(ctx context.Context, threshold int) ([]Resource, error)

	// AppendEvent records a feed event.
	AppendEvent(ctx context.Context, ev FeedEvent) error

	// CreateJob persists a fresh ingestion job record.
	CreateJob(ctx context.Context, job *IngestionJob) error
	// GetJob loads an ingestion job or returns ErrNotFound.
	GetJob(ctx context.Context, id uuid.UUID) (IngestionJob, error)
	// SaveJob overwrites the mutable fields of an ingestion job.
	SaveJob(ctx context.Context, job IngestionJob) error
}
