// Package registry defines the tracked-resource domain model and the
// persistence contracts shared by the ingestion, monitoring, and eviction
// components.
package registry

import (
	"time"

	"github.com/google/uuid"

	"github.com/resourcewatch/resourcewatch/internal/urlparse"
)

// Resource is a tracked URL together with its parsed components and
// availability bookkeeping.
type Resource struct {
	// ID is the registry primary key.
	ID int64
	// UUID is the opaque external identifier used in public references.
	UUID uuid.UUID
	// FullURL is the complete submitted URL; unique across the registry.
	FullURL string
	// Protocol, Domain, DomainZone, Path, Query mirror the parsed URL.
	Protocol   string
	Domain     string
	DomainZone string
	Path       string
	Query      []urlparse.Param
	// UnavailableCount counts consecutive failed checks; reset on success.
	UnavailableCount int
	// Screenshot optionally holds cached image bytes for the resource.
	Screenshot []byte
	// CreatedAt is when the resource entered the registry.
	CreatedAt time.Time
}

// NewResource parses rawURL and builds a Resource with a fresh external
// identifier. It returns urlparse.ErrInvalidURL for unusable input.
func NewResource(rawURL string) (Resource, error) {
	parts, err := urlparse.Parse(rawURL)
	if err != nil {
		return Resource{}, err
	}
	return Resource{
		UUID:       uuid.New(),
		FullURL:    rawURL,
		Protocol:   parts.Protocol,
		Domain:     parts.Domain,
		DomainZone: parts.DomainZone,
		Path:       parts.Path,
		Query:      parts.Query,
	}, nil
}

// StatusRecord is one liveness observation for a resource. Records are
// append-only; the newest one defines the resource's current availability.
type StatusRecord struct {
	ID         int64
	ResourceID int64
	// StatusCode is nil when no HTTP response was received.
	StatusCode  *int
	IsAvailable bool
	ObservedAt  time.Time
}

// EventKind classifies feed events.
type EventKind string

// Feed event kinds.
const (
	EventStatusChanged   EventKind = "status_changed"
	EventResourceAdded   EventKind = "resource_added"
	EventResourceDeleted EventKind = "resource_deleted"
	EventScreenshotAdded EventKind = "screenshot_added"
)

// FeedEvent records a notable state transition for a resource. Events are
// immutable history.
type FeedEvent struct {
	ID           int64
	Kind         EventKind
	ResourceID   int64
	ResourceUUID uuid.UUID
	OccurredAt   time.Time
}

// JobStatus is the lifecycle state of an ingestion job. Transitions are
// monotonic: pending -> in_process -> succeeded | failed.
type JobStatus string

// Ingestion job statuses.
const (
	JobPending   JobStatus = "pending"
	JobInProcess JobStatus = "in_process"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status allows no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// IngestionJob is the durable record of one bulk-ingestion request.
type IngestionJob struct {
	// ID identifies the job; issued by the upload handler per submission.
	ID uuid.UUID
	// Token keys the ephemeral progress snapshot for this job.
	Token  uuid.UUID
	Status JobStatus
	// Total is the number of lines in the archive; Processed never exceeds it.
	Total     int
	Processed int
	// ErrorCount and RejectedURLs describe the lines that failed validation,
	// in archive order.
	ErrorCount   int
	RejectedURLs []string
	CreatedAt    time.Time
	FinishedAt   *time.Time
}

// Observation is one monitor check outcome to be applied to a resource.
type Observation struct {
	// StatusCode is nil when the check produced no HTTP response.
	StatusCode  *int
	IsAvailable bool
	ObservedAt  time.Time
}

// ListFilter narrows a registry listing. Zero values mean "no constraint".
type ListFilter struct {
	DomainZone string
	UUID       *uuid.UUID
	Available  *bool
	Limit      int
	Offset     int
}
