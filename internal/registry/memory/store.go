// Package memory provides an in-memory registry store for development and
// tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/resourcewatch/resourcewatch/internal/registry"
	"github.com/resourcewatch/resourcewatch/internal/urlparse"
)

// Store keeps the whole registry in process memory. It is safe for
// concurrent use.
type Store struct {
	mu sync.Mutex

	nextResourceID int64
	nextStatusID   int64
	nextEventID    int64

	resources map[int64]registry.Resource
	byURL     map[string]int64
	statuses  map[int64][]registry.StatusRecord
	events    []registry.FeedEvent
	jobs      map[uuid.UUID]registry.IngestionJob
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		resources: make(map[int64]registry.Resource),
		byURL:     make(map[string]int64),
		statuses:  make(map[int64][]registry.StatusRecord),
		jobs:      make(map[uuid.UUID]registry.IngestionJob),
	}
}

// Insert adds a resource, assigning its ID.
func (s *Store) Insert(_ context.Context, r *registry.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byURL[r.FullURL]; exists {
		return registry.ErrDuplicateResource
	}
	s.nextResourceID++
	r.ID = s.nextResourceID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.resources[r.ID] = cloneResource(*r)
	s.byURL[r.FullURL] = r.ID
	return nil
}

// BulkInsert persists the batch, failing wholesale on any URL collision.
func (s *Store) BulkInsert(_ context.Context, rs []registry.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rs {
		if _, exists := s.byURL[r.FullURL]; exists {
			return registry.ErrDuplicateResource
		}
	}
	now := time.Now().UTC()
	for _, r := range rs {
		s.nextResourceID++
		r.ID = s.nextResourceID
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		s.resources[r.ID] = cloneResource(r)
		s.byURL[r.FullURL] = r.ID
	}
	return nil
}

// FindByURL fetches a resource by full URL.
func (s *Store) FindByURL(_ context.Context, fullURL string) (registry.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byURL[fullURL]
	if !ok {
		return registry.Resource{}, registry.ErrNotFound
	}
	return cloneResource(s.resources[id]), nil
}

// GetByUUID fetches a resource by external identifier.
func (s *Store) GetByUUID(_ context.Context, id uuid.UUID) (registry.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.resources {
		if r.UUID == id {
			return cloneResource(r), nil
		}
	}
	return registry.Resource{}, registry.ErrNotFound
}

// List returns resources matching the filter, newest first.
func (s *Store) List(_ context.Context, f registry.ListFilter) ([]registry.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []registry.Resource
	for _, r := range s.resources {
		if f.DomainZone != "" && r.DomainZone != f.DomainZone {
			continue
		}
		if f.UUID != nil && r.UUID != *f.UUID {
			continue
		}
		if f.Available != nil {
			latest, ok := s.latestStatusLocked(r.ID)
			if !ok || latest.IsAvailable != *f.Available {
				continue
			}
		}
		out = append(out, cloneResource(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ExistingURLs reports which of the given URLs are registered.
func (s *Store) ExistingURLs(_ context.Context, urls []string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]struct{})
	for _, u := range urls {
		if _, ok := s.byURL[u]; ok {
			existing[u] = struct{}{}
		}
	}
	return existing, nil
}

// Delete removes the resource and everything it owns.
func (s *Store) Delete(_ context.Context, resourceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resources[resourceID]
	if !ok {
		return registry.ErrNotFound
	}
	delete(s.resources, resourceID)
	delete(s.byURL, r.FullURL)
	delete(s.statuses, resourceID)

	kept := s.events[:0]
	for _, ev := range s.events {
		if ev.ResourceID != resourceID {
			kept = append(kept, ev)
		}
	}
	s.events = kept
	return nil
}

// SetScreenshot stores image bytes on the resource.
func (s *Store) SetScreenshot(_ context.Context, id uuid.UUID, image []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for rid, r := range s.resources {
		if r.UUID == id {
			r.Screenshot = append([]byte(nil), image...)
			s.resources[rid] = r
			return nil
		}
	}
	return registry.ErrNotFound
}

// RecordObservation applies one check outcome atomically.
func (s *Store) RecordObservation(
	_ context.Context,
	resourceID int64,
	obs registry.Observation,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resources[resourceID]
	if !ok {
		return false, registry.ErrNotFound
	}

	prev, hasPrev := s.latestStatusLocked(resourceID)
	changed := !hasPrev || prev.IsAvailable != obs.IsAvailable

	s.nextStatusID++
	rec := registry.StatusRecord{
		ID:          s.nextStatusID,
		ResourceID:  resourceID,
		IsAvailable: obs.IsAvailable,
		ObservedAt:  obs.ObservedAt,
	}
	if obs.StatusCode != nil {
		code := *obs.StatusCode
		rec.StatusCode = &code
	}
	s.statuses[resourceID] = append(s.statuses[resourceID], rec)

	if obs.IsAvailable {
		r.UnavailableCount = 0
	} else {
		r.UnavailableCount++
	}
	s.resources[resourceID] = r

	if changed {
		s.nextEventID++
		s.events = append(s.events, registry.FeedEvent{
			ID:           s.nextEventID,
			Kind:         registry.EventStatusChanged,
			ResourceID:   resourceID,
			ResourceUUID: r.UUID,
			OccurredAt:   obs.ObservedAt,
		})
	}
	return changed, nil
}

// LatestStatus returns the newest status record for the resource.
func (s *Store) LatestStatus(_ context.Context, resourceID int64) (registry.StatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.latestStatusLocked(resourceID)
	if !ok {
		return registry.StatusRecord{}, registry.ErrNotFound
	}
	return rec, nil
}

// ListUnavailable returns resources whose counter reached the threshold.
func (s *Store) ListUnavailable(_ context.Context, threshold int) ([]registry.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []registry.Resource
	for _, r := range s.resources {
		if r.UnavailableCount >= threshold {
			out = append(out, cloneResource(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AppendEvent records a feed event.
func (s *Store) AppendEvent(_ context.Context, ev registry.FeedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextEventID++
	ev.ID = s.nextEventID
	s.events = append(s.events, ev)
	return nil
}

// CreateJob persists a fresh ingestion job.
func (s *Store) CreateJob(_ context.Context, job *registry.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	s.jobs[job.ID] = cloneJob(*job)
	return nil
}

// GetJob loads an ingestion job.
func (s *Store) GetJob(_ context.Context, id uuid.UUID) (registry.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return registry.IngestionJob{}, registry.ErrNotFound
	}
	return cloneJob(job), nil
}

// SaveJob overwrites the job record.
func (s *Store) SaveJob(_ context.Context, job registry.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return registry.ErrNotFound
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// StatusHistory returns all observations for a resource, oldest first. Test
// helper; not part of registry.Store.
func (s *Store) StatusHistory(resourceID int64) []registry.StatusRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]registry.StatusRecord(nil), s.statuses[resourceID]...)
}

// Events returns all recorded feed events, oldest first. Test helper.
func (s *Store) Events() []registry.FeedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]registry.FeedEvent(nil), s.events...)
}

func (s *Store) latestStatusLocked(resourceID int64) (registry.StatusRecord, bool) {
	recs := s.statuses[resourceID]
	if len(recs) == 0 {
		return registry.StatusRecord{}, false
	}
	return recs[len(recs)-1], true
}

func cloneResource(r registry.Resource) registry.Resource {
	r.Query = append([]urlparse.Param(nil), r.Query...)
	r.Screenshot = append([]byte(nil), r.Screenshot...)
	return r
}

func cloneJob(job registry.IngestionJob) registry.IngestionJob {
	job.RejectedURLs = append([]string(nil), job.RejectedURLs...)
	return job
}
