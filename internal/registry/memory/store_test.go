package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resourcewatch/resourcewatch/internal/registry"
)

func mustUUID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return id
}

func newResource(t *testing.T, rawURL string) registry.Resource {
	t.Helper()
	r, err := registry.NewResource(rawURL)
	require.NoError(t, err)
	return r
}

func TestInsertRejectsDuplicateURL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	first := newResource(t, "https://a.com/x")
	require.NoError(t, store.Insert(ctx, &first))
	assert.NotZero(t, first.ID)

	second := newResource(t, "https://a.com/x")
	err := store.Insert(ctx, &second)
	require.ErrorIs(t, err, registry.ErrDuplicateResource)
}

func TestRecordObservationCounterAndEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	r := newResource(t, "https://a.com/x")
	require.NoError(t, store.Insert(ctx, &r))

	code := 200
	now := time.Now().UTC()

	// First observation: no previous record, availability is a change.
	changed, err := store.RecordObservation(ctx, r.ID, registry.Observation{
		StatusCode: &code, IsAvailable: true, ObservedAt: now,
	})
	require.NoError(t, err)
	assert.True(t, changed)

	// Same availability again: no change, counter stays at zero.
	changed, err = store.RecordObservation(ctx, r.ID, registry.Observation{
		StatusCode: &code, IsAvailable: true, ObservedAt: now.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, changed)

	// Flip to unavailable: change recorded, counter increments.
	bad := 503
	changed, err = store.RecordObservation(ctx, r.ID, registry.Observation{
		StatusCode: &bad, IsAvailable: false, ObservedAt: now.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := store.FindByURL(ctx, "https://a.com/x")
	require.NoError(t, err)
	assert.Equal(t, 1, got.UnavailableCount)

	events := store.Events()
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, registry.EventStatusChanged, ev.Kind)
	}
	assert.Len(t, store.StatusHistory(r.ID), 3)
}

func TestDeleteCascades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	r := newResource(t, "https://gone.com")
	require.NoError(t, store.Insert(ctx, &r))
	_, err := store.RecordObservation(ctx, r.ID, registry.Observation{
		IsAvailable: false, ObservedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, r.ID))

	_, err = store.FindByURL(ctx, "https://gone.com")
	require.ErrorIs(t, err, registry.ErrNotFound)
	assert.Empty(t, store.StatusHistory(r.ID))
	assert.Empty(t, store.Events())
	require.ErrorIs(t, store.Delete(ctx, r.ID), registry.ErrNotFound)
}

func TestListFilters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	com := newResource(t, "https://a.com/1")
	org := newResource(t, "https://b.org/2")
	require.NoError(t, store.Insert(ctx, &com))
	require.NoError(t, store.Insert(ctx, &org))

	byZone, err := store.List(ctx, registry.ListFilter{DomainZone: "org"})
	require.NoError(t, err)
	require.Len(t, byZone, 1)
	assert.Equal(t, "https://b.org/2", byZone[0].FullURL)

	available := true
	_, err = store.RecordObservation(ctx, com.ID, registry.Observation{
		IsAvailable: true, ObservedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	byAvail, err := store.List(ctx, registry.ListFilter{Available: &available})
	require.NoError(t, err)
	require.Len(t, byAvail, 1)
	assert.Equal(t, com.UUID, byAvail[0].UUID)
}

func TestExistingURLs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	r := newResource(t, "https://known.com")
	require.NoError(t, store.Insert(ctx, &r))

	existing, err := store.ExistingURLs(ctx, []string{"https://known.com", "https://new.com"})
	require.NoError(t, err)
	assert.Contains(t, existing, "https://known.com")
	assert.NotContains(t, existing, "https://new.com")
}

func TestListUnavailableThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	flaky := newResource(t, "https://flaky.com")
	solid := newResource(t, "https://solid.com")
	require.NoError(t, store.Insert(ctx, &flaky))
	require.NoError(t, store.Insert(ctx, &solid))

	for i := 0; i < 3; i++ {
		_, err := store.RecordObservation(ctx, flaky.ID, registry.Observation{
			IsAvailable: false, ObservedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	unavailable, err := store.ListUnavailable(ctx, 3)
	require.NoError(t, err)
	require.Len(t, unavailable, 1)
	assert.Equal(t, flaky.UUID, unavailable[0].UUID)
}

func TestJobLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	job := registry.IngestionJob{
		ID:     mustUUID(t),
		Token:  mustUUID(t),
		Status: registry.JobPending,
	}
	require.NoError(t, store.CreateJob(ctx, &job))

	job.Status = registry.JobInProcess
	job.Total = 10
	require.NoError(t, store.SaveJob(ctx, job))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, registry.JobInProcess, got.Status)
	assert.Equal(t, 10, got.Total)
}
