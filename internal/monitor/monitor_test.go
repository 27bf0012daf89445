package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resourcewatch/resourcewatch/internal/feed"
	"github.com/resourcewatch/resourcewatch/internal/registry"
	registrymem "github.com/resourcewatch/resourcewatch/internal/registry/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func addResource(t *testing.T, store *registrymem.Store, rawURL string) registry.Resource {
	t.Helper()

	res, err := registry.NewResource(rawURL)
	require.NoError(t, err)
	require.NoError(t, store.Insert(context.Background(), &res))
	return res
}

func TestHTTPCheckerClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		available bool
	}{
		{"ok", http.StatusOK, true},
		{"redirect", 399, true},
		{"client error", http.StatusBadRequest, false},
		{"not found", http.StatusNotFound, false},
		{"server error", http.StatusInternalServerError, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			checker := NewHTTPChecker(time.Second, "resourcewatch-test")
			result := checker.Check(context.Background(), srv.URL)
			require.NotNil(t, result.StatusCode)
			assert.Equal(t, tc.status, *result.StatusCode)
			assert.Equal(t, tc.available, result.IsAvailable)
		})
	}
}

func TestHTTPCheckerNetworkFailureSentinel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	checker := NewHTTPChecker(time.Second, "")
	result := checker.Check(context.Background(), srv.URL)
	require.NotNil(t, result.StatusCode)
	assert.Equal(t, http.StatusNotFound, *result.StatusCode)
	assert.False(t, result.IsAvailable)
}

func TestSweepRecordsObservations(t *testing.T) {
	t.Parallel()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	store := registrymem.NewStore()
	upRes := addResource(t, store, up.URL+"/healthy")
	downRes := addResource(t, store, down.URL+"/broken")

	ring := feed.NewRing(8)
	clk := fixedClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	mon := New(store, NewHTTPChecker(time.Second, ""), ring, clk, Config{MaxConcurrent: 2}, nil)

	require.NoError(t, mon.Sweep(context.Background()))

	upStatus, err := store.LatestStatus(context.Background(), upRes.ID)
	require.NoError(t, err)
	assert.True(t, upStatus.IsAvailable)
	require.NotNil(t, upStatus.StatusCode)
	assert.Equal(t, http.StatusOK, *upStatus.StatusCode)

	downStatus, err := store.LatestStatus(context.Background(), downRes.ID)
	require.NoError(t, err)
	assert.False(t, downStatus.IsAvailable)

	got, err := store.GetByUUID(context.Background(), downRes.UUID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UnavailableCount)

	// First observation for each resource flips it out of "unknown".
	events := ring.Recent(0)
	assert.Len(t, events, 2)
}

func TestSweepCounterResetOnRecovery(t *testing.T) {
	t.Parallel()

	healthy := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if healthy {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := registrymem.NewStore()
	res := addResource(t, store, srv.URL+"/page")

	ring := feed.NewRing(8)
	clk := fixedClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	mon := New(store, NewHTTPChecker(time.Second, ""), ring, clk, Config{}, nil)

	healthy = false
	require.NoError(t, mon.Sweep(context.Background()))
	require.NoError(t, mon.Sweep(context.Background()))

	got, err := store.GetByUUID(context.Background(), res.UUID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.UnavailableCount)

	healthy = true
	require.NoError(t, mon.Sweep(context.Background()))

	got, err = store.GetByUUID(context.Background(), res.UUID)
	require.NoError(t, err)
	assert.Zero(t, got.UnavailableCount)

	// unknown->unavailable, then unavailable->available.
	kinds := 0
	for _, ev := range ring.Recent(0) {
		if ev.Kind == registry.EventStatusChanged {
			kinds++
		}
	}
	assert.Equal(t, 2, kinds)
}

func TestSweepIsolatesFailures(t *testing.T) {
	t.Parallel()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	store := registrymem.NewStore()
	dead := addResource(t, store, "http://127.0.0.1:1/unreachable")
	ok := addResource(t, store, up.URL+"/fine")

	clk := fixedClock{now: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	mon := New(store, NewHTTPChecker(time.Second, ""), nil, clk, Config{MaxConcurrent: 1}, nil)

	require.NoError(t, mon.Sweep(context.Background()))

	okStatus, err := store.LatestStatus(context.Background(), ok.ID)
	require.NoError(t, err)
	assert.True(t, okStatus.IsAvailable)

	deadStatus, err := store.LatestStatus(context.Background(), dead.ID)
	require.NoError(t, err)
	assert.False(t, deadStatus.IsAvailable)
	require.NotNil(t, deadStatus.StatusCode)
	assert.Equal(t, http.StatusNotFound, *deadStatus.StatusCode)
}
