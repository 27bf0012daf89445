package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resourcewatch/resourcewatch/internal/progress"
)

func TestSetOverwritesAndGetReturnsLatest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()
	token := uuid.New()

	_, ok, err := store.Get(ctx, token)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, token, progress.Snapshot{Total: 10, Processed: 1}))
	require.NoError(t, store.Set(ctx, token, progress.Snapshot{
		Total:        10,
		Processed:    2,
		ErrorCount:   1,
		RejectedURLs: []string{"bad"},
		UpdatedAt:    time.Now().UTC(),
	}))

	snap, ok, err := store.Get(ctx, token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, snap.Processed)
	assert.Equal(t, []string{"bad"}, snap.RejectedURLs)
}

func TestTokensAreIsolated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	a, b := uuid.New(), uuid.New()
	require.NoError(t, store.Set(ctx, a, progress.Snapshot{Total: 1}))

	_, ok, err := store.Get(ctx, b)
	require.NoError(t, err)
	assert.False(t, ok)
}
