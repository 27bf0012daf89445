package local

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resourcewatch/resourcewatch/internal/storage"
)

func TestPutAndGetRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	uri, err := store.PutObject(ctx, "archives/job-1.zip", "application/zip", bytes.NewReader([]byte("payload")))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"))

	payload, err := store.GetObject(ctx, "archives/job-1.zip")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), payload)
}

func TestGetMissingObject(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.GetObject(context.Background(), "nope.zip")
	require.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestRejectsPathTraversal(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.zip", "", bytes.NewReader(nil))
	require.Error(t, err)
}

func TestRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}
