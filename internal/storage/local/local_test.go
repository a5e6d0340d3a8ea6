package localstorage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapmark/mapmark/internal/annotation"
	"github.com/mapmark/mapmark/internal/storage"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

func newTestBackend(t *testing.T, cfg Config) *Backend {
	t.Helper()
	b := New(cfg)
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestNew_DefaultSlot(t *testing.T) {
	b := New(Config{})
	assert.Equal(t, DefaultSlot, b.cfg.Slot)
}

func TestUseBeforeInit(t *testing.T) {
	b := New(Config{})
	ctx := context.Background()

	_, err := b.LoadMarkers(ctx)
	assert.ErrorIs(t, err, storage.ErrNotInitialized)
	assert.ErrorIs(t, b.SaveMarker(ctx, &annotation.Annotation{ID: "1"}), storage.ErrNotInitialized)
	assert.ErrorIs(t, b.DeleteMarker(ctx, "1"), storage.ErrNotInitialized)
	assert.NoError(t, b.Close())
}

func TestEmptySlot(t *testing.T) {
	b := newTestBackend(t, Config{})

	got, err := b.LoadMarkers(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSaveAndDelete(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t, Config{})

	a := annotation.Annotation{ID: "1", Name: "A", Description: "B", Person: "A", Latitude: 43.1, Longitude: 87.2, Timestamp: "2026-01-01T00:00:00.000Z", Image: "/media/a"}
	require.NoError(t, b.SaveMarker(ctx, &a))
	require.NoError(t, b.SaveMarker(ctx, &annotation.Annotation{ID: "2", Name: "C", Description: "D"}))

	got, err := b.LoadMarkers(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a, got[0])
	assert.Equal(t, "2", got[1].ID)

	require.NoError(t, b.DeleteMarker(ctx, "1"))
	require.NoError(t, b.DeleteMarker(ctx, "unknown"))

	got, err = b.LoadMarkers(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
}

func TestSlotsAreIndependent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local.db")

	first := newTestBackend(t, Config{Path: path, Slot: "first"})
	require.NoError(t, first.SaveMarker(ctx, &annotation.Annotation{ID: "1"}))
	require.NoError(t, first.Close())

	second := newTestBackend(t, Config{Path: path, Slot: "second"})
	got, err := second.LoadMarkers(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local.db")

	b := newTestBackend(t, Config{Path: path})
	require.NoError(t, b.SaveMarker(ctx, &annotation.Annotation{ID: "1", Name: "kept"}))
	require.NoError(t, b.Close())

	reopened := newTestBackend(t, Config{Path: path})
	got, err := reopened.LoadMarkers(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].Name)
}
