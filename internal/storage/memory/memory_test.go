package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapmark/mapmark/internal/annotation"
	"github.com/mapmark/mapmark/internal/storage"
)

// Verify Backend implements storage.Backend interface
var _ storage.Backend = (*Backend)(nil)

func TestSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.Init())
	defer b.Close()

	got, err := b.LoadMarkers(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)

	require.NoError(t, b.SaveMarker(ctx, &annotation.Annotation{ID: "1", Name: "A"}))
	require.NoError(t, b.SaveMarker(ctx, &annotation.Annotation{ID: "2", Name: "B"}))

	got, err = b.LoadMarkers(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)

	require.NoError(t, b.DeleteMarker(ctx, "1"))
	require.NoError(t, b.DeleteMarker(ctx, "missing"))

	got, err = b.LoadMarkers(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "B", got[0].Name)
}

func TestLoadMarkers_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	b := New()
	require.NoError(t, b.SaveMarker(ctx, &annotation.Annotation{ID: "1", Name: "A"}))

	got, err := b.LoadMarkers(ctx)
	require.NoError(t, err)
	got[0].Name = "mutated"

	again, err := b.LoadMarkers(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", again[0].Name)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := New()
	_, err := b.LoadMarkers(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, b.SaveMarker(ctx, &annotation.Annotation{ID: "1"}), context.Canceled)
	assert.ErrorIs(t, b.DeleteMarker(ctx, "1"), context.Canceled)
}
