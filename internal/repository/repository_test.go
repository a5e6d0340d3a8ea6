package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapmark/mapmark/internal/annotation"
	"github.com/mapmark/mapmark/internal/storage/memory"
)

var errDown = errors.New("host unreachable")

// failingBackend rejects every call, like an unreachable host process.
type failingBackend struct{}

func (failingBackend) Init() error  { return nil }
func (failingBackend) Close() error { return nil }
func (failingBackend) LoadMarkers(context.Context) ([]annotation.Annotation, error) {
	return nil, errDown
}
func (failingBackend) SaveMarker(context.Context, *annotation.Annotation) error { return errDown }
func (failingBackend) DeleteMarker(context.Context, string) error              { return errDown }

type auditCall struct {
	op, id string
	err    error
}

type recordingAuditor struct {
	mu    sync.Mutex
	calls []auditCall
}

func (a *recordingAuditor) Audit(_ context.Context, op, id string, _ time.Duration, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, auditCall{op: op, id: id, err: err})
}

func newMemoryRepo(t *testing.T, opts ...Option) *Repository {
	t.Helper()
	b := memory.New()
	require.NoError(t, b.Init())
	r, err := New(b, opts...)
	require.NoError(t, err)
	return r
}

func TestListAll_EmptyIsNotNil(t *testing.T) {
	r := newMemoryRepo(t)

	got, err := r.ListAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newMemoryRepo(t)

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	a := annotation.New("marker_1714557600000", "A", "B", annotation.Position{Latitude: 43.1, Longitude: 87.2}, now)
	require.NoError(t, r.Create(ctx, a))

	got, err := r.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Name)
	assert.Equal(t, "B", got[0].Description)
	assert.Equal(t, 43.1, got[0].Latitude)
	assert.Equal(t, 87.2, got[0].Longitude)
	assert.NotEmpty(t, got[0].ID)
	assert.NotEmpty(t, got[0].Timestamp)
}

func TestDeleteScenario(t *testing.T) {
	ctx := context.Background()
	r := newMemoryRepo(t)

	require.NoError(t, r.Create(ctx, annotation.Annotation{ID: "1", Name: "A", Description: "a"}))
	require.NoError(t, r.Create(ctx, annotation.Annotation{ID: "2", Name: "B", Description: "b"}))
	require.NoError(t, r.DeleteByID(ctx, "1"))

	got, err := r.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "B", got[0].Name)
}

func TestDeleteUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	r := newMemoryRepo(t)
	require.NoError(t, r.Create(ctx, annotation.Annotation{ID: "1"}))

	require.NoError(t, r.DeleteByID(ctx, "nope"))

	got, err := r.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestDeleteThenListNeverReturnsID(t *testing.T) {
	ctx := context.Background()
	r := newMemoryRepo(t)

	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		require.NoError(t, r.Create(ctx, annotation.Annotation{ID: id}))
	}
	for _, id := range ids {
		require.NoError(t, r.DeleteByID(ctx, id))
		got, err := r.ListAll(ctx)
		require.NoError(t, err)
		for _, a := range got {
			assert.NotEqual(t, id, a.ID)
		}
	}
}

func TestBackendFailureIsUnavailable(t *testing.T) {
	ctx := context.Background()
	r, err := New(failingBackend{})
	require.NoError(t, err)

	_, err = r.ListAll(ctx)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, err, errDown)

	err = r.Create(ctx, annotation.Annotation{ID: "1"})
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	err = r.DeleteByID(ctx, "1")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "delete 1")
}

func TestAuditor(t *testing.T) {
	ctx := context.Background()
	audit := &recordingAuditor{}
	r := newMemoryRepo(t, WithAuditor(audit))

	require.NoError(t, r.Create(ctx, annotation.Annotation{ID: "1"}))
	_, err := r.ListAll(ctx)
	require.NoError(t, err)
	require.NoError(t, r.DeleteByID(ctx, "1"))

	require.Len(t, audit.calls, 3)
	assert.Equal(t, auditCall{op: OpCreate, id: "1"}, audit.calls[0])
	assert.Equal(t, auditCall{op: OpList}, audit.calls[1])
	assert.Equal(t, auditCall{op: OpDelete, id: "1"}, audit.calls[2])

	failing, err := New(failingBackend{}, WithAuditor(audit))
	require.NoError(t, err)
	_ = failing.Create(ctx, annotation.Annotation{ID: "2"})
	require.Len(t, audit.calls, 4)
	assert.ErrorIs(t, audit.calls[3].err, ErrBackendUnavailable)
}
