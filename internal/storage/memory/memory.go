// Package memory implements storage.Backend with an in-process slice.
package memory

import (
	"context"
	"sync"

	"github.com/mapmark/mapmark/internal/annotation"
	"github.com/mapmark/mapmark/internal/storage"
)

// Backend stores annotations in memory; contents are lost on Close.
type Backend struct {
	mu      sync.RWMutex
	records []annotation.Annotation
}

// New creates a new memory backend
func New() *Backend {
	return &Backend{}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = nil
	return nil
}

// LoadMarkers returns a copy of every record in insertion order.
func (b *Backend) LoadMarkers(ctx context.Context) ([]annotation.Annotation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]annotation.Annotation, len(b.records))
	copy(out, b.records)
	return out, nil
}

// SaveMarker appends a record.
func (b *Backend) SaveMarker(ctx context.Context, a *annotation.Annotation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, *a)
	return nil
}

// DeleteMarker removes the first record with a matching id.
func (b *Backend) DeleteMarker(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records, _ = storage.RemoveFirst(b.records, id)
	return nil
}
