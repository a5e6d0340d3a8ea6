package storage

import (
	"context"
	"errors"

	"github.com/mapmark/mapmark/internal/annotation"
)

// ErrNotInitialized is returned when a backend is used before Init.
var ErrNotInitialized = errors.New("storage backend not initialized")

// Backend is the interface all storage implementations must satisfy.
// Records are returned in insertion order.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	LoadMarkers(ctx context.Context) ([]annotation.Annotation, error)
	SaveMarker(ctx context.Context, a *annotation.Annotation) error
	// DeleteMarker removes the first record with the given id. Unknown ids are not an error.
	DeleteMarker(ctx context.Context, id string) error
}

// Watchable is an optional interface for backends whose data can change
// underneath them, e.g. a folder shared with other processes.
type Watchable interface {
	OnExternalChange(fn func())
}

// Types accepted by the storage.type configuration key.
const (
	TypeLocal     = "local"
	TypeWebSocket = "websocket"
	TypeMemory    = "memory"
	TypeFolder    = "folder"
	TypePostgres  = "postgres"
)

// RemoveFirst returns records without the first entry whose ID is id.
func RemoveFirst(records []annotation.Annotation, id string) ([]annotation.Annotation, bool) {
	for i := range records {
		if records[i].ID == id {
			out := make([]annotation.Annotation, 0, len(records)-1)
			out = append(out, records[:i]...)
			return append(out, records[i+1:]...), true
		}
	}
	return records, false
}
