package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DirStore keeps media files in a local directory, with a JSON metadata
// file next to each object.
type DirStore struct {
	dir   string
	mutex sync.RWMutex
	now   func() time.Time
}

// NewDirStore creates the directory if needed.
func NewDirStore(dir string) (*DirStore, error) {
	if dir == "" {
		return nil, errors.New("media dir not configured")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media directory %s: %w", dir, err)
	}
	return &DirStore{dir: dir, now: time.Now}, nil
}

func (s *DirStore) dataPath(key string) string {
	return filepath.Join(s.dir, key)
}

func (s *DirStore) metaPath(key string) string {
	return filepath.Join(s.dir, key+".meta.json")
}

// Put stores data under a fresh key.
func (s *DirStore) Put(ctx context.Context, data []byte, filename, contentType string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	obj, err := NewObject(data, filename, contentType, s.now())
	if err != nil {
		return Object{}, err
	}

	meta, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return Object{}, fmt.Errorf("failed to encode media metadata: %w", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := os.WriteFile(s.dataPath(obj.Key), data, 0644); err != nil {
		return Object{}, fmt.Errorf("failed to save media: %w", err)
	}
	if err := os.WriteFile(s.metaPath(obj.Key), meta, 0644); err != nil {
		_ = os.Remove(s.dataPath(obj.Key))
		return Object{}, fmt.Errorf("failed to save media metadata: %w", err)
	}
	return obj, nil
}

// Get loads an object and its metadata.
func (s *DirStore) Get(ctx context.Context, key string) ([]byte, Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, Object{}, err
	}
	if !ValidKey(key) {
		return nil, Object{}, fmt.Errorf("%q: %w", key, ErrInvalidKey)
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	meta, err := os.ReadFile(s.metaPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, Object{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, Object{}, fmt.Errorf("failed to load media metadata: %w", err)
	}
	var obj Object
	if err := json.Unmarshal(meta, &obj); err != nil {
		return nil, Object{}, fmt.Errorf("failed to parse media metadata: %w", err)
	}

	data, err := os.ReadFile(s.dataPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, Object{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, Object{}, fmt.Errorf("failed to load media: %w", err)
	}
	return data, obj, nil
}

// Delete removes an object. Missing objects are not an error.
func (s *DirStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ValidKey(key) {
		return fmt.Errorf("%q: %w", key, ErrInvalidKey)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, p := range []string{s.dataPath(key), s.metaPath(key)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete media: %w", err)
		}
	}
	return nil
}
