// Package folder implements storage.Backend as a JSON file inside a
// folder that may be shared with other processes. Every operation reads
// the file, so writes made by others are always observed; a file watcher
// reports those writes to interested listeners.
package folder

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/mapmark/mapmark/internal/annotation"
	"github.com/mapmark/mapmark/internal/storage"
)

// DefaultFile is the name of the collection file inside the folder.
const DefaultFile = "markers.json"

// Config holds folder backend configuration.
type Config struct {
	Dir  string `json:"dir" mapstructure:"dir"`
	File string `json:"file" mapstructure:"file"`
}

// Backend stores the collection as an indented JSON array.
type Backend struct {
	cfg    Config
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	lastHash [sha256.Size]byte

	watcher   *fsnotify.Watcher
	listeners []func()
	lmu       sync.RWMutex
	done      chan struct{}
}

// New creates a new folder backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if cfg.File == "" {
		cfg.File = DefaultFile
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		cfg:    cfg,
		path:   filepath.Join(cfg.Dir, cfg.File),
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Path returns the collection file path.
func (b *Backend) Path() string {
	return b.path
}

// Init creates the folder and starts watching it.
func (b *Backend) Init() error {
	if b.cfg.Dir == "" {
		return fmt.Errorf("folder backend: dir not configured")
	}
	if err := os.MkdirAll(b.cfg.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create shared folder: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		b.logger.Warn("Could not create file watcher", "error", err)
		return nil
	}
	if err := watcher.Add(b.cfg.Dir); err != nil {
		b.logger.Warn("Could not watch shared folder", "dir", b.cfg.Dir, "error", err)
		_ = watcher.Close()
		return nil
	}
	b.watcher = watcher
	go b.watch()
	return nil
}

// Close stops the watcher.
func (b *Backend) Close() error {
	select {
	case <-b.done:
		return nil
	default:
		close(b.done)
	}
	if b.watcher != nil {
		return b.watcher.Close()
	}
	return nil
}

// OnExternalChange registers fn to run when another process rewrites the file.
func (b *Backend) OnExternalChange(fn func()) {
	b.lmu.Lock()
	defer b.lmu.Unlock()
	b.listeners = append(b.listeners, fn)
}

// LoadMarkers reads the file; a missing file is an empty collection.
func (b *Backend) LoadMarkers(ctx context.Context) ([]annotation.Annotation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.read()
}

// SaveMarker appends a record and rewrites the file.
func (b *Backend) SaveMarker(ctx context.Context, a *annotation.Annotation) error {
	return b.update(ctx, func(records []annotation.Annotation) []annotation.Annotation {
		return append(records, *a)
	})
}

// DeleteMarker removes the first matching record and rewrites the file.
func (b *Backend) DeleteMarker(ctx context.Context, id string) error {
	return b.update(ctx, func(records []annotation.Annotation) []annotation.Annotation {
		out, _ := storage.RemoveFirst(records, id)
		return out
	})
}

func (b *Backend) update(ctx context.Context, fn func([]annotation.Annotation) []annotation.Annotation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	records, err := b.read()
	if err != nil {
		return err
	}
	return b.write(fn(records))
}

func (b *Backend) read() ([]annotation.Annotation, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return []annotation.Annotation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", b.path, err)
	}
	if len(data) == 0 {
		return []annotation.Annotation{}, nil
	}

	var records []annotation.Annotation
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", b.path, err)
	}
	if records == nil {
		records = []annotation.Annotation{}
	}
	return records, nil
}

// write replaces the file atomically via a temp file in the same folder.
func (b *Backend) write(records []annotation.Annotation) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode markers: %w", err)
	}

	tmp, err := os.CreateTemp(b.cfg.Dir, ".markers-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	b.lastHash = sha256.Sum256(data)
	if err := os.Rename(tmpPath, b.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", b.path, err)
	}
	return nil
}

func (b *Backend) watch() {
	for {
		select {
		case <-b.done:
			return
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != b.cfg.File {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if b.isOwnWrite() {
				continue
			}
			b.logger.Info("Shared markers file changed externally", "op", event.Op.String(), "path", event.Name)
			b.notify()
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.logger.Warn("Watcher error", "error", err)
		}
	}
}

// isOwnWrite reports whether the file on disk is what this backend last wrote.
func (b *Backend) isOwnWrite() bool {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return sha256.Sum256(data) == b.lastHash
}

func (b *Backend) notify() {
	b.lmu.RLock()
	listeners := make([]func(), len(b.listeners))
	copy(listeners, b.listeners)
	b.lmu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}
