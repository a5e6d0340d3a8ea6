// Package localstorage implements storage.Backend as a local key-value
// store: the whole annotation collection lives as one JSON document under
// a single named slot of a SQLite database file.
package localstorage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mapmark/mapmark/internal/annotation"
	"github.com/mapmark/mapmark/internal/database"
	"github.com/mapmark/mapmark/internal/storage"
)

// DefaultSlot is the slot name the collection is stored under.
const DefaultSlot = "markers"

// Config holds configuration for the local storage backend.
type Config struct {
	Path string `json:"path" mapstructure:"path"` // SQLite file; empty means in-memory
	Slot string `json:"slot" mapstructure:"slot"`
}

// Slot is one key-value entry.
type Slot struct {
	Name      string `gorm:"primaryKey;size:128"`
	Value     datatypes.JSONType[[]annotation.Annotation]
	UpdatedAt time.Time
}

// TableName returns the table name for the Slot model
func (Slot) TableName() string {
	return "slots"
}

// Backend reads and writes the entire collection on every call.
type Backend struct {
	cfg Config
	db  *gorm.DB

	// serializes read-modify-write cycles on the slot
	mu sync.Mutex
}

// New creates a new local storage backend.
func New(cfg Config) *Backend {
	if cfg.Slot == "" {
		cfg.Slot = DefaultSlot
	}
	return &Backend{cfg: cfg}
}

// Init opens the database file and migrates the slot table.
func (b *Backend) Init() error {
	if b.cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(b.cfg.Path), 0755); err != nil {
			return fmt.Errorf("failed to create local store dir: %w", err)
		}
	}
	db, err := database.OpenSqlite(b.cfg.Path)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	if err := db.AutoMigrate(&Slot{}); err != nil {
		return fmt.Errorf("failed to migrate local store: %w", err)
	}
	b.db = db
	return nil
}

// Close releases the database file.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	b.db = nil
	return sqlDB.Close()
}

// LoadMarkers returns the slot's collection, or an empty one if the slot is unset.
func (b *Backend) LoadMarkers(ctx context.Context) ([]annotation.Annotation, error) {
	if b.db == nil {
		return nil, storage.ErrNotInitialized
	}
	return b.get(b.db.WithContext(ctx))
}

// SaveMarker appends a to the collection and writes it back.
func (b *Backend) SaveMarker(ctx context.Context, a *annotation.Annotation) error {
	return b.update(ctx, func(records []annotation.Annotation) []annotation.Annotation {
		return append(records, *a)
	})
}

// DeleteMarker filters the first record with a matching id out of the collection.
func (b *Backend) DeleteMarker(ctx context.Context, id string) error {
	return b.update(ctx, func(records []annotation.Annotation) []annotation.Annotation {
		out, _ := storage.RemoveFirst(records, id)
		return out
	})
}

func (b *Backend) update(ctx context.Context, fn func([]annotation.Annotation) []annotation.Annotation) error {
	if b.db == nil {
		return storage.ErrNotInitialized
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		records, err := b.get(tx)
		if err != nil {
			return err
		}
		return b.set(tx, fn(records))
	})
}

func (b *Backend) get(tx *gorm.DB) ([]annotation.Annotation, error) {
	var slot Slot
	err := tx.Where("name = ?", b.cfg.Slot).First(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []annotation.Annotation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read slot %q: %w", b.cfg.Slot, err)
	}
	records := slot.Value.Data()
	if records == nil {
		records = []annotation.Annotation{}
	}
	return records, nil
}

func (b *Backend) set(tx *gorm.DB, records []annotation.Annotation) error {
	slot := Slot{
		Name:      b.cfg.Slot,
		Value:     datatypes.NewJSONType(records),
		UpdatedAt: time.Now(),
	}
	err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&slot).Error
	if err != nil {
		return fmt.Errorf("failed to write slot %q: %w", b.cfg.Slot, err)
	}
	return nil
}
