// Package gormstorage implements storage.Backend as one row per annotation
// in a relational database. It is dialect independent; the postgres
// backend wraps it via composition.
package gormstorage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mapmark/mapmark/internal/annotation"
	"github.com/mapmark/mapmark/internal/storage"
)

// AnnotationRow is the persisted form of an annotation. Seq preserves insertion order.
type AnnotationRow struct {
	Seq          uint   `gorm:"primaryKey;autoIncrement"`
	AnnotationID string `gorm:"column:annotation_id;size:64;index"`
	Name         string
	Description  string
	Person       string
	Image        string
	Video        string
	Latitude     float64
	Longitude    float64
	Timestamp    string `gorm:"size:40"`
}

// TableName returns the table name for the AnnotationRow model
func (AnnotationRow) TableName() string {
	return "annotations"
}

func rowFromAnnotation(a *annotation.Annotation) AnnotationRow {
	return AnnotationRow{
		AnnotationID: a.ID,
		Name:         a.Name,
		Description:  a.Description,
		Person:       a.Person,
		Image:        a.Image,
		Video:        a.Video,
		Latitude:     a.Latitude,
		Longitude:    a.Longitude,
		Timestamp:    a.Timestamp,
	}
}

func (r AnnotationRow) toAnnotation() annotation.Annotation {
	return annotation.Annotation{
		ID:          r.AnnotationID,
		Name:        r.Name,
		Description: r.Description,
		Person:      r.Person,
		Image:       r.Image,
		Video:       r.Video,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Timestamp:   r.Timestamp,
	}
}

// Backend implements storage.Backend on top of a *gorm.DB.
type Backend struct {
	db *gorm.DB
}

// New creates a new GORM storage backend.
func New(db *gorm.DB) *Backend {
	return &Backend{db: db}
}

// Init migrates the annotations table.
func (b *Backend) Init() error {
	if b.db == nil {
		return storage.ErrNotInitialized
	}
	if err := b.db.AutoMigrate(&AnnotationRow{}); err != nil {
		return fmt.Errorf("failed to migrate annotations table: %w", err)
	}
	return nil
}

// Close is a no-op; the owner of the *gorm.DB closes it.
func (b *Backend) Close() error {
	return nil
}

// LoadMarkers returns all rows ordered by insertion.
func (b *Backend) LoadMarkers(ctx context.Context) ([]annotation.Annotation, error) {
	if b.db == nil {
		return nil, storage.ErrNotInitialized
	}
	var rows []AnnotationRow
	if err := b.db.WithContext(ctx).Order("seq").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load annotations: %w", err)
	}
	out := make([]annotation.Annotation, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toAnnotation())
	}
	return out, nil
}

// SaveMarker inserts a row.
func (b *Backend) SaveMarker(ctx context.Context, a *annotation.Annotation) error {
	if b.db == nil {
		return storage.ErrNotInitialized
	}
	row := rowFromAnnotation(a)
	if err := b.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to save annotation %s: %w", a.ID, err)
	}
	return nil
}

// DeleteMarker deletes the oldest row carrying id, if any.
func (b *Backend) DeleteMarker(ctx context.Context, id string) error {
	if b.db == nil {
		return storage.ErrNotInitialized
	}
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row AnnotationRow
		err := tx.Where("annotation_id = ?", id).Order("seq").First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to find annotation %s: %w", id, err)
		}
		if err := tx.Delete(&AnnotationRow{}, row.Seq).Error; err != nil {
			return fmt.Errorf("failed to delete annotation %s: %w", id, err)
		}
		return nil
	})
}
