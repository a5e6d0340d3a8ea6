// Package export produces the downloadable snapshot of every annotation.
// Media payloads never leave the store: the document only says whether a
// record has an image or a video.
package export

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mapmark/mapmark/internal/annotation"
)

// DefaultFilenamePrefix names export files when no prefix is configured.
const DefaultFilenamePrefix = "map_annotations"

// Lister is the read side of the repository.
type Lister interface {
	ListAll(ctx context.Context) ([]annotation.Annotation, error)
}

// Marker is the exported projection of an annotation.
type Marker struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Person      string  `json:"person"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timestamp   string  `json:"timestamp"`
	HasImage    bool    `json:"hasImage"`
	HasVideo    bool    `json:"hasVideo"`
}

// Document is the export file format.
type Document struct {
	ExportTime   string   `json:"exportTime"`
	TotalMarkers int      `json:"totalMarkers"`
	Markers      []Marker `json:"markers"`
}

// Project strips media references from a record.
func Project(a annotation.Annotation) Marker {
	return Marker{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		Person:      a.Person,
		Latitude:    a.Latitude,
		Longitude:   a.Longitude,
		Timestamp:   a.Timestamp,
		HasImage:    a.HasImage(),
		HasVideo:    a.HasVideo(),
	}
}

// Exporter reads the repository and builds documents. It never mutates state.
type Exporter struct {
	repo   Lister
	prefix string
	now    func() time.Time
}

// New creates an Exporter. An empty prefix selects DefaultFilenamePrefix.
func New(repo Lister, prefix string) *Exporter {
	if prefix == "" {
		prefix = DefaultFilenamePrefix
	}
	return &Exporter{repo: repo, prefix: prefix, now: time.Now}
}

// Now returns the exporter's clock reading.
func (e *Exporter) Now() time.Time {
	return e.now()
}

// Export snapshots every record.
func (e *Exporter) Export(ctx context.Context) (Document, error) {
	records, err := e.repo.ListAll(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("export: %w", err)
	}
	return Build(records, e.now()), nil
}

// Build assembles a document from records.
func Build(records []annotation.Annotation, now time.Time) Document {
	markers := make([]Marker, 0, len(records))
	for _, a := range records {
		markers = append(markers, Project(a))
	}
	return Document{
		ExportTime:   annotation.FormatTimestamp(now),
		TotalMarkers: len(markers),
		Markers:      markers,
	}
}

// Filename names the export for the UTC day of now, e.g.
// map_annotations_2024-05-01.json, matching the document's exportTime.
func (e *Exporter) Filename(now time.Time) string {
	return fmt.Sprintf("%s_%s.json", e.prefix, now.UTC().Format(time.DateOnly))
}

// Write encodes doc as indented JSON.
func Write(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// WriteFile writes doc into dir and returns the file path. With compress
// the file is gzipped and gets a .gz suffix.
func (e *Exporter) WriteFile(dir string, doc Document, compress bool) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	path := filepath.Join(dir, e.Filename(e.now()))
	if compress {
		path += ".gz"
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(f)
		gz.Name = filepath.Base(path[:len(path)-len(".gz")])
		w = gz
	}

	if err := Write(w, doc); err != nil {
		return "", err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return "", fmt.Errorf("close gzip stream: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}
	return path, nil
}
