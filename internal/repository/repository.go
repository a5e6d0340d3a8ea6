// Package repository is the CRUD façade over whichever storage backend is
// configured. It is the only path the controller and exporter use to reach
// persisted annotations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mapmark/mapmark/internal/annotation"
	"github.com/mapmark/mapmark/internal/storage"
)

const instrumentationName = "github.com/mapmark/mapmark/internal/repository"

// ErrBackendUnavailable wraps every failure reported by the storage backend.
var ErrBackendUnavailable = errors.New("storage backend unavailable")

// Operation names used for metrics and audit points.
const (
	OpList   = "list"
	OpCreate = "create"
	OpDelete = "delete"
)

// Auditor receives one call per repository operation. err is nil on success.
type Auditor interface {
	Audit(ctx context.Context, op, id string, took time.Duration, err error)
}

// Repository delegates to a single authoritative storage.Backend.
type Repository struct {
	backend storage.Backend
	auditor Auditor
	logger  *slog.Logger

	operations metric.Int64Counter
}

// Option configures a Repository.
type Option func(*Repository)

// WithAuditor attaches an audit sink.
func WithAuditor(a Auditor) Option {
	return func(r *Repository) {
		r.auditor = a
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) {
		r.logger = l
	}
}

// New creates a Repository over backend.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(backend storage.Backend, opts ...Option) (*Repository, error) {
	r := &Repository{
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	var err error
	r.operations, err = otel.Meter(instrumentationName).Int64Counter(
		"repository.operations",
		metric.WithDescription("Repository operations by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating operations counter: %w", err)
	}
	return r, nil
}

// ListAll returns every stored record in backend order. The result is never nil.
func (r *Repository) ListAll(ctx context.Context) ([]annotation.Annotation, error) {
	start := time.Now()
	records, err := r.backend.LoadMarkers(ctx)
	err = r.finish(ctx, OpList, "", start, err)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []annotation.Annotation{}
	}
	return records, nil
}

// Create appends a record. Id uniqueness is the caller's responsibility.
func (r *Repository) Create(ctx context.Context, a annotation.Annotation) error {
	start := time.Now()
	err := r.backend.SaveMarker(ctx, &a)
	return r.finish(ctx, OpCreate, a.ID, start, err)
}

// DeleteByID removes the first record with the given id. Unknown ids are a no-op.
func (r *Repository) DeleteByID(ctx context.Context, id string) error {
	start := time.Now()
	err := r.backend.DeleteMarker(ctx, id)
	return r.finish(ctx, OpDelete, id, start, err)
}

func (r *Repository) finish(ctx context.Context, op, id string, start time.Time, err error) error {
	took := time.Since(start)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		what := op
		if id != "" {
			what += " " + id
		}
		err = fmt.Errorf("%s: %w: %w", what, ErrBackendUnavailable, err)
	}

	r.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
	if r.auditor != nil {
		r.auditor.Audit(ctx, op, id, took, err)
	}
	r.logger.Debug("repository operation", "operation", op, "id", id, "duration", took, "outcome", outcome)
	return err
}
