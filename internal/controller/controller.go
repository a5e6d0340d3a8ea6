// Package controller turns user intent on the map (click, submit, delete,
// reload) into repository calls and map updates. All state belongs to one
// Controller value, so independent map sessions can coexist in a process.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mapmark/mapmark/internal/annotation"
	"github.com/mapmark/mapmark/internal/cache"
	"github.com/mapmark/mapmark/internal/mapview"
	"github.com/mapmark/mapmark/internal/media"
)

const instrumentationName = "github.com/mapmark/mapmark/internal/controller"

// User-facing messages.
const (
	MsgNoLocation         = "select a location on the map first"
	MsgMissingName        = "name is required"
	MsgMissingDescription = "description is required"
	MsgAdded              = "annotation added"
)

// Submission outcomes recorded by the controller.submissions counter.
const (
	outcomeCreated      = "created"
	outcomeRejected     = "rejected"
	outcomeMediaError   = "media_error"
	outcomeBackendError = "backend_error"
)

// Repository is the persistence façade the controller depends on.
type Repository interface {
	ListAll(ctx context.Context) ([]annotation.Annotation, error)
	Create(ctx context.Context, a annotation.Annotation) error
	DeleteByID(ctx context.Context, id string) error
}

// Upload is a file attached to a submission.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Submission is what the user typed into the form.
type Submission struct {
	Name        string
	Description string
	Files       []Upload
}

// FormState is the visible state of the input form.
type FormState struct {
	Visible bool                 `json:"visible"`
	Message string               `json:"message,omitempty"`
	Pending *annotation.Position `json:"pending,omitempty"`
}

// Controller owns the pending click location, the set of rendered markers,
// and the form visibility for one map session. Operations are serialized.
type Controller struct {
	repo   Repository
	view   mapview.Adapter
	media  media.Store
	ids    *annotation.IDGenerator
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	pending  *annotation.Position
	visible  bool
	message  string
	rendered *cache.MarkerCache
	mediaRef map[string]string // annotation id -> media URL

	submissions metric.Int64Counter
}

// Option configures a Controller.
type Option func(*Controller)

// WithMediaStore sets where uploaded files go. Without one, uploads are ignored.
func WithMediaStore(s media.Store) Option {
	return func(c *Controller) { c.media = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock pins the clock used for timestamps and ids.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
		c.ids = annotation.NewIDGeneratorWithClock(now)
	}
}

// New creates a Controller and subscribes it to map clicks on view.
func New(repo Repository, view mapview.Adapter, opts ...Option) (*Controller, error) {
	c := &Controller{
		repo:     repo,
		view:     view,
		ids:      annotation.NewIDGenerator(),
		now:      time.Now,
		logger:   slog.Default(),
		rendered: cache.NewMarkerCache(),
		mediaRef: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}

	var err error
	c.submissions, err = otel.Meter(instrumentationName).Int64Counter(
		"controller.submissions",
		metric.WithDescription("Annotation submissions by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating submissions counter: %w", err)
	}

	view.OnMapClick(c.HandleClick)
	return c, nil
}

// Form returns the current form state.
func (c *Controller) Form() FormState {
	c.mu.Lock()
	defer c.mu.Unlock()
	fs := FormState{Visible: c.visible, Message: c.message}
	if c.pending != nil {
		p := *c.pending
		fs.Pending = &p
	}
	return fs
}

// Rendered returns the ids of annotations currently drawn, in render order.
func (c *Controller) Rendered() []string {
	return c.rendered.IDs()
}

// HandleClick replaces the pending location and opens the form.
func (c *Controller) HandleClick(pos annotation.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = &pos
	c.visible = true
	c.message = ""
	c.logger.Debug("Map clicked", "lat", pos.Latitude, "lng", pos.Longitude)
}

// Load replaces every rendered marker with the backend's contents.
// On a backend failure the current markers stay drawn.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(ctx)
}

func (c *Controller) load(ctx context.Context) error {
	records, err := c.repo.ListAll(ctx)
	if err != nil {
		c.logger.Error("Failed to load annotations", "error", err)
		return err
	}

	for _, h := range c.rendered.Reset() {
		c.view.RemoveMarker(h)
	}
	clear(c.mediaRef)
	for _, a := range records {
		c.render(a)
	}
	c.logger.Debug("Annotations loaded", "count", len(records))
	return nil
}

// render draws a record with a popup whose delete action is bound to its id.
func (c *Controller) render(a annotation.Annotation) {
	h := c.view.RenderMarker(a.Position(), a.Name)

	html, err := mapview.RenderPopup(a)
	if err != nil {
		c.logger.Warn("Failed to render popup", "id", a.ID, "error", err)
	}
	id := a.ID
	c.view.ShowPopup(h, mapview.Popup{
		HTML:     html,
		OnDelete: func(ctx context.Context) { c.DeleteMarker(ctx, id) },
	})
	c.rendered.Set(id, h)
	if ref := a.Image + a.Video; ref != "" {
		c.mediaRef[id] = ref
	}
}

// AddMarker validates the submission, stores any attached media, draws the
// marker and persists the record. It returns a *annotation.ValidationError
// for user mistakes, in which case nothing was written. A backend failure is
// logged only; the marker stays drawn until the next reload.
func (c *Controller) AddMarker(ctx context.Context, s Submission) (annotation.Annotation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		c.count(ctx, outcomeRejected)
		return annotation.Annotation{}, annotation.NewValidationError("location", MsgNoLocation)
	}
	name := strings.TrimSpace(s.Name)
	description := strings.TrimSpace(s.Description)
	if name == "" {
		c.count(ctx, outcomeRejected)
		return annotation.Annotation{}, annotation.NewValidationError("name", MsgMissingName)
	}
	if description == "" {
		c.count(ctx, outcomeRejected)
		return annotation.Annotation{}, annotation.NewValidationError("description", MsgMissingDescription)
	}

	a := annotation.New(c.ids.Next(), name, description, *c.pending, c.now())
	if err := a.Validate(); err != nil {
		c.count(ctx, outcomeRejected)
		return annotation.Annotation{}, err
	}

	kind, ref, err := c.storeMedia(ctx, s.Files)
	if err != nil {
		c.count(ctx, outcomeMediaError)
		return annotation.Annotation{}, err
	}
	a.AttachMedia(kind, ref)

	c.render(a)

	if err := c.repo.Create(ctx, a); err != nil {
		c.count(ctx, outcomeBackendError)
		c.logger.Error("Failed to save annotation", "id", a.ID, "error", err)
	} else {
		c.count(ctx, outcomeCreated)
		c.logger.Info("Annotation added", "id", a.ID, "name", a.Name)
	}

	c.pending = nil
	c.visible = false
	c.message = MsgAdded
	return a, nil
}

// storeMedia keeps the first upload if it is an image or a video.
func (c *Controller) storeMedia(ctx context.Context, files []Upload) (annotation.MediaKind, string, error) {
	if len(files) == 0 || len(files[0].Data) == 0 {
		return annotation.MediaNone, "", nil
	}
	f := files[0]

	contentType := media.DetectContentType(f.Data, f.ContentType)
	kind := annotation.MediaKindFromMIME(contentType)
	if kind == annotation.MediaNone {
		c.logger.Debug("Ignoring upload that is neither image nor video", "filename", f.Filename, "type", contentType)
		return annotation.MediaNone, "", nil
	}
	if c.media == nil {
		c.logger.Warn("No media store configured, dropping upload", "filename", f.Filename)
		return annotation.MediaNone, "", nil
	}

	obj, err := c.media.Put(ctx, f.Data, f.Filename, contentType)
	if err != nil {
		return annotation.MediaNone, "", fmt.Errorf("store %s: %w", f.Filename, err)
	}
	return kind, obj.URL(), nil
}

// DeleteMarker removes the marker from the map, deletes the record and its
// media, then reloads everything from the backend. Failures are logged only.
func (c *Controller) DeleteMarker(ctx context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.rendered.Delete(id); ok {
		c.view.RemoveMarker(h)
	}

	if err := c.repo.DeleteByID(ctx, id); err != nil {
		c.logger.Error("Failed to delete annotation", "id", id, "error", err)
	} else {
		c.logger.Info("Annotation deleted", "id", id)
		c.deleteMedia(ctx, c.mediaRef[id])
		delete(c.mediaRef, id)
	}

	if err := c.load(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("Map may be stale until next reload", "error", err)
	}
}

func (c *Controller) deleteMedia(ctx context.Context, ref string) {
	if c.media == nil || ref == "" {
		return
	}
	key, ok := media.KeyFromURL(ref)
	if !ok {
		return
	}
	if err := c.media.Delete(ctx, key); err != nil {
		c.logger.Warn("Failed to delete media", "key", key, "error", err)
	}
}

func (c *Controller) count(ctx context.Context, outcome string) {
	c.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
