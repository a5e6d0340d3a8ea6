// Package handlers exposes one map session over HTTP: the browser map page
// posts clicks, form submissions and popup actions, and polls the rendered
// marker set.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mapmark/mapmark/internal/annotation"
	"github.com/mapmark/mapmark/internal/controller"
	"github.com/mapmark/mapmark/internal/export"
	"github.com/mapmark/mapmark/internal/logging"
	"github.com/mapmark/mapmark/internal/mapview"
	"github.com/mapmark/mapmark/internal/media"
)

// MaxUploadSize bounds a multipart submission.
const MaxUploadSize = 64 << 20

// Dependencies holds everything the handlers need.
type Dependencies struct {
	Controller *controller.Controller
	Canvas     *mapview.Canvas
	Exporter   *export.Exporter
	Media      media.Store // optional
	Logger     *slog.Logger
}

// Service serves the HTTP surface of a map session.
type Service struct {
	deps Dependencies
}

// NewService creates a handler service.
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

type errorResponse struct {
	Error string `json:"error"`
}

// MarkersResponse is the rendered map state.
type MarkersResponse struct {
	Markers   []mapview.Marker   `json:"markers"`
	Indicator *mapview.Indicator `json:"indicator,omitempty"`
}

type clickRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type mediaPayload struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"` // base64 in JSON
}

type submitRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Media       *mediaPayload `json:"media,omitempty"`
}

// Router returns the chi router with all routes mounted.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestContext)
	r.Use(middleware.Recoverer)

	r.Get("/healthcheck", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/map/click", s.Click)
		r.Get("/form", s.Form)
		r.Get("/markers", s.ListMarkers)
		r.Post("/markers", s.AddMarker)
		r.Post("/markers/{handle}/actions/{action}", s.PressAction)
		r.Post("/reload", s.Reload)
		r.Get("/export", s.Export)
		r.Get("/export.geojson", s.ExportGeoJSON)
	})

	r.Get(media.URLPrefix+"{key}", s.Media)
	return r
}

// requestContext tags the request context so log lines carry the request id.
func (s *Service) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		s.deps.Logger.DebugContext(ctx, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// Click places the pending location and shows the form.
func (s *Service) Click(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	pos := annotation.Position{Latitude: req.Latitude, Longitude: req.Longitude}
	if err := s.deps.Canvas.Click(pos); err != nil {
		writeError(w, http.StatusBadRequest, userMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Controller.Form())
}

// Form returns the form state.
func (s *Service) Form(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Controller.Form())
}

// ListMarkers returns what is drawn on the map.
func (s *Service) ListMarkers(w http.ResponseWriter, _ *http.Request) {
	resp := MarkersResponse{Markers: s.deps.Canvas.Markers()}
	if ind, ok := s.deps.Canvas.Indicator(); ok {
		resp.Indicator = &ind
	}
	writeJSON(w, http.StatusOK, resp)
}

// AddMarker submits the form, either multipart (name, description, media)
// or JSON.
func (s *Service) AddMarker(w http.ResponseWriter, r *http.Request) {
	sub, err := parseSubmission(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := s.deps.Controller.AddMarker(r.Context(), sub)
	if err != nil {
		if errors.Is(err, annotation.ErrValidation) {
			writeError(w, http.StatusBadRequest, userMessage(err))
			return
		}
		s.deps.Logger.ErrorContext(r.Context(), "Failed to add marker", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to add marker")
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func parseSubmission(w http.ResponseWriter, r *http.Request) (controller.Submission, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return controller.Submission{}, fmt.Errorf("invalid request body")
		}
		sub := controller.Submission{Name: req.Name, Description: req.Description}
		if req.Media != nil && len(req.Media.Data) > 0 {
			sub.Files = append(sub.Files, controller.Upload{
				Filename:    req.Media.Filename,
				ContentType: req.Media.ContentType,
				Data:        req.Media.Data,
			})
		}
		return sub, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		return controller.Submission{}, fmt.Errorf("invalid form: %v", err)
	}
	sub := controller.Submission{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
	}
	for _, fh := range r.MultipartForm.File["media"] {
		f, err := fh.Open()
		if err != nil {
			return controller.Submission{}, fmt.Errorf("invalid upload %s", fh.Filename)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return controller.Submission{}, fmt.Errorf("invalid upload %s", fh.Filename)
		}
		sub.Files = append(sub.Files, controller.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return sub, nil
}

// PressAction runs a popup action. The page asks for confirmation first.
func (s *Service) PressAction(w http.ResponseWriter, r *http.Request) {
	h, err := strconv.ParseUint(chi.URLParam(r, "handle"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid marker handle")
		return
	}

	err = s.deps.Canvas.Press(r.Context(), mapview.Handle(h), chi.URLParam(r, "action"))
	switch {
	case errors.Is(err, mapview.ErrUnknownMarker):
		writeError(w, http.StatusNotFound, "marker not found")
	case errors.Is(err, mapview.ErrUnknownAction):
		writeError(w, http.StatusBadRequest, "unknown action")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// Reload redraws every record from the backend.
func (s *Service) Reload(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Controller.Load(r.Context()); err != nil {
		s.deps.Logger.ErrorContext(r.Context(), "Reload failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	s.ListMarkers(w, r)
}

// Export downloads the export document.
func (s *Service) Export(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.Exporter.Export(r.Context())
	if err != nil {
		s.deps.Logger.ErrorContext(r.Context(), "Export failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	filename := s.deps.Exporter.Filename(s.deps.Exporter.Now())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := export.Write(w, doc); err != nil {
		s.deps.Logger.WarnContext(r.Context(), "Export write failed", "error", err)
	}
}

// ExportGeoJSON returns every record as a GeoJSON FeatureCollection.
func (s *Service) ExportGeoJSON(w http.ResponseWriter, r *http.Request) {
	fc, err := s.deps.Exporter.GeoJSON(r.Context())
	if err != nil {
		s.deps.Logger.ErrorContext(r.Context(), "GeoJSON export failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	_ = json.NewEncoder(w).Encode(fc)
}

// Media serves an uploaded file.
func (s *Service) Media(w http.ResponseWriter, r *http.Request) {
	if s.deps.Media == nil {
		http.NotFound(w, r)
		return
	}

	data, obj, err := s.deps.Media.Get(r.Context(), chi.URLParam(r, "key"))
	if errors.Is(err, media.ErrNotFound) || errors.Is(err, media.ErrInvalidKey) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.deps.Logger.ErrorContext(r.Context(), "Media read failed", "error", err)
		http.Error(w, "media unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", obj.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	_, _ = w.Write(data)
}

// userMessage unwraps a validation error to the text shown in the alert.
func userMessage(err error) string {
	var ve *annotation.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return err.Error()
}
