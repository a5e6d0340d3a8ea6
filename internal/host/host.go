// Package host serves the annotation store to remote applications over a
// WebSocket IPC link. Each request envelope is dispatched by type to the
// backend and answered with exactly one ack.
package host

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	ws "github.com/gorilla/websocket"

	"github.com/mapmark/mapmark/internal/annotation"
	"github.com/mapmark/mapmark/internal/dispatcher"
	"github.com/mapmark/mapmark/internal/storage"
	"github.com/mapmark/mapmark/pkg/ipc"
)

const (
	writeWait      = 10 * time.Second
	requestTimeout = 30 * time.Second
	maxMessageSize = 32 << 20 // records may carry inline media
)

// Server answers IPC requests from annotation applications.
type Server struct {
	backend    storage.Backend
	dispatcher *dispatcher.Dispatcher
	secret     string
	logger     *slog.Logger
	upgrader   ws.Upgrader

	mu     sync.Mutex
	conns  map[*ws.Conn]struct{}
	closed bool
}

// New creates a host server over backend and registers the IPC
// channels on d. An empty secret disables the secret check.
func New(backend storage.Backend, d *dispatcher.Dispatcher, secret string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		backend:    backend,
		dispatcher: d,
		secret:     secret,
		logger:     logger,
		upgrader: ws.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*ws.Conn]struct{}),
	}
	s.register()
	return s
}

func (s *Server) register() {
	opts := []dispatcher.Option{dispatcher.Logged(), dispatcher.Timeout(requestTimeout)}
	s.dispatcher.Register(ipc.TypeLoadMarkers, s.loadMarkers, opts...)
	s.dispatcher.Register(ipc.TypeDownloadMarkers, s.loadMarkers, opts...)
	s.dispatcher.Register(ipc.TypeSaveMarker, s.saveMarker, opts...)
	s.dispatcher.Register(ipc.TypeDeleteMarker, s.deleteMarker, opts...)
}

// Router returns the host's HTTP routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthcheck", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/ipc", s.serveIPC)
	return r
}

// Close drops every open IPC connection.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for c := range s.conns {
		_ = c.Close()
		delete(s.conns, c)
	}
	return nil
}

func (s *Server) authorized(r *http.Request) bool {
	if s.secret == "" {
		return true
	}
	got := r.URL.Query().Get("secret")
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) == 1
}

func (s *Server) serveIPC(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.logger.Warn("Rejected IPC connection", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("IPC client connected", "remote", r.RemoteAddr)
	s.serveConn(context.Background(), conn)
	s.logger.Info("IPC client disconnected", "remote", r.RemoteAddr)
}

// serveConn handles requests one at a time so saves are applied in the
// order the client sent them.
func (s *Server) serveConn(ctx context.Context, conn *ws.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				s.logger.Warn("IPC read error", "error", err)
			}
			return
		}

		var env ipc.Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			s.logger.Warn("Malformed IPC envelope", "error", err)
			continue
		}

		ack := s.Handle(ctx, env)
		data, err := json.Marshal(ack)
		if err != nil {
			s.logger.Error("Failed to encode ack", "for", env.Type, "error", err)
			continue
		}
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
			s.logger.Warn("IPC write error", "error", err)
			return
		}
	}
}

// Handle dispatches one envelope and builds its ack.
func (s *Server) Handle(ctx context.Context, env ipc.Envelope) ipc.AckMessage {
	ack := ipc.AckMessage{Type: ipc.TypeAck, For: env.Type, ID: env.ID}

	result, err := s.dispatcher.Dispatch(ctx, dispatcher.Event{
		Type:      env.Type,
		ID:        env.ID,
		Payload:   env.Payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		ack.Error = err.Error()
		return ack
	}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			ack.Error = fmt.Sprintf("encode reply: %v", err)
			return ack
		}
		ack.Payload = raw
	}
	return ack
}

func (s *Server) loadMarkers(ctx context.Context, _ dispatcher.Event) (any, error) {
	return s.backend.LoadMarkers(ctx)
}

func (s *Server) saveMarker(ctx context.Context, e dispatcher.Event) (any, error) {
	var a annotation.Annotation
	if err := json.Unmarshal(e.Payload, &a); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if a.ID == "" {
		return nil, fmt.Errorf("decode record: missing id")
	}
	return nil, s.backend.SaveMarker(ctx, &a)
}

func (s *Server) deleteMarker(ctx context.Context, e dispatcher.Event) (any, error) {
	var p ipc.DeleteMarkerPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode delete request: %w", err)
	}
	return nil, s.backend.DeleteMarker(ctx, p.ID)
}
