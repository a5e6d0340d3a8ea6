package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
)

// gelfWriter is the part of *gelf.Writer used by GelfHandler.
type gelfWriter interface {
	WriteMessage(m *gelf.Message) error
}

// GelfHandler sends records to Graylog. Attributes become GELF additional
// fields.
type GelfHandler struct {
	w        gelfWriter
	host     string
	facility string
	level    slog.Leveler
	attrs    []slog.Attr
	group    string
}

// NewGelfHandler creates a handler writing to w. host defaults to the
// machine's hostname.
func NewGelfHandler(w *gelf.Writer, facility string, level string) *GelfHandler {
	return newGelfHandler(w, facility, parseLevel(level))
}

// DialGelf opens a UDP GELF writer to address and wraps it in a handler.
func DialGelf(address, facility, level string) (*GelfHandler, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("failed to create gelf writer for %s: %w", address, err)
	}
	return NewGelfHandler(w, facility, level), nil
}

func newGelfHandler(w gelfWriter, facility string, level slog.Leveler) *GelfHandler {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &GelfHandler{w: w, host: host, facility: facility, level: level}
}

// Enabled reports whether level meets the handler's minimum.
func (h *GelfHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// syslogLevel maps slog levels to GELF (syslog) severities.
func syslogLevel(l slog.Level) int32 {
	switch {
	case l >= slog.LevelError:
		return 3
	case l >= slog.LevelWarn:
		return 4
	case l >= slog.LevelInfo:
		return 6
	default:
		return 7
	}
}

// Handle converts the record into a GELF message.
func (h *GelfHandler) Handle(_ context.Context, r slog.Record) error {
	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}

	extra := map[string]any{"_level_name": r.Level.String()}
	for _, a := range h.attrs {
		extra["_"+a.Key] = a.Value.Resolve().String()
	}
	r.Attrs(func(a slog.Attr) bool {
		extra["_"+h.key(a.Key)] = a.Value.Resolve().String()
		return true
	})

	return h.w.WriteMessage(&gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    r.Message,
		TimeUnix: float64(t.UnixNano()) / float64(time.Second),
		Level:    syslogLevel(r.Level),
		Facility: h.facility,
		Extra:    extra,
	})
}

func (h *GelfHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}

// WithAttrs returns a handler that adds attrs to every message.
func (h *GelfHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: h.key(a.Key), Value: a.Value})
	}
	return &next
}

// WithGroup prefixes subsequent attribute keys with name.
func (h *GelfHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		name = fmt.Sprintf("%s.%s", h.group, name)
	}
	next.group = name
	return &next
}
