package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mapmark/mapmark/internal/annotation"
	"github.com/mapmark/mapmark/pkg/ipc"
)

// DefaultTimeout bounds how long a request waits for the host's ack.
// A request that times out may still be applied by the host.
const DefaultTimeout = 10 * time.Second

// Config holds WebSocket backend configuration.
type Config struct {
	URL     string        `json:"url" mapstructure:"url"`
	Secret  string        `json:"secret" mapstructure:"secret"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// Backend delegates persistence to the host process over WebSocket.
// Every operation is a request answered by exactly one ack.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger),
		cfg:  cfg,
	}
}

// Init connects to the host process.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the host process.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds an Envelope with a fresh request id.
func marshalEnvelope(msgType string, payload any) (ipc.Envelope, error) {
	env := ipc.Envelope{Type: msgType, ID: uuid.NewString()}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return env, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env.Payload = raw
	return env, nil
}

// invoke sends a request and waits for its ack, turning host-side
// failures into *ipc.RemoteError.
func (b *Backend) invoke(ctx context.Context, msgType string, payload any) (ipc.AckMessage, error) {
	env, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return ipc.AckMessage{}, err
	}
	ack, err := b.conn.request(ctx, env, b.cfg.Timeout)
	if err != nil {
		return ack, err
	}
	if ack.Error != "" {
		return ack, &ipc.RemoteError{For: msgType, Message: ack.Error}
	}
	return ack, nil
}

// LoadMarkers asks the host for the full collection.
func (b *Backend) LoadMarkers(ctx context.Context) ([]annotation.Annotation, error) {
	return b.fetch(ctx, ipc.TypeLoadMarkers)
}

// DownloadMarkers fetches the collection over the export channel.
func (b *Backend) DownloadMarkers(ctx context.Context) ([]annotation.Annotation, error) {
	return b.fetch(ctx, ipc.TypeDownloadMarkers)
}

func (b *Backend) fetch(ctx context.Context, msgType string) ([]annotation.Annotation, error) {
	ack, err := b.invoke(ctx, msgType, nil)
	if err != nil {
		return nil, err
	}
	records := []annotation.Annotation{}
	if len(ack.Payload) > 0 {
		if err := json.Unmarshal(ack.Payload, &records); err != nil {
			return nil, fmt.Errorf("decode %s reply: %w", msgType, err)
		}
	}
	if records == nil {
		records = []annotation.Annotation{}
	}
	return records, nil
}

// SaveMarker sends the record and waits for the host's ack.
func (b *Backend) SaveMarker(ctx context.Context, a *annotation.Annotation) error {
	_, err := b.invoke(ctx, ipc.TypeSaveMarker, a)
	return err
}

// DeleteMarker asks the host to delete id and waits for the ack.
func (b *Backend) DeleteMarker(ctx context.Context, id string) error {
	_, err := b.invoke(ctx, ipc.TypeDeleteMarker, ipc.DeleteMarkerPayload{ID: id})
	return err
}
