// Package ipc defines the request/response messages exchanged between the
// annotation application and the host process that owns the shared store.
package ipc

import (
	"encoding/json"
	"errors"
)

// Channel names understood by the host process.
const (
	TypeLoadMarkers     = "load-markers"
	TypeSaveMarker      = "save-marker"
	TypeDeleteMarker    = "delete-marker"
	TypeDownloadMarkers = "download-markers"

	TypeAck = "ack"
)

// Transport errors.
var (
	ErrTimeout = errors.New("ipc: timeout waiting for reply")
	ErrClosed  = errors.New("ipc: connection closed")
)

// Envelope wraps every request sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckMessage is the host's reply to a request. Error is empty on success.
type AckMessage struct {
	Type    string          `json:"type"` // always "ack"
	For     string          `json:"for"`  // the request type being acknowledged
	ID      string          `json:"id"`   // the request id being acknowledged
	Error   string          `json:"error,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DeleteMarkerPayload carries the id to delete.
type DeleteMarkerPayload struct {
	ID string `json:"id"`
}

// RemoteError is a failure reported by the host rather than by the transport.
type RemoteError struct {
	For     string
	Message string
}

func (e *RemoteError) Error() string {
	return "ipc: " + e.For + " failed on host: " + e.Message
}
