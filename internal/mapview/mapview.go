// Package mapview defines the contract the controller uses to draw
// annotations on a map, plus Canvas, a headless implementation that keeps
// the visible marker set for the HTTP surface.
package mapview

import (
	"context"
	"errors"

	"github.com/mapmark/mapmark/internal/annotation"
)

// Handle identifies a rendered marker. Zero is never issued.
type Handle uint64

// Popup actions.
const (
	ActionDelete = "delete"
)

var (
	ErrUnknownMarker = errors.New("unknown marker")
	ErrUnknownAction = errors.New("unknown popup action")
)

// Popup is the info window attached to a marker. OnDelete is bound to a
// record when the marker is created; nil means the popup has no delete
// affordance.
type Popup struct {
	HTML     string
	OnDelete func(ctx context.Context)
}

// Adapter renders markers and reports clicks.
type Adapter interface {
	RenderMarker(pos annotation.Position, label string) Handle
	RemoveMarker(h Handle)
	ShowPopup(h Handle, p Popup)
	OnMapClick(fn func(annotation.Position))
}
