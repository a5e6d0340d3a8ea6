package mapview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mapmark/mapmark/internal/annotation"
	"github.com/mapmark/mapmark/internal/geo"
)

// DefaultIndicatorTTL is how long the click indicator stays visible.
const DefaultIndicatorTTL = 3 * time.Second

// Marker is a snapshot of one rendered marker.
type Marker struct {
	Handle    Handle   `json:"handle"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	X         float64  `json:"x"` // Web Mercator metres
	Y         float64  `json:"y"`
	Label     string   `json:"label"`
	Popup     string   `json:"popup,omitempty"`
	Actions   []string `json:"actions,omitempty"`
}

// Indicator marks the last clicked location.
type Indicator struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type entry struct {
	marker Marker
	popup  Popup
}

// Canvas is an in-memory Adapter. It is safe for concurrent use.
type Canvas struct {
	mu      sync.Mutex
	next    Handle
	order   []Handle
	markers map[Handle]*entry
	onClick []func(annotation.Position)

	indicator    *Indicator
	indicatorGen uint64
	indicatorTTL time.Duration
	now          func() time.Time
}

// NewCanvas creates an empty canvas.
func NewCanvas() *Canvas {
	return &Canvas{
		markers:      make(map[Handle]*entry),
		indicatorTTL: DefaultIndicatorTTL,
		now:          time.Now,
	}
}

// SetIndicatorTTL overrides how long the click indicator is shown.
func (c *Canvas) SetIndicatorTTL(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indicatorTTL = d
}

// RenderMarker adds a marker and returns its handle.
func (c *Canvas) RenderMarker(pos annotation.Position, label string) Handle {
	x, y := geo.Mercator(pos.Latitude, pos.Longitude)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	h := c.next
	c.markers[h] = &entry{marker: Marker{
		Handle:    h,
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
		X:         x,
		Y:         y,
		Label:     label,
	}}
	c.order = append(c.order, h)
	return h
}

// RemoveMarker removes a marker. Unknown handles are ignored.
func (c *Canvas) RemoveMarker(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.markers[h]; !ok {
		return
	}
	delete(c.markers, h)
	for i, o := range c.order {
		if o == h {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
}

// ShowPopup attaches p to the marker.
func (c *Canvas) ShowPopup(h Handle, p Popup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.markers[h]
	if !ok {
		return
	}
	e.popup = p
	e.marker.Popup = p.HTML
	e.marker.Actions = nil
	if p.OnDelete != nil {
		e.marker.Actions = []string{ActionDelete}
	}
}

// OnMapClick registers a click listener.
func (c *Canvas) OnMapClick(fn func(annotation.Position)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClick = append(c.onClick, fn)
}

// Click simulates a click on the map at pos. It shows the click indicator
// and runs every registered listener.
func (c *Canvas) Click(pos annotation.Position) error {
	if err := annotation.ValidatePosition(pos); err != nil {
		return err
	}

	c.mu.Lock()
	c.indicatorGen++
	gen := c.indicatorGen
	c.indicator = &Indicator{
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
		ExpiresAt: c.now().Add(c.indicatorTTL),
	}
	ttl := c.indicatorTTL
	listeners := make([]func(annotation.Position), len(c.onClick))
	copy(listeners, c.onClick)
	c.mu.Unlock()

	time.AfterFunc(ttl, func() { c.clearIndicator(gen) })

	for _, fn := range listeners {
		fn(pos)
	}
	return nil
}

// clearIndicator removes the indicator unless a newer click replaced it.
func (c *Canvas) clearIndicator(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indicatorGen == gen {
		c.indicator = nil
	}
}

// Indicator returns the current click indicator, if any.
func (c *Canvas) Indicator() (Indicator, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indicator == nil {
		return Indicator{}, false
	}
	return *c.indicator, true
}

// Markers returns the rendered markers in render order.
func (c *Canvas) Markers() []Marker {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Marker, 0, len(c.order))
	for _, h := range c.order {
		m := c.markers[h].marker
		m.Actions = append([]string(nil), m.Actions...)
		out = append(out, m)
	}
	return out
}

// Press runs a popup action on a marker.
func (c *Canvas) Press(ctx context.Context, h Handle, action string) error {
	c.mu.Lock()
	e, ok := c.markers[h]
	var popup Popup
	if ok {
		popup = e.popup
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("marker %d: %w", h, ErrUnknownMarker)
	}
	switch {
	case action == ActionDelete && popup.OnDelete != nil:
		popup.OnDelete(ctx)
		return nil
	default:
		return fmt.Errorf("%q on marker %d: %w", action, h, ErrUnknownAction)
	}
}
