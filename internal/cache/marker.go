// Package cache holds the controller's view of which annotations are
// currently drawn on the map.
package cache

import (
	"sync"

	"github.com/mapmark/mapmark/internal/mapview"
)

// MarkerCache maps annotation ids to the handles of their rendered markers
type MarkerCache struct {
	mu      sync.RWMutex
	markers map[string]mapview.Handle
	order   []string
}

// NewMarkerCache creates a new MarkerCache
func NewMarkerCache() *MarkerCache {
	return &MarkerCache{
		markers: make(map[string]mapview.Handle),
	}
}

// Get retrieves a marker handle by annotation id
func (c *MarkerCache) Get(id string) (mapview.Handle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.markers[id]
	return h, ok
}

// Set stores a marker handle by annotation id
func (c *MarkerCache) Set(id string, h mapview.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.markers[id]; !ok {
		c.order = append(c.order, id)
	}
	c.markers[id] = h
}

// Delete removes a marker by annotation id and returns its handle
func (c *MarkerCache) Delete(id string) (mapview.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.markers[id]
	if !ok {
		return 0, false
	}
	delete(c.markers, id)
	for i, o := range c.order {
		if o == id {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
	return h, true
}

// Len returns the number of rendered markers
func (c *MarkerCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.markers)
}

// IDs returns the cached annotation ids in the order they were added
func (c *MarkerCache) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// Reset clears the cache and returns every handle it held, in insertion order
func (c *MarkerCache) Reset() []mapview.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	handles := make([]mapview.Handle, 0, len(c.order))
	for _, id := range c.order {
		handles = append(handles, c.markers[id])
	}
	c.markers = make(map[string]mapview.Handle)
	c.order = nil
	return handles
}
