// Package annotation defines the annotation record shared by every
// storage backend, the controller and the exporter.
package annotation

import (
	"strings"
	"time"
)

// TimestampLayout is the ISO-8601 layout used for Annotation.Timestamp.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Annotation is a user-created point of interest on the map.
type Annotation struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Person      string  `json:"person"`
	Image       string  `json:"image,omitempty"`
	Video       string  `json:"video,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Timestamp   string  `json:"timestamp"`
}

// Position is a point on the map in WGS84 degrees.
type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Position returns the record's map location.
func (a Annotation) Position() Position {
	return Position{Latitude: a.Latitude, Longitude: a.Longitude}
}

// HasImage reports whether an image reference is attached.
func (a Annotation) HasImage() bool {
	return a.Image != ""
}

// HasVideo reports whether a video reference is attached.
func (a Annotation) HasVideo() bool {
	return a.Video != ""
}

// Validate checks the fields a user must supply.
func (a Annotation) Validate() error {
	if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.Description) == "" {
		return NewValidationError("name", "name and description are required")
	}
	return ValidatePosition(a.Position())
}

// New builds a complete record from user input. Person defaults to name.
func New(id, name, description string, pos Position, now time.Time) Annotation {
	return Annotation{
		ID:          id,
		Name:        name,
		Description: description,
		Person:      name,
		Latitude:    pos.Latitude,
		Longitude:   pos.Longitude,
		Timestamp:   FormatTimestamp(now),
	}
}

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
