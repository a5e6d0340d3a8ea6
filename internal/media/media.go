// Package media stores the photos and videos attached to annotations.
// Records only keep a reference (URL) to the stored object.
package media

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Store types
const (
	TypeDir = "dir"
	TypeS3  = "s3"
)

// URLPrefix is the path media objects are served under.
const URLPrefix = "/media/"

var (
	ErrNotFound   = errors.New("media not found")
	ErrInvalidKey = errors.New("invalid media key")
	ErrEmpty      = errors.New("empty upload")
)

// Object describes a stored media file.
type Object struct {
	Key         string    `json:"key"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// URL returns the reference stored in an annotation for this object.
func (o Object) URL() string {
	return URLPrefix + o.Key
}

// Store persists media objects by key.
type Store interface {
	Put(ctx context.Context, data []byte, filename, contentType string) (Object, error)
	Get(ctx context.Context, key string) ([]byte, Object, error)
	Delete(ctx context.Context, key string) error
}

var keyPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}(\.[a-z0-9]+)?$`)

// ValidKey reports whether key could have been issued by NewObject.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// KeyFromURL extracts the key from a reference produced by Object.URL.
func KeyFromURL(ref string) (string, bool) {
	key, ok := strings.CutPrefix(ref, URLPrefix)
	if !ok || !ValidKey(key) {
		return "", false
	}
	return key, true
}

// DetectContentType returns the declared type unless it is missing or
// generic, in which case the content is sniffed.
func DetectContentType(data []byte, declared string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && !strings.HasPrefix(declared, "application/octet-stream") {
		return declared
	}
	return mimetype.Detect(data).String()
}

// NewObject assigns a fresh key to an upload. The key carries the file
// extension matching the content type.
func NewObject(data []byte, filename, contentType string, now time.Time) (Object, error) {
	if len(data) == 0 {
		return Object{}, ErrEmpty
	}
	contentType = DetectContentType(data, contentType)

	key := uuid.NewString()
	if m := mimetype.Lookup(baseType(contentType)); m != nil {
		key += m.Extension()
	}

	return Object{
		Key:         key,
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   now.UTC(),
	}, nil
}

func baseType(contentType string) string {
	t, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(t))
}
