package annotation

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsPersonToName(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 30, 0, 123_000_000, time.FixedZone("UTC+6", 6*3600))
	a := New("marker_1", "Alice", "Memorial hall", Position{Latitude: 43.1, Longitude: 87.2}, now)

	assert.Equal(t, "marker_1", a.ID)
	assert.Equal(t, "Alice", a.Person)
	assert.Equal(t, 43.1, a.Latitude)
	assert.Equal(t, 87.2, a.Longitude)
	assert.Equal(t, "2026-03-01T02:30:00.123Z", a.Timestamp)
	assert.False(t, a.HasImage())
	assert.False(t, a.HasVideo())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		a       Annotation
		wantErr bool
	}{
		{"valid", Annotation{Name: "A", Description: "B", Latitude: 43.1, Longitude: 87.2}, false},
		{"empty name", Annotation{Description: "B"}, true},
		{"blank description", Annotation{Name: "A", Description: "   "}, true},
		{"bad latitude", Annotation{Name: "A", Description: "B", Latitude: 91}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.a.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.NotEmpty(t, ve.Message)
		})
	}
}

func TestMediaKindFromMIME(t *testing.T) {
	tests := map[string]MediaKind{
		"image/png":                MediaImage,
		"IMAGE/JPEG":               MediaImage,
		"video/mp4":                MediaVideo,
		"application/octet-stream": MediaNone,
		"":                         MediaNone,
		"text/plain":               MediaNone,
	}
	for mime, want := range tests {
		assert.Equal(t, want, MediaKindFromMIME(mime), mime)
	}
}

func TestAttachMedia(t *testing.T) {
	var a Annotation
	a.AttachMedia(MediaImage, "/media/x")
	assert.Equal(t, "/media/x", a.Image)
	assert.Empty(t, a.Video)

	var b Annotation
	b.AttachMedia(MediaVideo, "/media/y")
	assert.Empty(t, b.Image)
	assert.Equal(t, "/media/y", b.Video)

	var c Annotation
	c.AttachMedia(MediaNone, "/media/z")
	assert.Empty(t, c.Image)
	assert.Empty(t, c.Video)
}

func TestIDGenerator_UniqueWithinSameMillisecond(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	g := NewIDGeneratorWithClock(func() time.Time { return fixed })

	assert.Equal(t, "marker_1700000000000", g.Next())
	assert.Equal(t, "marker_1700000000001", g.Next())
}

func TestIDGenerator_Concurrent(t *testing.T) {
	g := NewIDGenerator()
	const n = 200

	var mu sync.Mutex
	seen := make(map[string]struct{}, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.Next()
			mu.Lock()
			seen[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
}
