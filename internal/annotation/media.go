package annotation

import "strings"

// MediaKind classifies an uploaded file.
type MediaKind int

const (
	MediaNone MediaKind = iota
	MediaImage
	MediaVideo
)

func (k MediaKind) String() string {
	switch k {
	case MediaImage:
		return "image"
	case MediaVideo:
		return "video"
	default:
		return "none"
	}
}

// MediaKindFromMIME maps image/* and video/* to their kinds; anything else is MediaNone.
func MediaKindFromMIME(mime string) MediaKind {
	mime = strings.ToLower(strings.TrimSpace(mime))
	switch {
	case strings.HasPrefix(mime, "image/"):
		return MediaImage
	case strings.HasPrefix(mime, "video/"):
		return MediaVideo
	default:
		return MediaNone
	}
}

// AttachMedia sets the image or video reference according to kind.
func (a *Annotation) AttachMedia(kind MediaKind, ref string) {
	switch kind {
	case MediaImage:
		a.Image = ref
	case MediaVideo:
		a.Video = ref
	}
}
