package blob

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// Object is a stored artifact opened for reading.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// ObjectStore is the binary artifact store. Raw put/get semantics live in the
// backing service; this interface only carries what the gateway and the
// webhook need.
type ObjectStore interface {
	Put(ctx context.Context, key Key, contentType string, body io.Reader) error
	Get(ctx context.Context, key Key) (*Object, error)
	// Delete is best-effort cleanup; deleting a missing object is not an error.
	Delete(ctx context.Context, key Key) error
}

// ContentTypeForKey guesses a content type from the key's extension, limited
// to the artifact kinds this system stores.
func ContentTypeForKey(key string) string {
	switch {
	case strings.HasSuffix(key, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(key, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(key, ".webm"):
		return "audio/webm"
	case strings.HasSuffix(key, ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(key, ".m4a"):
		return "audio/mp4"
	case strings.HasSuffix(key, ".png"):
		return "image/png"
	case strings.HasSuffix(key, ".jpg"), strings.HasSuffix(key, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(key, ".webp"):
		return "image/webp"
	}
	return "application/octet-stream"
}
