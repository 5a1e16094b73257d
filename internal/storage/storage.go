package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Size when no artifact exists under the reference
var ErrNotFound = errors.New("storage: artifact not found")

// ArtifactStore holds generated audio artifacts. References returned by Write
// are relative keys such as audio/audio_1700000000000_ab12cd34.mp3.
type ArtifactStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	Exists(ctx context.Context, ref string) (bool, error)
	Size(ctx context.Context, ref string) (int64, error)
	// Delete removes the artifact. A missing artifact is not an error.
	Delete(ctx context.Context, ref string) error
	// URL maps a reference to the address clients download it from
	URL(ref string) string
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

func joinURL(base, ref string) string {
	return strings.TrimRight(base, "/") + "/" + ref
}
