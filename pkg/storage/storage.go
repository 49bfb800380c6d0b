package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultSignedURLExpiry is applied when a store is configured without an expiry.
const DefaultSignedURLExpiry = 24 * time.Hour

const defaultContentType = "application/octet-stream"

// Object describes an uploaded file.
type Object struct {
	RemoteURL string
	SignedURL string
	ByteSize  int64
}

// Store uploads a local file under objectKey and returns its permanent and signed URLs.
type Store interface {
	Upload(ctx context.Context, localPath, objectKey string) (Object, error)
	Name() string
}

// ObjectKey builds the storage key used for a submission rendition.
func ObjectKey(prefix string, submissionID uint, mediaType, localPath string) string {
	ext := strings.ToLower(filepath.Ext(localPath))
	name := fmt.Sprintf("submission-%d-%s%s", submissionID, strings.ToLower(mediaType), ext)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// contentTypeFor sniffs the rendition on disk. Unreadable or unknown files upload as binary.
func contentTypeFor(localPath string) string {
	detected, err := mimetype.DetectFile(localPath)
	if err != nil {
		return defaultContentType
	}
	return detected.String()
}
