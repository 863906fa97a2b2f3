// Package storage archives published competition results and other exported
// documents.
//
// Two backends implement Storage:
// - LocalStorage writes under a directory on disk (development, tests)
// - R2Storage writes to a Cloudflare R2 bucket through the S3 API
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Storage is an object store keyed by slash-separated paths.
type Storage interface {
	// Put writes data at key. Unless opts.Overwrite is set, an existing key
	// yields ErrKeyExists.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get opens the object at key. The caller closes the reader.
	// Returns ErrNotFound if nothing is stored there.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns a link to key. A zero expires asks for a permanent URL
	// where the backend can provide one.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)

	// Exists reports whether key is stored.
	Exists(ctx context.Context, key string) (bool, error)
}

// PutOptions configures a single write.
type PutOptions struct {
	// ContentType is detected from the key when empty.
	ContentType string

	// MaxSize rejects bodies larger than this many bytes. Zero disables it.
	MaxSize int64

	Overwrite bool
	Public    bool
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// LocalConfig configures LocalStorage.
type LocalConfig struct {
	BasePath string // e.g. "./data/archive"
	BaseURL  string // e.g. "http://localhost:8080/archive"
}

// R2Config configures R2Storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// PublicURL is the bucket's public domain. When empty every URL is
	// presigned.
	PublicURL string

	// Region defaults to "auto".
	Region string
}

const (
	ProviderLocal = "local"
	ProviderR2    = "r2"
)

// ResultsKey is where a competition's published results snapshot lives.
// Format: results/{slug}.json
func ResultsKey(slug string) string {
	return fmt.Sprintf("results/%s.json", strings.Trim(slug, "/"))
}

// AssessmentKey is where the raw model output for one story assessment is
// kept for audit. Format: assessments/{storyID}/{unix}.json
func AssessmentKey(storyID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("assessments/%s/%d.json", storyID, at.Unix())
}

// validKey rejects empty keys and path traversal.
func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return ErrInvalidKey
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}
