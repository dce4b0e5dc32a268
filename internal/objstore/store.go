// Package objstore abstracts the object storage operations the preview
// pipeline needs. One Store implementation is selected at startup: S3 for
// AWS deployments, GCS for Google Cloud, Memory for tests and dry runs.
//
// Completion markers are stored as object tags on S3 and as custom metadata
// on GCS; both surface through the same Tags type.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Provider identifies a storage backend.
type Provider string

const (
	ProviderS3     Provider = "s3"
	ProviderGCS    Provider = "gcs"
	ProviderMemory Provider = "memory"
)

// String returns the provider name.
func (p Provider) String() string { return string(p) }

// ObjectInfo is the metadata of one stored object.
type ObjectInfo struct {
	Container    string
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// ListOptions configures a List call.
type ListOptions struct {
	// Prefix filters keys. Empty lists the whole container.
	Prefix string
	// StartAfter is a strict lower bound: only keys > StartAfter are returned.
	// Keep it set when passing ContinuationToken; S3 ignores it then.
	StartAfter string
	// ContinuationToken resumes a previous listing.
	ContinuationToken string
	// MaxKeys limits the page size. Zero uses the backend default.
	MaxKeys int
}

// ListResult is one page of a listing, in lexicographic key order.
type ListResult struct {
	Objects           []ObjectInfo
	ContinuationToken string
	IsTruncated       bool
}

// Store is the storage capability interface.
type Store interface {
	Provider() Provider
	List(ctx context.Context, container string, opts ListOptions) (*ListResult, error)
	Head(ctx context.Context, container, key string) (*ObjectInfo, error)
	// GetRange reads length bytes starting at offset. A length <= 0 reads to the end.
	GetRange(ctx context.Context, container, key string, offset, length int64) ([]byte, error)
	Download(ctx context.Context, container, key, localPath string) error
	Put(ctx context.Context, container, key string, body io.Reader, contentType string) error
	GetTags(ctx context.Context, container, key string) (Tags, error)
	PutTags(ctx context.Context, container, key string, tags Tags) error
}

// URLSigner is implemented by stores that can hand out time-limited direct
// read URLs, letting external tools fetch ranges on demand.
type URLSigner interface {
	PresignGet(ctx context.Context, container, key string, ttl time.Duration) (string, error)
}

// PutFile uploads a local file.
func PutFile(ctx context.Context, s Store, container, key, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()
	return s.Put(ctx, container, key, f, contentType)
}

// Walk lists every object under opts, page by page, calling fn for each.
// Walking stops early when fn returns false or an error.
func Walk(ctx context.Context, s Store, container string, opts ListOptions, fn func(ObjectInfo) (bool, error)) error {
	for {
		page, err := s.List(ctx, container, opts)
		if err != nil {
			return err
		}
		for _, obj := range page.Objects {
			more, err := fn(obj)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
		if !page.IsTruncated || page.ContinuationToken == "" {
			return nil
		}
		opts.ContinuationToken = page.ContinuationToken
	}
}
