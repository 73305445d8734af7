package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// BlobStore keeps generated artifacts and metadata sidecars. Objects are
// addressed by a ref of the form "<bucket>/<key>".
type BlobStore interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	SignedURL(ctx context.Context, ref string, ttl time.Duration) (string, error)
	UploadSidecar(ctx context.Context, bucket, path string, data []byte) error
}

// ErrObjectNotFound is returned by Open for a ref with no object behind it.
var ErrObjectNotFound = errors.New("storage: object not found")

// JoinRef builds the ref for key in bucket.
func JoinRef(bucket, key string) string {
	return strings.Trim(bucket, "/") + "/" + strings.TrimLeft(key, "/")
}

// SplitRef splits ref into bucket and key.
func SplitRef(ref string) (bucket, key string, err error) {
	ref = strings.TrimLeft(strings.TrimSpace(ref), "/")
	bucket, key, ok := strings.Cut(ref, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", errors.New("storage: invalid object ref")
	}
	return bucket, key, nil
}
