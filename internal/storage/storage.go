package storage

import (
	"context"
	"io"
)

// ObjectStore holds the video payloads. Objects are addressed by bucket and key
// so a stored file_path can be deleted even if the configured bucket changed.
type ObjectStore interface {
	// Bucket is where new uploads are written.
	Bucket() string
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
	// Delete succeeds when the object is already gone.
	Delete(ctx context.Context, bucket, key string) error
}
