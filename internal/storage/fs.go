package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FSObjectStore lays buckets out as directories under a root. It is meant
// for local development and tests.
type FSObjectStore struct {
	root   string
	bucket string
}

var _ ObjectStore = (*FSObjectStore)(nil)

func NewFSObjectStore(root, bucket string) (*FSObjectStore, error) {
	if err := os.MkdirAll(filepath.Join(root, bucket), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create bucket directory: %w", err)
	}
	return &FSObjectStore{root: root, bucket: bucket}, nil
}

func (f *FSObjectStore) Bucket() string {
	return f.bucket
}

// Path returns where an object lives on disk.
func (f *FSObjectStore) Path(bucket, key string) (string, error) {
	p := filepath.Join(f.root, bucket, key)
	rel, err := filepath.Rel(f.root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("object path %s/%s escapes the store root", bucket, key)
	}
	return p, nil
}

func (f *FSObjectStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	p, err := f.Path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	out, err := os.Create(p)
	if err != nil {
		return fmt.Errorf("failed to create object file: %w", err)
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		os.Remove(p)
		return fmt.Errorf("failed to write object file: %w", err)
	}
	return out.Close()
}

func (f *FSObjectStore) Delete(ctx context.Context, bucket, key string) error {
	p, err := f.Path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete object file: %w", err)
	}
	return nil
}
