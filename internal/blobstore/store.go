package blobstore

import (
	"context"
	"errors"
	"io"
)

// Store persists uploaded artifact archives so a later re-scan can re-fetch
// the original bytes after the temporary upload file is gone.
type Store interface {
	Put(ctx context.Context, projectID, name string, r io.Reader, size int64) error
	Get(ctx context.Context, projectID, name string) ([]byte, error)
	List(ctx context.Context, projectID string) ([]string, error)
}

var ErrNotFound = errors.New("blobstore: artifact not found")
