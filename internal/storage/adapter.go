// Package storage moves ePub packages between the rewriter and where they
// live: the local filesystem or an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get when no object exists at the path.
var ErrNotFound = errors.New("storage: object not found")

// Adapter defines the interface for storage backends
type Adapter interface {
	// Put stores data at the given path. Readers observe either the
	// previous object or the complete new one, never a partial write.
	Put(ctx context.Context, path string, data io.Reader) error

	// Get retrieves data from the given path
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists checks if data exists at the given path
	Exists(ctx context.Context, path string) (bool, error)

	// Close cleans up any resources
	Close() error
}
