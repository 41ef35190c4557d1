// Package storage defines the Backend interface for the bytes behind
// catalog entries. The catalog only tracks metadata; handlers and the
// reaper go through a Backend for the actual object I/O.
package storage

import (
	"context"
	"io"
)

// Backend is the interface for content storage backends. Keys are the
// collision-proof storage names assigned at publish time, never the
// user-visible display names.
type Backend interface {
	// PutObject writes content to the given key.
	PutObject(ctx context.Context, key string, body io.Reader, size int64) error

	// GetObject retrieves an object by key, returning its reader and size.
	GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error)

	// DeleteObject removes an object by key. Deleting a missing object is
	// not an error.
	DeleteObject(ctx context.Context, key string) error

	// Type returns the backend type identifier ("local", "s3").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}
