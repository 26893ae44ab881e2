// Package objstore is Talemon's Object Store collaborator: an
// append-only, content-addressed blob repository keyed by hierarchical
// path (spec §6). The core never deletes or overwrites a blob it has
// written; every path is unique by construction (url hash + capture
// timestamp).
package objstore

import (
	"context"
	"io"
)

// Store is the minimal blob interface the worker and extractor need.
// Abstracting behind an interface (rather than a concrete *s3.Client)
// lets tests substitute an in-memory fake without touching a network.
type Store interface {
	// Put uploads body under key, replacing it if it already exists
	// (the core never re-uses a key, but Put is not required to enforce
	// that itself).
	Put(ctx context.Context, key string, body io.Reader, size int64) error
	// Get retrieves the blob at key. Callers must Close the returned
	// reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Exists reports whether a blob is present at key.
	Exists(ctx context.Context, key string) (bool, error)
}
