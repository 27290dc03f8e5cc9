// Package transport provides the keyed-object-store abstraction every
// batch read or write goes through: a local filesystem backend, an S3
// backend, and a GCS backend, selected by the URL scheme of the
// transport's root.
package transport

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by Get when the requested key does not
// exist in the store.
var ErrObjectNotFound = errors.New("transport: object not found")

// WriteCanceler is the append-only write stream returned by Put. Writes are
// not visible to readers until CompleteUpload succeeds; CancelUpload
// discards any partial cloud upload rather than leave orphaned storage
// charges. A stream abandoned without a call to either method is not
// cleaned up automatically.
type WriteCanceler interface {
	io.Writer

	// CompleteUpload finalizes the object, making it visible and durable.
	CompleteUpload(ctx context.Context) error

	// CancelUpload discards the in-progress upload. Safe to call after a
	// failed CompleteUpload; a no-op on backends where cancellation has
	// already happened implicitly.
	CancelUpload(ctx context.Context) error
}

// Transport represents a keyed object store rooted at some path: a local
// directory, an S3 bucket/prefix, or a GCS bucket/prefix. A Transport value
// may be shared across tasks (it holds no per-write mutable state); a
// WriteCanceler returned by Put is exclusively owned by its caller.
type Transport interface {
	// Get returns a sequential reader for an immutable object. Returns
	// ErrObjectNotFound if key does not exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Put returns a write stream for key. The object is not visible to
	// readers until the returned WriteCanceler's CompleteUpload is called.
	Put(ctx context.Context, key string) (WriteCanceler, error)

	// Path returns a human-readable description of this transport's root,
	// used in logs and error messages.
	Path() string
}

// ResolveScheme inspects root and returns which backend it names:
// `s3://{region}/{bucket}[/{prefix}]`, `gs://{bucket}[/{prefix}]`, anything
// else is a local filesystem path.
func ResolveScheme(root string) Scheme {
	switch {
	case len(root) >= 5 && root[:5] == "s3://":
		return SchemeS3
	case len(root) >= 5 && root[:5] == "gs://":
		return SchemeGCS
	default:
		return SchemeLocal
	}
}

// Scheme identifies which backend a root path names.
type Scheme int

const (
	SchemeLocal Scheme = iota
	SchemeS3
	SchemeGCS
)
