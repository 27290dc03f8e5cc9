package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// gcsChunkSize is the resumable-upload chunk size: 8 MiB, GCS's own
// recommended minimum for chunked uploads. The storage package's Writer
// implements the Content-Range partial-accept chunking loop internally;
// setting ChunkSize is what selects this chunked, resumable behavior over
// a single unbuffered PUT.
const gcsChunkSize = 8 * 1024 * 1024

// GCSTransport is a Transport backed by a GCS bucket and object-name
// prefix.
type GCSTransport struct {
	client *storage.Client
	bucket string
	prefix string
	root   string
}

// NewGCSTransport builds a GCSTransport for bucket/prefix, using httpClient
// for all requests.
func NewGCSTransport(ctx context.Context, bucket, prefix string, httpClient *http.Client) (*GCSTransport, error) {
	opts := []option.ClientOption{}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("transport: creating gcs client: %w", err)
	}
	trimmedPrefix := strings.Trim(prefix, "/")
	return &GCSTransport{
		client: client,
		bucket: bucket,
		prefix: trimmedPrefix,
		root:   fmt.Sprintf("gs://%s/%s", bucket, trimmedPrefix),
	}, nil
}

func (t *GCSTransport) Path() string { return t.root }

func (t *GCSTransport) fullKey(key string) string {
	if t.prefix == "" {
		return key
	}
	return path.Join(t.prefix, key)
}

func (t *GCSTransport) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj := t.client.Bucket(t.bucket).Object(t.fullKey(key))
	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: gs://%s/%s", ErrObjectNotFound, t.bucket, t.fullKey(key))
		}
		return nil, fmt.Errorf("transport: gcs NewReader %s: %w", key, err)
	}
	return r, nil
}

func (t *GCSTransport) Put(ctx context.Context, key string) (WriteCanceler, error) {
	uploadCtx, cancel := context.WithCancel(ctx)
	obj := t.client.Bucket(t.bucket).Object(t.fullKey(key))
	w := obj.NewWriter(uploadCtx)
	w.ChunkSize = gcsChunkSize
	return &gcsWriteStream{w: w, cancel: cancel}, nil
}

// gcsWriteStream wraps a *storage.Writer, whose Write/Close pair already
// implement the resumable, partial-accept chunked upload loop. CancelUpload
// cancels the writer's upload context rather than calling Close, which is
// how the resumable session is abandoned without creating a (possibly
// empty) object.
type gcsWriteStream struct {
	w      *storage.Writer
	cancel context.CancelFunc
	closed bool
}

func (w *gcsWriteStream) Write(p []byte) (int, error) {
	return w.w.Write(p)
}

func (w *gcsWriteStream) CompleteUpload(_ context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.w.Close(); err != nil {
		return fmt.Errorf("transport: finalizing gcs upload: %w", err)
	}
	return nil
}

func (w *gcsWriteStream) CancelUpload(_ context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.cancel()
	return nil
}
