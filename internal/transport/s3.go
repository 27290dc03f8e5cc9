package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Transport is a Transport backed by an S3 bucket and key prefix.
// Uploads go through the AWS SDK's multipart manager.Uploader, which
// splits a streamed write into ≥5 MiB parts and aborts the multipart
// upload on any part failure.
type S3Transport struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
	root     string
}

// NewS3Transport builds an S3Transport for bucket/prefix in region,
// using httpClient for all requests (see internal/retry.NewHTTPClient for
// the retry policy applied to idempotent reads).
func NewS3Transport(ctx context.Context, region, bucket, prefix string, httpClient *http.Client) (*S3Transport, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if httpClient != nil {
		opts = append(opts, awsconfig.WithHTTPClient(httpClient))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("transport: loading aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Transport{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		root:     fmt.Sprintf("s3://%s/%s/%s", region, bucket, strings.Trim(prefix, "/")),
	}, nil
}

func (t *S3Transport) Path() string { return t.root }

func (t *S3Transport) fullKey(key string) string {
	if t.prefix == "" {
		return key
	}
	return path.Join(t.prefix, key)
}

func (t *S3Transport) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &t.bucket,
		Key:    awsString(t.fullKey(key)),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrObjectNotFound, t.bucket, t.fullKey(key))
		}
		return nil, fmt.Errorf("transport: s3 GetObject %s: %w", key, err)
	}
	return out.Body, nil
}

func (t *S3Transport) Put(ctx context.Context, key string) (WriteCanceler, error) {
	pr, pw := io.Pipe()
	uploadCtx, cancel := context.WithCancel(ctx)

	stream := &s3WriteStream{pw: pw, cancel: cancel, done: make(chan error, 1)}

	go func() {
		_, err := t.uploader.Upload(uploadCtx, &s3.PutObjectInput{
			Bucket: &t.bucket,
			Key:    awsString(t.fullKey(key)),
			Body:   pr,
		})
		stream.done <- err
	}()

	return stream, nil
}

// s3WriteStream streams writes into an io.Pipe that manager.Uploader reads
// from concurrently. CompleteUpload closes the pipe and waits for the
// upload goroutine; CancelUpload cancels the upload's context, which the
// SDK surfaces as an error and aborts the in-progress multipart upload.
type s3WriteStream struct {
	pw     *io.PipeWriter
	cancel context.CancelFunc
	done   chan error
	closed bool
}

func (w *s3WriteStream) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *s3WriteStream) CompleteUpload(_ context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.pw.Close(); err != nil {
		return fmt.Errorf("transport: closing s3 upload pipe: %w", err)
	}
	if err := <-w.done; err != nil {
		return fmt.Errorf("transport: completing s3 multipart upload: %w", err)
	}
	return nil
}

func (w *s3WriteStream) CancelUpload(_ context.Context) error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.cancel()
	w.pw.CloseWithError(errS3UploadCanceled)
	<-w.done
	return nil
}

var errS3UploadCanceled = errors.New("transport: s3 upload canceled")

func awsString(s string) *string { return &s }
