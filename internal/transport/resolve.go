package transport

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Open resolves root and returns the matching transport:
// `s3://{region}/{bucket}[/{prefix}]`, `gs://{bucket}[/{prefix}]`, or a
// local filesystem path for anything else. httpClient (typically
// retry.NewHTTPClient's result) configures the underlying SDK clients for
// the cloud backends; it is ignored for the local backend.
func Open(ctx context.Context, root string, httpClient *http.Client) (Transport, error) {
	switch ResolveScheme(root) {
	case SchemeS3:
		region, bucket, prefix, err := parseS3Root(root)
		if err != nil {
			return nil, err
		}
		return NewS3Transport(ctx, region, bucket, prefix, httpClient)
	case SchemeGCS:
		bucket, prefix, err := parseGCSRoot(root)
		if err != nil {
			return nil, err
		}
		return NewGCSTransport(ctx, bucket, prefix, httpClient)
	default:
		return NewLocalTransport(root), nil
	}
}

func parseS3Root(root string) (region, bucket, prefix string, err error) {
	rest := strings.TrimPrefix(root, "s3://")
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("transport: malformed s3 root %q, want s3://{region}/{bucket}[/{prefix}]", root)
	}
	region, bucket = parts[0], parts[1]
	if len(parts) == 3 {
		prefix = parts[2]
	}
	return region, bucket, prefix, nil
}

func parseGCSRoot(root string) (bucket, prefix string, err error) {
	rest := strings.TrimPrefix(root, "gs://")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) < 1 || parts[0] == "" {
		return "", "", fmt.Errorf("transport: malformed gs root %q, want gs://{bucket}[/{prefix}]", root)
	}
	bucket = parts[0]
	if len(parts) == 2 {
		prefix = parts[1]
	}
	return bucket, prefix, nil
}
