// Package gcs opens reference files stored in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"cloud.google.com/go/storage"
)

// Scheme prefixes object names handled by this package.
const Scheme = "gs://"

// IsURI reports whether name is a gs:// URI.
func IsURI(name string) bool {
	return strings.HasPrefix(name, Scheme)
}

// ParseURI splits gs://bucket/object into its parts.
func ParseURI(uri string) (bucket, object string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("not a %s uri: %q", Scheme, uri)
	}
	rest := strings.TrimPrefix(uri, Scheme)
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("uri %q must name a bucket and an object", uri)
	}
	return bucket, object, nil
}

// Opener reads objects named by gs:// URIs.
type Opener struct {
	client *storage.Client
}

// New creates an Opener around client.
func New(client *storage.Client) (*Opener, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	return &Opener{client: client}, nil
}

// Open streams the object named by uri. A missing bucket or object yields an
// error wrapping fs.ErrNotExist.
func (o *Opener) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	r, err := o.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, fmt.Errorf("open %s: %w: %w", uri, fs.ErrNotExist, err)
		}
		return nil, fmt.Errorf("open %s: %w", uri, err)
	}
	return r, nil
}

// Close releases the underlying client.
func (o *Opener) Close() error {
	if err := o.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}
