// Package storage moves report files in and out of Google Cloud
// Storage. Inputs may arrive as gs:// URIs and finished exports can be
// pushed to a results bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// Service abstracts the object store so the pipeline can run against a
// test double.
type Service interface {
	Download(ctx context.Context, uri string) ([]byte, error)
	Upload(ctx context.Context, bucket, object, filePath string) error
	ListExports(ctx context.Context, bucket, prefix string) ([]string, error)
}

// GCS is the production Service backed by Google Cloud Storage. It
// assumes Application Default Credentials.
type GCS struct {
	client *gcs.Client
}

// NewGCS creates the client.
func NewGCS(ctx context.Context) (*GCS, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCS: create storage client: %w", err)
	}
	return &GCS{client: client}, nil
}

// Close releases the underlying client.
func (g *GCS) Close() error { return g.client.Close() }

// ParseURI splits a gs://bucket/object URI.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// IsURI reports whether the path refers to an object rather than a
// local file.
func IsURI(p string) bool { return strings.HasPrefix(p, "gs://") }

// Filename returns the base object name of a URI, or "" when the URI is
// malformed.
func Filename(uri string) string {
	_, object, err := ParseURI(uri)
	if err != nil {
		return ""
	}
	return path.Base(object)
}

// Download fetches the object bytes for a gs:// URI.
func (g *GCS) Download(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("Download: %w", err)
	}

	r, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Download: open object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("Download: read object: %w", err)
	}
	return data, nil
}

// Upload pushes a local file to the bucket under the given object name.
func (g *GCS) Upload(ctx context.Context, bucket, object, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("Upload: open file %q: %w", filePath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(bucket).Object(object).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return fmt.Errorf("Upload: copy file to object writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("Upload: finalize upload: %w", err)
	}
	return nil
}

// ListExports lists object names under a prefix, for surfacing
// previously exported result files.
func (g *GCS) ListExports(ctx context.Context, bucket, prefix string) ([]string, error) {
	it := g.client.Bucket(bucket).Objects(ctx, &gcs.Query{Prefix: prefix})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListExports: iterate objects: %w", err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}
