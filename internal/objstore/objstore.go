// Package objstore abstracts persistent storage of uploaded receipt images.
package objstore

import (
	"context"
	"io"
)

// ObjectStore stores receipt images by path-like key. Keys are produced by
// Save and later handed to the ingestion pipeline as the bill's storagePath.
type ObjectStore interface {
	Save(ctx context.Context, prefix, mimeType string, r io.Reader) (storagePath string, err error)
	Get(ctx context.Context, storagePath string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, storagePath string) error
}
