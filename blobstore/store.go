// Package blobstore provides read access to the immutable dataset files
// (score tables, quantization bins, feature vectors).
//
// Built-in implementations:
//
//   - LocalStore: local filesystem
//   - MemoryStore: in-memory, for tests
//   - minio.Store: MinIO and S3-compatible object storage
//   - s3.Store: Amazon S3
//
// Implementations must be safe for concurrent use.
package blobstore

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a blob does not exist.
// Implementations return an error satisfying errors.Is(err, ErrNotFound).
var ErrNotFound = os.ErrNotExist

// BlobStore is an abstraction for accessing data blobs.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Put writes a blob atomically.
	Put(ctx context.Context, name string, data []byte) error
	// List returns the sorted names of the blobs starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	io.Closer
	// Size returns the size of the blob in bytes.
	Size() int64
	// ReadRange returns a reader over length bytes starting at off.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
}

// ReadAll returns the content of the named blob.
func ReadAll(ctx context.Context, store BlobStore, name string) ([]byte, error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	rc, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", name)
	}
	return data, nil
}
