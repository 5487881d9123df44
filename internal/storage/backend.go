// Package storage defines the object-store contract used for the preview cache
// tree and the richer filesystem contract used for the managed files tree.
package storage

import (
	"bytes"
	"context"
	"io"
	"io/fs"
)

// Backend is the interface for object storage backends. Keys are slash
// separated and relative to the backend root. A missing object is reported
// with an error wrapping fs.ErrNotExist.
type Backend interface {
	// GetObject retrieves an object by key with optional range support.
	// If offset=0 and length=0, the entire object is returned.
	GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error)

	// PutObject stores content at key. Readers never observe a partially
	// written object.
	PutObject(ctx context.Context, key string, body io.Reader, size int64) error

	// DeleteObject removes an object. Deleting a missing key is not an error.
	DeleteObject(ctx context.Context, key string) error

	// DeletePrefix removes every object under prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// CopyObject copies an object from srcKey to dstKey.
	CopyObject(ctx context.Context, srcKey, dstKey string) error

	// ObjectExists checks if an object exists at the given key.
	ObjectExists(ctx context.Context, key string) (bool, error)

	// Type returns the backend type identifier ("local", "s3").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// FileSystem is a Backend that also understands directories. The managed
// files tree needs one; the cache tree only needs a Backend.
type FileSystem interface {
	Backend

	// Stat describes a file or directory.
	Stat(ctx context.Context, key string) (fs.FileInfo, error)

	// List returns the direct children of a directory.
	List(ctx context.Context, dir string) ([]fs.FileInfo, error)

	// MakeDir creates a directory and any missing parents.
	MakeDir(ctx context.Context, key string) error

	// Move renames a file or directory.
	Move(ctx context.Context, srcKey, dstKey string) error

	// CopyDir copies a directory tree.
	CopyDir(ctx context.Context, srcKey, dstKey string) error

	// DeleteAll removes a file or a directory tree. Missing keys are ignored.
	DeleteAll(ctx context.Context, key string) error

	// Dir returns the root of the tree on disk.
	Dir() string
}

// Getter is the read half of a Backend.
type Getter interface {
	GetObject(ctx context.Context, key string, offset, length int64) (io.ReadCloser, int64, error)
}

// ReadAll reads an entire object.
func ReadAll(ctx context.Context, g Getter, key string) ([]byte, error) {
	rc, _, err := g.GetObject(ctx, key, 0, 0)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// PutBytes stores data at key.
func PutBytes(ctx context.Context, b Backend, key string, data []byte) error {
	return b.PutObject(ctx, key, bytes.NewReader(data), int64(len(data)))
}
