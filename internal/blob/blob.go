// Package blob stores uploaded audio in an object store bucket or a local
// directory behind one narrow interface.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/zulandar/minutes/internal/config"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("blob: not found")

// Store is the contract the pipeline and intake need from object storage.
// All keys are scoped to one bucket or directory.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	// Get opens the object for reading. The caller must close it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Put stores size bytes from r under key and returns the key.
	Put(ctx context.Context, key string, r io.Reader, size int64) (string, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Open builds the Store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Backend {
	case "s3":
		return NewS3Store(ctx, S3Options{
			Endpoint:  cfg.Endpoint,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
		})
	case "fs":
		return NewFSStore(cfg.Dir)
	default:
		return nil, fmt.Errorf("blob: unsupported backend %q", cfg.Backend)
	}
}
