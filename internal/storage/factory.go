package storage

import (
	"context"
	"fmt"

	"github.com/flmngr/flmngr-server-go/internal/storage/local"
	s3backend "github.com/flmngr/flmngr-server-go/internal/storage/s3"
)

// NewFiles opens the managed files tree. It must already exist.
func NewFiles(root string) (FileSystem, error) {
	return local.New(local.Config{RootPath: root})
}

// NewCache creates the cache tree backend by type. The local cache root is
// created on demand.
func NewCache(ctx context.Context, backendType, localRoot string, s3cfg s3backend.Config) (Backend, error) {
	switch backendType {
	case "", "local":
		return local.New(local.Config{RootPath: localRoot, CreateDirs: true})
	case "s3":
		return s3backend.New(ctx, s3cfg)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", backendType)
	}
}
