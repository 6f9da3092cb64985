// Package blob selects and re-exports the blob storage backends used for
// report artifacts.
package blob

import (
	"context"
	"fmt"

	"rocklandcensus/internal/blob/core"
	fsstore "rocklandcensus/internal/infra/blob/fs"
	memorystore "rocklandcensus/internal/infra/blob/memory"
	s3store "rocklandcensus/internal/infra/blob/s3"
)

type (
	Driver     = core.Driver
	PutOptions = core.PutOptions
	Info       = core.Info
	Store      = core.Store
	// S3Config configures the S3 backend.
	S3Config = s3store.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
)

// Config selects a backend.
type Config struct {
	Driver string
	FSRoot string
	S3     S3Config
}

// Open builds the configured store. An empty driver selects the filesystem.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch Driver(cfg.Driver) {
	case "", DriverFilesystem:
		return fsstore.New(cfg.FSRoot)
	case DriverS3:
		return s3store.New(ctx, cfg.S3)
	case DriverMemory:
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return memorystore.New() }

// NewMockS3ForTests returns an S3 store backed by a fake transport.
func NewMockS3ForTests() Store { return s3store.NewMockForTests() }
