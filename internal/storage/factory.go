package storage

import (
	"context"
	"fmt"

	"github.com/lanshare/lanshare/internal/config"
	"github.com/lanshare/lanshare/internal/storage/local"
	s3backend "github.com/lanshare/lanshare/internal/storage/s3"
)

// New creates the Backend selected by the configuration.
func New(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.StorageBackend {
	case "s3":
		return s3backend.New(ctx, s3backend.Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Region:    cfg.S3Region,
		})
	case "local":
		return local.New(local.Config{
			RootPath:   cfg.UploadDir,
			CreateDirs: true,
		})
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.StorageBackend)
	}
}
