package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"deptcms/internal/blobstore"
	"deptcms/internal/config"
	"deptcms/internal/store"
	"deptcms/internal/tenant"
)

func openControlStore(cfg *config.Config) (*store.Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return store.Open(cfg.ControlDBPath())
}

// chunkFactory picks the chunk backend named by storage.backend.
func chunkFactory(cfg *config.Config) (tenant.ChunkFactory, error) {
	switch cfg.Storage.Backend {
	case "", config.BackendSQLite:
		return tenant.SQLiteChunks(), nil
	case config.BackendLocal:
		return tenant.LocalChunks(cfg.ChunkRoot()), nil
	case config.BackendS3:
		s3 := cfg.Storage.S3
		client, err := blobstore.NewS3Client(blobstore.S3Config{
			Endpoint:  s3.Endpoint,
			Region:    s3.Region,
			Bucket:    s3.Bucket,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			UseSSL:    s3.UseSSL,
			PathStyle: s3.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return tenant.S3Chunks(client, s3.Bucket, s3.Region), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func openRegistry(_ context.Context, cfg *config.Config, dir tenant.Directory, observer blobstore.Observer, logger *slog.Logger) (*tenant.Registry, error) {
	chunks, err := chunkFactory(cfg)
	if err != nil {
		return nil, err
	}
	return tenant.NewRegistry(dir, tenant.Options{
		Dir:       cfg.TenantDir(),
		ChunkSize: cfg.Storage.ChunkSize,
		Chunks:    chunks,
		Observer:  observer,
		Logger:    logger,
	})
}
