package tenant

import (
	"context"
	"database/sql"
	"path/filepath"

	"github.com/minio/minio-go/v7"

	"deptcms/internal/blobstore"
)

// SQLiteChunks keeps chunks inside each tenant database.
func SQLiteChunks() ChunkFactory {
	return func(_ context.Context, _ string, db *sql.DB) (blobstore.ChunkStore, error) {
		return blobstore.NewSQLiteChunks(db)
	}
}

// LocalChunks gives every tenant its own directory under root.
func LocalChunks(root string) ChunkFactory {
	return func(_ context.Context, key string, _ *sql.DB) (blobstore.ChunkStore, error) {
		return blobstore.NewLocalChunks(filepath.Join(root, key))
	}
}

// S3Chunks shares one S3 bucket between tenants, prefixed by tenant key.
func S3Chunks(client *minio.Client, bucket, region string) ChunkFactory {
	return func(ctx context.Context, key string, _ *sql.DB) (blobstore.ChunkStore, error) {
		return blobstore.NewS3Chunks(ctx, client, bucket, region, key)
	}
}
