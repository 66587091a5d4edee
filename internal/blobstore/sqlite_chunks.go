package blobstore

import (
	"context"
	"database/sql"
	"fmt"
)

const BackendSQLite = "sqlite"

// SQLiteChunks keeps chunk payloads in the tenant database next to the metadata.
type SQLiteChunks struct {
	db *sql.DB
}

func NewSQLiteChunks(db *sql.DB) (*SQLiteChunks, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite chunk store: database is required")
	}
	return &SQLiteChunks{db: db}, nil
}

func (c *SQLiteChunks) Backend() string {
	return BackendSQLite
}

func (c *SQLiteChunks) PutChunk(ctx context.Context, key ChunkKey, data []byte) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO blob_chunks (bucket, blob_id, n, data)
		VALUES (?, ?, ?, ?)
	`, key.Bucket, key.BlobID, key.N, data)
	return err
}

func (c *SQLiteChunks) GetChunk(ctx context.Context, key ChunkKey) ([]byte, error) {
	var data []byte
	err := c.db.QueryRowContext(ctx, `
		SELECT data FROM blob_chunks WHERE bucket = ? AND blob_id = ? AND n = ?
	`, key.Bucket, key.BlobID, key.N).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrChunkNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *SQLiteChunks) DeleteChunks(ctx context.Context, bucket, blobID string, _ int) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM blob_chunks WHERE bucket = ? AND blob_id = ?`, bucket, blobID)
	return err
}

// CountChunks returns the number of stored chunk rows for a blob.
func (c *SQLiteChunks) CountChunks(ctx context.Context, bucket, blobID string) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM blob_chunks WHERE bucket = ? AND blob_id = ?
	`, bucket, blobID).Scan(&count)
	return count, err
}
