package blobstore

import (
	"context"
	"errors"
)

// ErrChunkNotFound is returned by a ChunkStore for an absent chunk.
var ErrChunkNotFound = errors.New("chunk not found")

// ChunkKey addresses chunk N of one blob within a bucket.
type ChunkKey struct {
	Bucket string
	BlobID string
	N      int
}

// ChunkStore persists fixed-size chunk payloads. Implementations must not
// retain data after PutChunk returns. Deleting absent chunks is not an error.
type ChunkStore interface {
	Backend() string
	PutChunk(ctx context.Context, key ChunkKey, data []byte) error
	GetChunk(ctx context.Context, key ChunkKey) ([]byte, error)
	DeleteChunks(ctx context.Context, bucket, blobID string, count int) error
}
