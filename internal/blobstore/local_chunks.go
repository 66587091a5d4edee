package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const BackendLocal = "local"

// LocalChunks stores one file per chunk under <root>/<bucket>/<id[:2]>/<id>/<n>.
type LocalChunks struct {
	root string
}

// NewLocalChunks creates a chunk tree rooted at root.
func NewLocalChunks(root string) (*LocalChunks, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local chunk root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0o755); err != nil {
		return nil, err
	}
	return &LocalChunks{root: abs}, nil
}

func (c *LocalChunks) Backend() string {
	return BackendLocal
}

// PutChunk writes to a temp file then renames it into place.
func (c *LocalChunks) PutChunk(ctx context.Context, key ChunkKey, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := c.blobDir(key.Bucket, key.BlobID)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Join(c.root, "tmp"), "chunk-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, strconv.Itoa(key.N))); err != nil {
		cleanup()
		return err
	}
	return nil
}

func (c *LocalChunks) GetChunk(ctx context.Context, key ChunkKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := c.blobDir(key.Bucket, key.BlobID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, strconv.Itoa(key.N)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrChunkNotFound
	}
	return data, err
}

// DeleteChunks removes the blob's chunk directory. Missing directories are ignored.
func (c *LocalChunks) DeleteChunks(ctx context.Context, bucket, blobID string, _ int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := c.blobDir(bucket, blobID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func (c *LocalChunks) blobDir(bucket, blobID string) (string, error) {
	if err := validPathSegment("bucket", bucket); err != nil {
		return "", err
	}
	if err := validPathSegment("blob id", blobID); err != nil {
		return "", err
	}
	if len(blobID) < 2 {
		return "", fmt.Errorf("invalid blob id")
	}
	return filepath.Join(c.root, bucket, blobID[:2], blobID), nil
}

func validPathSegment(label, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%s is required", label)
	}
	if value == "." || value == ".." || strings.ContainsAny(value, `/\`) || strings.Contains(value, "..") {
		return fmt.Errorf("invalid %s", label)
	}
	return nil
}
