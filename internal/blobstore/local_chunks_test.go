package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalChunksPutGetDelete(t *testing.T) {
	root := t.TempDir()
	chunks, err := NewLocalChunks(root)
	require.NoError(t, err)
	ctx := context.Background()

	key := ChunkKey{Bucket: "events", BlobID: "0192f3aa-0000-7000-8000-000000000001", N: 0}
	require.NoError(t, chunks.PutChunk(ctx, key, []byte("payload")))

	data, err := chunks.GetChunk(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), data)

	_, err = os.Stat(filepath.Join(root, "events", "01", key.BlobID, "0"))
	require.NoError(t, err)

	require.NoError(t, chunks.DeleteChunks(ctx, "events", key.BlobID, 1))
	_, err = chunks.GetChunk(ctx, key)
	require.ErrorIs(t, err, ErrChunkNotFound)

	require.NoError(t, chunks.DeleteChunks(ctx, "events", key.BlobID, 1))
}

func TestLocalChunksRejectsTraversal(t *testing.T) {
	chunks, err := NewLocalChunks(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	cases := []ChunkKey{
		{Bucket: "..", BlobID: "abcd"},
		{Bucket: "events", BlobID: "../etc"},
		{Bucket: "a/b", BlobID: "abcd"},
		{Bucket: "events", BlobID: "x"},
		{Bucket: "", BlobID: "abcd"},
	}
	for _, key := range cases {
		require.Error(t, chunks.PutChunk(ctx, key, []byte("x")), "key %+v", key)
	}
}

func TestNewLocalChunksRequiresRoot(t *testing.T) {
	_, err := NewLocalChunks("  ")
	require.Error(t, err)
}
