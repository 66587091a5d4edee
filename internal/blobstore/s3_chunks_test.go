package blobstore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
)

func TestS3ObjectKeyLayout(t *testing.T) {
	chunks := &S3Chunks{bucket: "deptcms", prefix: "cse"}
	for _, tc := range []struct {
		key  ChunkKey
		want string
	}{
		{ChunkKey{Bucket: "events", BlobID: "0192f3aa-0000-7000-8000-000000000001", N: 0}, "cse/events/0192f3aa-0000-7000-8000-000000000001/0"},
		{ChunkKey{Bucket: "banners", BlobID: "abc", N: 12}, "cse/banners/abc/12"},
	} {
		require.Equal(t, tc.want, chunks.objectKey(tc.key))
	}

	other := &S3Chunks{bucket: "deptcms", prefix: "ece"}
	key := ChunkKey{Bucket: "events", BlobID: "abc", N: 0}
	require.NotEqual(t, chunks.objectKey(key), other.objectKey(key))
}

func TestMapS3Error(t *testing.T) {
	plain := errors.New("connection reset")
	denied := minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}
	for _, tc := range []struct {
		name string
		err  error
		want error
	}{
		{"missing key", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, ErrChunkNotFound},
		{"access denied", denied, denied},
		{"transport", plain, plain},
	} {
		got := mapS3Error(tc.err)
		if tc.want == ErrChunkNotFound {
			require.ErrorIs(t, got, ErrChunkNotFound, tc.name)
			continue
		}
		require.Equal(t, tc.want, got, tc.name)
		require.NotErrorIs(t, got, ErrChunkNotFound, tc.name)
	}
}

func TestNewS3ChunksValidates(t *testing.T) {
	_, err := NewS3Client(S3Config{})
	require.Error(t, err)

	client, err := NewS3Client(S3Config{Endpoint: "127.0.0.1:9000", Region: "us-east-1", PathStyle: true})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = NewS3Chunks(ctx, nil, "deptcms", "", "cse")
	require.Error(t, err)
	_, err = NewS3Chunks(ctx, client, " ", "", "cse")
	require.Error(t, err)
	for _, prefix := range []string{"", "..", "a/b"} {
		_, err = NewS3Chunks(ctx, client, "deptcms", "", prefix)
		require.Error(t, err, prefix)
	}
}

func TestNewS3ChunksUsesExistingBucket(t *testing.T) {
	var heads, puts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			heads.Add(1)
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			puts.Add(1)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotImplemented)
		}
	}))
	defer srv.Close()

	client, err := NewS3Client(S3Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		Region:    "us-east-1",
		AccessKey: "key",
		SecretKey: "secret",
		PathStyle: true,
	})
	require.NoError(t, err)

	chunks, err := NewS3Chunks(context.Background(), client, "deptcms", "us-east-1", "cse")
	require.NoError(t, err)
	require.Equal(t, BackendS3, chunks.Backend())
	require.EqualValues(t, 1, heads.Load())
	require.Zero(t, puts.Load())
	require.NoError(t, chunks.DeleteChunks(context.Background(), "events", "abc", 0))
}
