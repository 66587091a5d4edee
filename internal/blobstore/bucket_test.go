package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"deptcms/internal/store"
)

func openTenantDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.OpenDB(filepath.Join(t.TempDir(), "tenant.db"), store.TenantMigrations)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newSQLiteBucket(t *testing.T, db *sql.DB, name string, chunkSize int) (*Bucket, *SQLiteChunks) {
	t.Helper()
	chunks, err := NewSQLiteChunks(db)
	require.NoError(t, err)
	bucket, err := NewBucket(db, name, chunks, Options{ChunkSize: chunkSize})
	require.NoError(t, err)
	return bucket, chunks
}

func writeBlob(t *testing.T, b *Bucket, filename string, content []byte) Meta {
	t.Helper()
	ws, err := b.OpenWriteStream(context.Background(), filename, "text/plain")
	require.NoError(t, err)
	_, err = ws.Write(content)
	require.NoError(t, err)
	require.NoError(t, ws.Close())
	meta, err := ws.Wait(context.Background())
	require.NoError(t, err)
	return meta
}

func readBlob(t *testing.T, b *Bucket, id string) []byte {
	t.Helper()
	rc, _, err := b.OpenReadStream(context.Background(), id)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func TestBucketRoundTripAcrossChunks(t *testing.T) {
	db := openTenantDB(t)
	bucket, chunks := newSQLiteBucket(t, db, "events", 4)

	content := []byte("hello chunked world")
	meta := writeBlob(t, bucket, "1700000000000-poster.txt", content)

	sum := sha256.Sum256(content)
	require.Equal(t, int64(len(content)), meta.Length)
	require.Equal(t, 5, meta.ChunkCount)
	require.Equal(t, 4, meta.ChunkSize)
	require.Equal(t, hex.EncodeToString(sum[:]), meta.SHA256)
	require.Equal(t, "text/plain", meta.ContentType)
	require.Equal(t, BackendSQLite, meta.Backend)
	require.True(t, store.ValidID(meta.ID))

	stored, err := chunks.CountChunks(context.Background(), "events", meta.ID)
	require.NoError(t, err)
	require.Equal(t, 5, stored)

	require.Equal(t, content, readBlob(t, bucket, meta.ID))

	got, err := bucket.Stat(context.Background(), meta.ID)
	require.NoError(t, err)
	require.Equal(t, meta.Filename, got.Filename)
	require.Equal(t, meta.SHA256, got.SHA256)
}

func TestBucketEmptyBlob(t *testing.T) {
	db := openTenantDB(t)
	bucket, _ := newSQLiteBucket(t, db, "about", 8)

	meta := writeBlob(t, bucket, "empty.bin", nil)
	require.Equal(t, int64(0), meta.Length)
	require.Equal(t, 0, meta.ChunkCount)
	require.Empty(t, readBlob(t, bucket, meta.ID))
}

func TestBucketDefaultsContentType(t *testing.T) {
	db := openTenantDB(t)
	bucket, _ := newSQLiteBucket(t, db, "labs", 0)

	ws, err := bucket.OpenWriteStream(context.Background(), "raw", "  ")
	require.NoError(t, err)
	require.NoError(t, ws.Close())
	meta, err := ws.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, DefaultContentType, meta.ContentType)
	require.Equal(t, DefaultChunkSize, meta.ChunkSize)
}

func TestOpenWriteStreamRequiresFilename(t *testing.T) {
	db := openTenantDB(t)
	bucket, _ := newSQLiteBucket(t, db, "labs", 0)

	_, err := bucket.OpenWriteStream(context.Background(), " ", "image/png")
	require.Error(t, err)
}

func TestBucketDeleteTwice(t *testing.T) {
	db := openTenantDB(t)
	bucket, chunks := newSQLiteBucket(t, db, "events", 4)

	meta := writeBlob(t, bucket, "a.txt", []byte("abcdefgh"))
	require.NoError(t, bucket.Delete(context.Background(), meta.ID))

	_, err := bucket.Stat(context.Background(), meta.ID)
	require.ErrorIs(t, err, ErrBlobNotFound)
	stored, err := chunks.CountChunks(context.Background(), "events", meta.ID)
	require.NoError(t, err)
	require.Zero(t, stored)

	require.ErrorIs(t, bucket.Delete(context.Background(), meta.ID), ErrBlobNotFound)
}

func TestBucketsAreIsolated(t *testing.T) {
	db := openTenantDB(t)
	events, _ := newSQLiteBucket(t, db, "events", 4)
	labs, _ := newSQLiteBucket(t, db, "labs", 4)

	meta := writeBlob(t, events, "shared.txt", []byte("event bytes"))

	_, err := labs.Stat(context.Background(), meta.ID)
	require.ErrorIs(t, err, ErrBlobNotFound)
	_, _, err = labs.OpenReadStream(context.Background(), meta.ID)
	require.ErrorIs(t, err, ErrBlobNotFound)
	require.ErrorIs(t, labs.Delete(context.Background(), meta.ID), ErrBlobNotFound)

	found, err := labs.StatByFilename(context.Background(), "shared.txt")
	require.NoError(t, err)
	require.Nil(t, found)

	require.Equal(t, []byte("event bytes"), readBlob(t, events, meta.ID))
}

func TestBucketFilenameLookups(t *testing.T) {
	db := openTenantDB(t)
	bucket, _ := newSQLiteBucket(t, db, "banners", 0)

	first := writeBlob(t, bucket, "slide.png", []byte("one"))
	second := writeBlob(t, bucket, "slide.png", []byte("two"))
	writeBlob(t, bucket, "other.png", []byte("three"))

	latest, err := bucket.StatByFilename(context.Background(), "slide.png")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, second.ID, latest.ID)

	all, err := bucket.ListByFilename(context.Background(), "slide.png")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, first.ID, all[0].ID)
	require.Equal(t, second.ID, all[1].ID)

	missing, err := bucket.StatByFilename(context.Background(), "nope.png")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestBucketListPages(t *testing.T) {
	db := openTenantDB(t)
	bucket, _ := newSQLiteBucket(t, db, "programs", 0)

	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		ids = append(ids, writeBlob(t, bucket, name, []byte(name)).ID)
	}

	page, err := bucket.List(context.Background(), ListQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, ids[:2], []string{page[0].ID, page[1].ID})

	rest, err := bucket.List(context.Background(), ListQuery{AfterID: page[1].ID})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, ids[2], rest[0].ID)

	old, err := bucket.List(context.Background(), ListQuery{CreatedBefore: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	require.Empty(t, old)
}

func TestWriteStreamAbortLeavesNothing(t *testing.T) {
	db := openTenantDB(t)
	bucket, chunks := newSQLiteBucket(t, db, "events", 4)

	ws, err := bucket.OpenWriteStream(context.Background(), "partial.bin", "")
	require.NoError(t, err)
	_, err = ws.Write([]byte("0123456789"))
	require.NoError(t, err)

	cause := errors.New("client went away")
	ws.Abort(cause)

	_, err = ws.Wait(context.Background())
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	require.Equal(t, ws.ID(), writeErr.BlobID)
	require.Equal(t, "partial.bin", writeErr.Filename)

	_, err = bucket.Stat(context.Background(), ws.ID())
	require.ErrorIs(t, err, ErrBlobNotFound)
	stored, err := chunks.CountChunks(context.Background(), "events", ws.ID())
	require.NoError(t, err)
	require.Zero(t, stored)
}

func TestWriteStreamContextCancel(t *testing.T) {
	db := openTenantDB(t)
	bucket, chunks := newSQLiteBucket(t, db, "labs", 4)

	ctx, cancel := context.WithCancel(context.Background())
	ws, err := bucket.OpenWriteStream(ctx, "cancelled.bin", "")
	require.NoError(t, err)
	_, err = ws.Write([]byte("0123456789"))
	require.NoError(t, err)

	cancel()

	select {
	case <-ws.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("write stream did not finish after cancel")
	}
	_, err = ws.Wait(context.Background())
	require.Error(t, err)

	_, err = bucket.Stat(context.Background(), ws.ID())
	require.ErrorIs(t, err, ErrBlobNotFound)
	stored, err := chunks.CountChunks(context.Background(), "labs", ws.ID())
	require.NoError(t, err)
	require.Zero(t, stored)
}

type failingChunks struct {
	ChunkStore
	err error
}

func (f failingChunks) PutChunk(context.Context, ChunkKey, []byte) error {
	return f.err
}

func TestFailedStreamDoesNotAffectSibling(t *testing.T) {
	db := openTenantDB(t)
	good, _ := newSQLiteBucket(t, db, "events", 4)
	sqliteChunks, err := NewSQLiteChunks(db)
	require.NoError(t, err)
	boom := errors.New("disk full")
	bad, err := NewBucket(db, "events", failingChunks{ChunkStore: sqliteChunks, err: boom}, Options{ChunkSize: 4})
	require.NoError(t, err)

	okStream, err := good.OpenWriteStream(context.Background(), "ok.txt", "")
	require.NoError(t, err)
	badStream, err := bad.OpenWriteStream(context.Background(), "bad.txt", "")
	require.NoError(t, err)

	_, err = badStream.Write([]byte("doomed bytes"))
	require.Error(t, err)
	_ = badStream.Close()
	_, err = okStream.Write([]byte("survivor"))
	require.NoError(t, err)
	require.NoError(t, okStream.Close())

	_, err = badStream.Wait(context.Background())
	require.ErrorIs(t, err, boom)

	meta, err := okStream.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, []byte("survivor"), readBlob(t, good, meta.ID))

	_, err = good.Stat(context.Background(), badStream.ID())
	require.ErrorIs(t, err, ErrBlobNotFound)
}

func TestBucketOverLocalChunks(t *testing.T) {
	db := openTenantDB(t)
	chunks, err := NewLocalChunks(t.TempDir())
	require.NoError(t, err)
	bucket, err := NewBucket(db, "about", chunks, Options{ChunkSize: 3})
	require.NoError(t, err)

	content := bytes.Repeat([]byte("xyz"), 5)
	meta := writeBlob(t, bucket, "hod.jpg", content)
	require.Equal(t, BackendLocal, meta.Backend)
	require.Equal(t, 5, meta.ChunkCount)
	require.Equal(t, content, readBlob(t, bucket, meta.ID))

	require.NoError(t, bucket.Delete(context.Background(), meta.ID))
	_, err = chunks.GetChunk(context.Background(), ChunkKey{Bucket: "about", BlobID: meta.ID, N: 0})
	require.ErrorIs(t, err, ErrChunkNotFound)
}
