package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"deptcms/internal/store"
)

const (
	// DefaultChunkSize matches the GridFS default of 255 KiB.
	DefaultChunkSize = 255 * 1024

	DefaultContentType = "application/octet-stream"

	chunkCleanupTimeout = 30 * time.Second
)

var (
	ErrBlobNotFound  = errors.New("blob not found")
	ErrStreamAborted = errors.New("write stream aborted")
)

// WriteError reports a failed blob write. No metadata row exists for BlobID.
type WriteError struct {
	BlobID   string
	Filename string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write blob %s (%s): %v", e.BlobID, e.Filename, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Meta describes one committed blob.
type Meta struct {
	ID          string    `json:"id"`
	Bucket      string    `json:"bucket"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Length      int64     `json:"length"`
	ChunkSize   int       `json:"chunkSize"`
	ChunkCount  int       `json:"chunkCount"`
	SHA256      string    `json:"sha256"`
	Backend     string    `json:"backend"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Options tunes a bucket.
type Options struct {
	ChunkSize int
	Observer  Observer
	Logger    *slog.Logger
}

// Bucket is a chunked blob store scoped to one tenant database and one record type.
type Bucket struct {
	name      string
	db        *sql.DB
	chunks    ChunkStore
	chunkSize int
	observer  Observer
	logger    *slog.Logger
}

// ListQuery pages through a bucket in id order.
type ListQuery struct {
	CreatedBefore time.Time
	AfterID       string
	Limit         int
}

const metaColumns = "id, bucket, filename, content_type, length, chunk_size, chunk_count, sha256, backend, created_at"

// NewBucket binds a bucket name to a tenant database and chunk backend.
func NewBucket(db *sql.DB, name string, chunks ChunkStore, opts Options) (*Bucket, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if db == nil {
		return nil, fmt.Errorf("bucket %s: database is required", name)
	}
	if chunks == nil {
		return nil, fmt.Errorf("bucket %s: chunk store is required", name)
	}
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bucket{
		name:      name,
		db:        db,
		chunks:    chunks,
		chunkSize: chunkSize,
		observer:  observer,
		logger:    logger.With("bucket", name),
	}, nil
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	return b.name
}

// Stat returns metadata for id or ErrBlobNotFound.
func (b *Bucket) Stat(ctx context.Context, id string) (Meta, error) {
	row := b.db.QueryRowContext(ctx, `SELECT `+metaColumns+` FROM blobs WHERE bucket = ? AND id = ?`, b.name, id)
	meta, err := scanMeta(row)
	if err != nil {
		return Meta{}, err
	}
	if meta == nil {
		return Meta{}, ErrBlobNotFound
	}
	return *meta, nil
}

// StatByFilename returns the newest blob stored under filename, or nil when none exists.
func (b *Bucket) StatByFilename(ctx context.Context, filename string) (*Meta, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT `+metaColumns+`
		FROM blobs
		WHERE bucket = ? AND filename = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, b.name, filename)
	return scanMeta(row)
}

// ListByFilename returns every blob stored under filename.
func (b *Bucket) ListByFilename(ctx context.Context, filename string) ([]Meta, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT `+metaColumns+`
		FROM blobs
		WHERE bucket = ? AND filename = ?
		ORDER BY id ASC
	`, b.name, filename)
	if err != nil {
		return nil, err
	}
	return collectMeta(rows)
}

// List pages through blobs in id order, oldest first.
func (b *Bucket) List(ctx context.Context, q ListQuery) ([]Meta, error) {
	query := `SELECT ` + metaColumns + ` FROM blobs WHERE bucket = ? AND id > ?`
	args := []any{b.name, q.AfterID}
	if !q.CreatedBefore.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, store.FormatTime(q.CreatedBefore))
	}
	query += ` ORDER BY id ASC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectMeta(rows)
}

// OpenReadStream streams blob content chunk by chunk.
func (b *Bucket) OpenReadStream(ctx context.Context, id string) (io.ReadCloser, Meta, error) {
	start := time.Now()
	meta, err := b.Stat(ctx, id)
	b.observer.RecordRead(b.name, time.Since(start), err)
	if err != nil {
		return nil, Meta{}, err
	}
	return &chunkReader{
		ctx:    ctx,
		chunks: b.chunks,
		bucket: b.name,
		id:     meta.ID,
		count:  meta.ChunkCount,
	}, meta, nil
}

// Delete removes blob metadata then its chunks. A missing blob yields ErrBlobNotFound.
func (b *Bucket) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := b.delete(ctx, id)
	b.observer.RecordDelete(b.name, time.Since(start), err)
	return err
}

func (b *Bucket) delete(ctx context.Context, id string) error {
	meta, err := b.Stat(ctx, id)
	if err != nil {
		return err
	}

	result, err := b.db.ExecContext(ctx, `DELETE FROM blobs WHERE bucket = ? AND id = ?`, b.name, id)
	if err != nil {
		return fmt.Errorf("delete blob %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrBlobNotFound
	}

	if err := b.chunks.DeleteChunks(ctx, b.name, id, meta.ChunkCount); err != nil {
		b.logger.Warn("blob chunks left behind", "blob_id", id, "chunks", meta.ChunkCount, "error", err)
	}
	return nil
}

func (b *Bucket) insertMeta(ctx context.Context, meta Meta) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO blobs (`+metaColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, meta.ID, meta.Bucket, meta.Filename, meta.ContentType, meta.Length, meta.ChunkSize, meta.ChunkCount, meta.SHA256, meta.Backend, store.FormatTime(meta.CreatedAt))
	return err
}

// discardChunks removes chunks of an uncommitted blob, ignoring request cancellation.
func (b *Bucket) discardChunks(ctx context.Context, id string, count int) {
	if count <= 0 {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), chunkCleanupTimeout)
	defer cancel()
	if err := b.chunks.DeleteChunks(cleanupCtx, b.name, id, count); err != nil {
		b.logger.Warn("discard chunks of failed write", "blob_id", id, "chunks", count, "error", err)
	}
}

func collectMeta(rows *sql.Rows) ([]Meta, error) {
	defer rows.Close()
	out := make([]Meta, 0)
	for rows.Next() {
		meta, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			out = append(out, *meta)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanMeta(scanner interface {
	Scan(dest ...any) error
}) (*Meta, error) {
	var meta Meta
	var createdAt string
	if err := scanner.Scan(&meta.ID, &meta.Bucket, &meta.Filename, &meta.ContentType, &meta.Length, &meta.ChunkSize, &meta.ChunkCount, &meta.SHA256, &meta.Backend, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := store.ParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	meta.CreatedAt = parsed
	return &meta, nil
}

type chunkReader struct {
	ctx    context.Context
	chunks ChunkStore
	bucket string
	id     string
	count  int
	next   int
	buf    []byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.next >= r.count {
			return 0, io.EOF
		}
		data, err := r.chunks.GetChunk(r.ctx, ChunkKey{Bucket: r.bucket, BlobID: r.id, N: r.next})
		if err != nil {
			return 0, fmt.Errorf("read chunk %d of blob %s: %w", r.next, r.id, err)
		}
		r.buf = data
		r.next++
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *chunkReader) Close() error {
	r.buf = nil
	r.next = r.count
	return nil
}
