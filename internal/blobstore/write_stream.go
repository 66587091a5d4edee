package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"deptcms/internal/store"
)

// WriteStream accepts the bytes of one blob. The store side runs in its own
// goroutine; Wait reports the committed metadata or a *WriteError.
type WriteStream struct {
	id       string
	filename string
	pw       *io.PipeWriter
	cancel   context.CancelCauseFunc
	done     chan struct{}
	meta     Meta
	err      error
}

// ID returns the blob id assigned when the stream was opened.
func (w *WriteStream) ID() string {
	return w.id
}

// Filename returns the stored filename.
func (w *WriteStream) Filename() string {
	return w.filename
}

func (w *WriteStream) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

// Close marks the end of content. The write completes asynchronously.
func (w *WriteStream) Close() error {
	return w.pw.Close()
}

// Abort cancels the write and discards any chunks already stored.
func (w *WriteStream) Abort(cause error) {
	if cause == nil {
		cause = ErrStreamAborted
	}
	_ = w.pw.CloseWithError(cause)
	w.cancel(cause)
}

// Done is closed once the store side has finished, successfully or not.
func (w *WriteStream) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the blob is committed or failed, or ctx ends.
func (w *WriteStream) Wait(ctx context.Context) (Meta, error) {
	select {
	case <-w.done:
		return w.meta, w.err
	case <-ctx.Done():
		return Meta{}, ctx.Err()
	}
}

// OpenWriteStream starts a blob write and returns immediately.
func (b *Bucket) OpenWriteStream(ctx context.Context, filename, contentType string) (*WriteStream, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, fmt.Errorf("filename is required")
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = DefaultContentType
	}
	id, err := store.NewID()
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancelCause(ctx)
	pr, pw := io.Pipe()
	stop := context.AfterFunc(streamCtx, func() {
		_ = pr.CloseWithError(context.Cause(streamCtx))
	})

	ws := &WriteStream{
		id:       id,
		filename: filename,
		pw:       pw,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(ws.done)
		defer cancel(nil)
		defer stop()

		start := time.Now()
		meta, err := b.consume(streamCtx, id, filename, contentType, pr)
		if err != nil {
			_ = pr.CloseWithError(err)
		} else {
			_ = pr.Close()
		}
		b.observer.RecordWrite(b.name, time.Since(start), meta.Length, err)
		ws.meta = meta
		ws.err = err
	}()

	return ws, nil
}

// consume splits r into chunks, stores them, and commits the metadata row last.
func (b *Bucket) consume(ctx context.Context, id, filename, contentType string, r io.Reader) (Meta, error) {
	hash := sha256.New()
	buf := make([]byte, b.chunkSize)
	var length int64
	count := 0

	fail := func(err error) (Meta, error) {
		b.discardChunks(ctx, id, count+1)
		return Meta{}, &WriteError{BlobID: id, Filename: filename, Err: err}
	}

	for {
		read, err := io.ReadFull(r, buf)
		if read > 0 {
			data := buf[:read]
			hash.Write(data)
			if putErr := b.chunks.PutChunk(ctx, ChunkKey{Bucket: b.name, BlobID: id, N: count}, data); putErr != nil {
				return fail(fmt.Errorf("put chunk %d: %w", count, putErr))
			}
			count++
			length += int64(read)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return fail(err)
		}
	}

	meta := Meta{
		ID:          id,
		Bucket:      b.name,
		Filename:    filename,
		ContentType: contentType,
		Length:      length,
		ChunkSize:   b.chunkSize,
		ChunkCount:  count,
		SHA256:      hex.EncodeToString(hash.Sum(nil)),
		Backend:     b.chunks.Backend(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := b.insertMeta(ctx, meta); err != nil {
		return fail(fmt.Errorf("commit metadata: %w", err))
	}
	return meta, nil
}
