// Package ingest streams multipart uploads into blob buckets.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"deptcms/internal/blobstore"
)

const (
	DefaultMaxFieldBytes int64 = 1 << 20
	sniffLen                   = 512
)

var (
	ErrMalformed           = errors.New("malformed multipart body")
	ErrUnknownFileField    = errors.New("unexpected file field")
	ErrMediaTypeNotAllowed = errors.New("media type not allowed")
	ErrFieldTooLarge       = errors.New("form field too large")
)

// UploadError reports a failed ingestion. Created lists blobs that were
// committed before the failure; nothing references them.
type UploadError struct {
	Err     error
	Created []string
}

func (e *UploadError) Error() string {
	if len(e.Created) == 0 {
		return fmt.Sprintf("upload failed: %v", e.Err)
	}
	return fmt.Sprintf("upload failed (%d orphaned blobs): %v", len(e.Created), e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// IsClientError reports whether err was caused by the request body rather than storage.
func IsClientError(err error) bool {
	var maxBytes *http.MaxBytesError
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrUnknownFileField) ||
		errors.Is(err, ErrMediaTypeNotAllowed) ||
		errors.Is(err, ErrFieldTooLarge) ||
		errors.As(err, &maxBytes)
}

// Schema names the file fields a form may carry. Match admits additional
// single-file fields by name, for indexed fields such as scheme[0][file].
type Schema struct {
	Single  []string
	Multi   []string
	Match   func(field string) bool
	AnyFile bool
}

func (s Schema) isSingle(field string) bool {
	if s.Match != nil && s.Match(field) {
		return true
	}
	for _, name := range s.Single {
		if name == field {
			return true
		}
	}
	return false
}

func (s Schema) accepts(field string) bool {
	if s.AnyFile || s.isSingle(field) {
		return true
	}
	for _, name := range s.Multi {
		if name == field {
			return true
		}
	}
	return false
}

// Blob is one committed upload in arrival order.
type Blob struct {
	Field        string `json:"field"`
	Index        int    `json:"index"`
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	ContentType  string `json:"contentType"`
	Length       int64  `json:"length"`
}

// Session is the parsed form: text fields plus blob ids grouped by field.
type Session struct {
	Fields map[string]string
	Files  map[string][]string
	Blobs  []Blob
	Extras []string
}

// Field returns a trimmed text field and whether it was sent.
func (s *Session) Field(name string) (string, bool) {
	value, ok := s.Fields[name]
	return strings.TrimSpace(value), ok
}

// First returns the first blob id of a file field, or "".
func (s *Session) First(field string) string {
	ids := s.Files[field]
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// Filename returns the stored filename of a blob created in this session.
func (s *Session) Filename(id string) string {
	for _, blob := range s.Blobs {
		if blob.ID == id {
			return blob.Filename
		}
	}
	return ""
}

// BlobIDs returns every committed blob id in arrival order.
func (s *Session) BlobIDs() []string {
	out := make([]string, 0, len(s.Blobs))
	for _, blob := range s.Blobs {
		out = append(out, blob.ID)
	}
	return out
}

// Options configures a pipeline.
type Options struct {
	MaxFieldBytes     int64
	AllowedMediaTypes []string
	Recorder          Recorder
	Logger            *slog.Logger
	Now               func() time.Time
}

// Pipeline parses multipart bodies into sessions.
type Pipeline struct {
	maxFieldBytes int64
	allowed       []string
	recorder      Recorder
	logger        *slog.Logger
	now           func() time.Time
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		maxFieldBytes: opts.MaxFieldBytes,
		allowed:       normalizeAllowed(opts.AllowedMediaTypes),
		recorder:      opts.Recorder,
		logger:        opts.Logger,
		now:           opts.Now,
	}
	if p.maxFieldBytes <= 0 {
		p.maxFieldBytes = DefaultMaxFieldBytes
	}
	if p.recorder == nil {
		p.recorder = nopRecorder{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

type upload struct {
	blob   Blob
	stream *blobstore.WriteStream
	closed bool
	err    error
}

// Parse consumes body and stores each file part in bucket as it arrives.
func (p *Pipeline) Parse(ctx context.Context, body io.Reader, contentType string, bucket *blobstore.Bucket, schema Schema) (*Session, error) {
	start := time.Now()
	session, err := p.parse(ctx, body, contentType, bucket, schema)
	p.recorder.RecordIngest(bucket.Name(), time.Since(start), len(sessionBlobs(session, err)), err)
	return session, err
}

func sessionBlobs(session *Session, err error) []string {
	var uploadErr *UploadError
	if errors.As(err, &uploadErr) {
		return uploadErr.Created
	}
	if session == nil {
		return nil
	}
	return session.BlobIDs()
}

func (p *Pipeline) parse(ctx context.Context, body io.Reader, contentType string, bucket *blobstore.Bucket, schema Schema) (*Session, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return nil, &UploadError{Err: fmt.Errorf("%w: content type %q is not multipart", ErrMalformed, contentType)}
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, &UploadError{Err: fmt.Errorf("%w: missing boundary", ErrMalformed)}
	}

	reader := multipart.NewReader(body, boundary)
	session := &Session{Fields: map[string]string{}, Files: map[string][]string{}}

	var (
		mu      sync.Mutex
		uploads []*upload
		group   errgroup.Group
		names   = map[string]struct{}{}
	)

	fail := func(cause error) (*Session, error) {
		mu.Lock()
		for _, u := range uploads {
			if !u.closed {
				u.stream.Abort(cause)
			}
		}
		mu.Unlock()
		_ = group.Wait()
		created := make([]string, 0)
		for _, u := range uploads {
			if u.err == nil && u.closed {
				created = append(created, u.blob.ID)
			}
		}
		if len(created) > 0 {
			p.logger.Warn("upload aborted with committed blobs", "bucket", bucket.Name(), "orphans", created, "error", cause)
		}
		return nil, &UploadError{Err: cause, Created: created}
	}

	for index := 0; ; {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(bodyError(err))
		}

		field := part.FormName()
		original := part.FileName()
		if original == "" {
			value, err := p.readField(part)
			_ = part.Close()
			if err != nil {
				return fail(err)
			}
			session.Fields[field] = value
			continue
		}

		if !schema.accepts(field) {
			_ = part.Close()
			return fail(fmt.Errorf("%w: %q", ErrUnknownFileField, field))
		}

		buffered := bufio.NewReaderSize(part, sniffLen)
		src := &trackingReader{r: buffered}
		declared := strings.TrimSpace(part.Header.Get("Content-Type"))
		mediaType, err := p.mediaType(declared, buffered)
		if err != nil {
			_ = part.Close()
			return fail(err)
		}

		millis, base := p.now().UnixMilli(), path.Base(original)
		storedName := fmt.Sprintf("%d-%s", millis, base)
		for n := index; ; n++ {
			if _, taken := names[storedName]; !taken {
				break
			}
			storedName = fmt.Sprintf("%d-%d-%s", millis, n, base)
		}
		names[storedName] = struct{}{}
		stream, err := bucket.OpenWriteStream(ctx, storedName, mediaType)
		if err != nil {
			_ = part.Close()
			return fail(err)
		}
		u := &upload{
			blob: Blob{
				Field:        field,
				Index:        index,
				ID:           stream.ID(),
				Filename:     storedName,
				OriginalName: original,
				ContentType:  mediaType,
			},
			stream: stream,
		}
		index++
		mu.Lock()
		uploads = append(uploads, u)
		mu.Unlock()
		group.Go(func() error {
			meta, err := stream.Wait(context.WithoutCancel(ctx))
			u.err = err
			u.blob.Length = meta.Length
			return err
		})

		_, copyErr := io.Copy(stream, src)
		if src.err != nil {
			_ = part.Close()
			return fail(bodyError(src.err))
		}
		mu.Lock()
		u.closed = true
		mu.Unlock()
		if copyErr != nil {
			// The store side failed; its error surfaces through the group.
			if _, err := io.Copy(io.Discard, part); err != nil {
				return fail(bodyError(err))
			}
		} else {
			_ = stream.Close()
		}
		_ = part.Close()
	}

	if err := group.Wait(); err != nil {
		created := make([]string, 0)
		for _, u := range uploads {
			if u.err == nil {
				created = append(created, u.blob.ID)
			}
		}
		p.logger.Warn("upload failed with committed siblings", "bucket", bucket.Name(), "orphans", created, "error", err)
		return nil, &UploadError{Err: err, Created: created}
	}

	for _, u := range uploads {
		session.Blobs = append(session.Blobs, u.blob)
		if schema.isSingle(u.blob.Field) && len(session.Files[u.blob.Field]) > 0 {
			session.Extras = append(session.Extras, u.blob.ID)
			continue
		}
		session.Files[u.blob.Field] = append(session.Files[u.blob.Field], u.blob.ID)
	}
	return session, nil
}

func (p *Pipeline) readField(part *multipart.Part) (string, error) {
	data, err := io.ReadAll(io.LimitReader(part, p.maxFieldBytes+1))
	if err != nil {
		return "", bodyError(err)
	}
	if int64(len(data)) > p.maxFieldBytes {
		return "", fmt.Errorf("%w: %q exceeds %d bytes", ErrFieldTooLarge, part.FormName(), p.maxFieldBytes)
	}
	return string(data), nil
}

// mediaType resolves the stored content type, sniffing when the part declares none.
func (p *Pipeline) mediaType(declared string, br *bufio.Reader) (string, error) {
	mediaType := ""
	if declared != "" {
		if parsed, _, err := mime.ParseMediaType(declared); err == nil {
			mediaType = strings.ToLower(parsed)
		}
	}
	if mediaType == "" {
		head, err := br.Peek(sniffLen)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
			return "", bodyError(err)
		}
		sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(head))
		mediaType = sniffed
	}
	if mediaType == "" {
		mediaType = blobstore.DefaultContentType
	}
	if !p.isAllowed(mediaType) {
		return "", fmt.Errorf("%w: %s", ErrMediaTypeNotAllowed, mediaType)
	}
	return mediaType, nil
}

func (p *Pipeline) isAllowed(mediaType string) bool {
	if len(p.allowed) == 0 {
		return true
	}
	for _, pattern := range p.allowed {
		if pattern == mediaType || pattern == "*/*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(pattern, "/*"); ok && strings.HasPrefix(mediaType, prefix+"/") {
			return true
		}
	}
	return false
}

func normalizeAllowed(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}

func bodyError(err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

// trackingReader remembers read failures so they can be told apart from write failures.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		t.err = err
	}
	return n, err
}
