// Package tenant maps department keys to isolated storage namespaces.
package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	"deptcms/internal/blobstore"
	"deptcms/internal/models"
	"deptcms/internal/records"
	"deptcms/internal/store"
)

var (
	ErrTenant         = errors.New("tenant error")
	ErrTenantRequired = fmt.Errorf("%w: department is required", ErrTenant)
	ErrInvalidTenant  = fmt.Errorf("%w: invalid department key", ErrTenant)
	ErrUnknownTenant  = fmt.Errorf("%w: unknown department", ErrTenant)
	ErrRegistryClosed = errors.New("tenant registry closed")
)

var keyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

// NormalizeKey lower-cases and validates a department key.
func NormalizeKey(raw string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return "", ErrTenantRequired
	}
	if !keyPattern.MatchString(key) {
		return "", ErrInvalidTenant
	}
	return key, nil
}

// Directory reports which departments exist.
type Directory interface {
	DepartmentExists(ctx context.Context, department string) (bool, error)
}

// ChunkFactory builds the chunk backend for one tenant.
type ChunkFactory func(ctx context.Context, key string, db *sql.DB) (blobstore.ChunkStore, error)

// Options configures namespace construction.
type Options struct {
	Dir       string
	ChunkSize int
	Chunks    ChunkFactory
	Observer  blobstore.Observer
	Logger    *slog.Logger
}

// Namespace is one department's database, record store and buckets.
type Namespace struct {
	Key     string
	DB      *sql.DB
	Records *records.Store
	Chunks  blobstore.ChunkStore
	buckets map[models.RecordType]*blobstore.Bucket
}

// Bucket returns the blob bucket owned by a record type.
func (n *Namespace) Bucket(recordType models.RecordType) (*blobstore.Bucket, error) {
	bucket, ok := n.buckets[recordType]
	if !ok {
		return nil, fmt.Errorf("invalid record type: %s", recordType)
	}
	return bucket, nil
}

// Binding is what a request handler works with: one tenant and one record type.
type Binding struct {
	Namespace  *Namespace
	RecordType models.RecordType
	Records    *records.Store
	Bucket     *blobstore.Bucket
}

// Registry opens namespaces lazily and keeps them for the life of the process.
type Registry struct {
	dir    Directory
	opts   Options
	logger *slog.Logger

	namespaces sync.Map
	bindings   sync.Map
	group      singleflight.Group

	mu     sync.RWMutex
	closed bool
}

// NewRegistry creates a registry storing tenant databases under opts.Dir.
func NewRegistry(dir Directory, opts Options) (*Registry, error) {
	if dir == nil {
		return nil, fmt.Errorf("tenant directory is required")
	}
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, fmt.Errorf("tenant data dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tenant dir: %w", err)
	}
	if opts.Chunks == nil {
		opts.Chunks = SQLiteChunks()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{dir: dir, opts: opts, logger: logger.With("component", "tenant")}, nil
}

// Resolve returns the namespace for key, opening it on first use.
func (r *Registry) Resolve(ctx context.Context, rawKey string) (*Namespace, error) {
	key, err := NormalizeKey(rawKey)
	if err != nil {
		return nil, err
	}
	if ns, ok := r.namespaces.Load(key); ok {
		return ns.(*Namespace), nil
	}

	value, err, _ := r.group.Do(key, func() (any, error) {
		if ns, ok := r.namespaces.Load(key); ok {
			return ns, nil
		}
		ns, err := r.open(context.WithoutCancel(ctx), key)
		if err != nil {
			return nil, err
		}
		r.namespaces.Store(key, ns)
		return ns, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*Namespace), nil
}

type bindingKey struct {
	tenant     string
	recordType models.RecordType
}

// Bind returns the binding of key and recordType. Repeated calls return the same binding.
func (r *Registry) Bind(ctx context.Context, rawKey string, recordType models.RecordType) (*Binding, error) {
	if !models.IsValidRecordType(recordType) {
		return nil, fmt.Errorf("invalid record type: %s", recordType)
	}
	ns, err := r.Resolve(ctx, rawKey)
	if err != nil {
		return nil, err
	}
	cacheKey := bindingKey{tenant: ns.Key, recordType: recordType}
	if binding, ok := r.bindings.Load(cacheKey); ok {
		return binding.(*Binding), nil
	}
	bucket, err := ns.Bucket(recordType)
	if err != nil {
		return nil, err
	}
	binding, _ := r.bindings.LoadOrStore(cacheKey, &Binding{
		Namespace:  ns,
		RecordType: recordType,
		Records:    ns.Records,
		Bucket:     bucket,
	})
	return binding.(*Binding), nil
}

// Opened returns the keys of namespaces opened so far.
func (r *Registry) Opened() []string {
	var keys []string
	r.namespaces.Range(func(key, _ any) bool {
		keys = append(keys, key.(string))
		return true
	})
	return keys
}

// Close closes every opened namespace. Later Resolve calls fail.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	var errs error
	r.namespaces.Range(func(key, value any) bool {
		ns := value.(*Namespace)
		if err := ns.DB.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close tenant %s: %w", ns.Key, err))
		}
		r.namespaces.Delete(key)
		return true
	})
	r.bindings.Range(func(key, _ any) bool {
		r.bindings.Delete(key)
		return true
	})
	return errs
}

func (r *Registry) open(ctx context.Context, key string) (*Namespace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}

	exists, err := r.dir.DepartmentExists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("look up department %s: %w", key, err)
	}
	if !exists {
		return nil, ErrUnknownTenant
	}

	db, err := store.OpenDB(r.DBPath(key), store.TenantMigrations)
	if err != nil {
		return nil, fmt.Errorf("open tenant %s: %w", key, err)
	}
	chunks, err := r.opts.Chunks(ctx, key, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open chunk store for tenant %s: %w", key, err)
	}

	logger := r.logger.With("tenant", key)
	buckets := make(map[models.RecordType]*blobstore.Bucket)
	for _, recordType := range models.AllRecordTypes() {
		bucket, err := blobstore.NewBucket(db, recordType.Bucket(), chunks, blobstore.Options{
			ChunkSize: r.opts.ChunkSize,
			Observer:  r.opts.Observer,
			Logger:    logger,
		})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		buckets[recordType] = bucket
	}

	logger.Info("tenant namespace opened", "backend", chunks.Backend())
	return &Namespace{
		Key:     key,
		DB:      db,
		Records: records.New(db),
		Chunks:  chunks,
		buckets: buckets,
	}, nil
}

// DBPath returns the database file of a tenant.
func (r *Registry) DBPath(key string) string {
	return filepath.Join(r.opts.Dir, key+".db")
}
