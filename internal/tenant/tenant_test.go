package tenant

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"deptcms/internal/blobstore"
	"deptcms/internal/models"
)

type fakeDirectory struct {
	departments map[string]bool
	err         error
	lookups     atomic.Int32
}

func (d *fakeDirectory) DepartmentExists(_ context.Context, department string) (bool, error) {
	d.lookups.Add(1)
	if d.err != nil {
		return false, d.err
	}
	return d.departments[department], nil
}

func newRegistry(t *testing.T, dir Directory, factory ChunkFactory) *Registry {
	t.Helper()
	reg, err := NewRegistry(dir, Options{Dir: t.TempDir(), ChunkSize: 8, Chunks: factory})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}

func TestNormalizeKey(t *testing.T) {
	key, err := NormalizeKey("  CSE ")
	require.NoError(t, err)
	require.Equal(t, "cse", key)

	_, err = NormalizeKey(" ")
	require.ErrorIs(t, err, ErrTenantRequired)
	require.ErrorIs(t, err, ErrTenant)

	for _, raw := range []string{"../etc", "-cse", "a b", strings.Repeat("x", 33), "cse.db"} {
		_, err := NormalizeKey(raw)
		require.ErrorIs(t, err, ErrInvalidTenant, raw)
		require.ErrorIs(t, err, ErrTenant, raw)
	}
}

func TestResolveRejectsUnknownTenant(t *testing.T) {
	reg := newRegistry(t, &fakeDirectory{departments: map[string]bool{"cse": true}}, nil)

	_, err := reg.Resolve(context.Background(), "ece")
	require.ErrorIs(t, err, ErrUnknownTenant)
	require.ErrorIs(t, err, ErrTenant)

	_, err = reg.Resolve(context.Background(), "")
	require.ErrorIs(t, err, ErrTenantRequired)
}

func TestResolvePropagatesDirectoryFailure(t *testing.T) {
	boom := errors.New("control db down")
	reg := newRegistry(t, &fakeDirectory{err: boom}, nil)

	_, err := reg.Resolve(context.Background(), "cse")
	require.ErrorIs(t, err, boom)
	require.False(t, errors.Is(err, ErrTenant))
}

func TestResolveOpensOnceUnderConcurrency(t *testing.T) {
	dir := &fakeDirectory{departments: map[string]bool{"cse": true}}
	var opens atomic.Int32
	factory := func(ctx context.Context, key string, db *sql.DB) (blobstore.ChunkStore, error) {
		opens.Add(1)
		return SQLiteChunks()(ctx, key, db)
	}
	reg := newRegistry(t, dir, factory)

	const callers = 16
	results := make([]*Namespace, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = reg.Resolve(context.Background(), "CSE")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	require.EqualValues(t, 1, opens.Load())
	for _, ns := range results {
		require.Same(t, results[0], ns)
	}
	require.Equal(t, []string{"cse"}, reg.Opened())
}

func TestBindIsMemoised(t *testing.T) {
	reg := newRegistry(t, &fakeDirectory{departments: map[string]bool{"cse": true}}, nil)
	ctx := context.Background()

	first, err := reg.Bind(ctx, "cse", models.RecordEvents)
	require.NoError(t, err)
	second, err := reg.Bind(ctx, "CSE", models.RecordEvents)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, "events", first.Bucket.Name())
	require.Same(t, first.Namespace.Records, first.Records)

	labs, err := reg.Bind(ctx, "cse", models.RecordLabs)
	require.NoError(t, err)
	require.NotSame(t, first, labs)
	require.Same(t, first.Namespace, labs.Namespace)

	_, err = reg.Bind(ctx, "cse", models.RecordType("gallery"))
	require.Error(t, err)
}

func TestTenantsDoNotShareBlobs(t *testing.T) {
	for name, factory := range map[string]ChunkFactory{
		"sqlite": SQLiteChunks(),
		"local":  LocalChunks(t.TempDir()),
	} {
		t.Run(name, func(t *testing.T) {
			reg := newRegistry(t, &fakeDirectory{departments: map[string]bool{"cse": true, "ece": true}}, factory)
			ctx := context.Background()

			cse, err := reg.Bind(ctx, "cse", models.RecordEvents)
			require.NoError(t, err)
			ece, err := reg.Bind(ctx, "ece", models.RecordEvents)
			require.NoError(t, err)

			ws, err := cse.Bucket.OpenWriteStream(ctx, "poster.png", "image/png")
			require.NoError(t, err)
			_, err = io.Copy(ws, strings.NewReader("cse only bytes"))
			require.NoError(t, err)
			require.NoError(t, ws.Close())
			meta, err := ws.Wait(ctx)
			require.NoError(t, err)

			_, err = ece.Bucket.Stat(ctx, meta.ID)
			require.ErrorIs(t, err, blobstore.ErrBlobNotFound)
			_, _, err = ece.Bucket.OpenReadStream(ctx, meta.ID)
			require.ErrorIs(t, err, blobstore.ErrBlobNotFound)

			_, err = cse.Bucket.Stat(ctx, meta.ID)
			require.NoError(t, err)
		})
	}
}

func TestCloseRejectsFurtherResolves(t *testing.T) {
	reg, err := NewRegistry(&fakeDirectory{departments: map[string]bool{"cse": true}}, Options{Dir: t.TempDir()})
	require.NoError(t, err)

	_, err = reg.Resolve(context.Background(), "cse")
	require.NoError(t, err)
	require.NoError(t, reg.Close())
	require.NoError(t, reg.Close())

	_, err = reg.Resolve(context.Background(), "cse")
	require.ErrorIs(t, err, ErrRegistryClosed)
}
