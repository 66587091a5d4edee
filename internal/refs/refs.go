// Package refs keeps blob lifecycles in step with the records that point at them.
//
// Every mutation persists the owning record first and deletes blobs after, so
// a record never references a blob that is gone. A failure between the two
// steps leaves an orphan, which Sweep reclaims.
package refs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"

	"deptcms/internal/blobstore"
)

var ErrInvalidOrdering = errors.New("ordering must be a permutation of the current references")

// Blobs is the part of a bucket the manager deletes through.
type Blobs interface {
	Name() string
	Delete(ctx context.Context, id string) error
}

type Manager struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger.With("component", "refs")}
}

// Result reports the outcome of a batch of deletions.
type Result struct {
	Deleted []string
	Missing []string
	Failed  []string
	Err     error
}

// ReplaceSingleton swaps a single reference. With no replacement the old blob
// is kept. The old blob is deleted only once persist succeeds; when persist
// fails the unreferenced replacement is deleted instead.
func (m *Manager) ReplaceSingleton(ctx context.Context, bucket Blobs, oldID, newID string, persist func(context.Context) error) error {
	if err := persist(ctx); err != nil {
		if newID != "" {
			m.Cascade(context.WithoutCancel(ctx), bucket, []string{newID})
		}
		return err
	}
	if newID == "" || oldID == "" || oldID == newID {
		return nil
	}
	m.Cascade(ctx, bucket, []string{oldID})
	return nil
}

// Reorder returns ordering when it holds exactly the ids of current.
func Reorder(current, ordering []string) ([]string, error) {
	if len(current) != len(ordering) {
		return nil, fmt.Errorf("%w: got %d ids, want %d", ErrInvalidOrdering, len(ordering), len(current))
	}
	counts := make(map[string]int, len(current))
	for _, id := range current {
		counts[id]++
	}
	for _, id := range ordering {
		if counts[id] == 0 {
			return nil, fmt.Errorf("%w: unexpected id %q", ErrInvalidOrdering, id)
		}
		counts[id]--
	}
	return append([]string(nil), ordering...), nil
}

// Append adds new references after the existing ones.
func Append(current, added []string) []string {
	out := make([]string, 0, len(current)+len(added))
	out = append(out, current...)
	for _, id := range added {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// RemoveFromList strips id from every record through pull, then deletes the
// blob. It reports false when neither a reference nor the blob existed.
func (m *Manager) RemoveFromList(ctx context.Context, bucket Blobs, id string, pull func(context.Context, string) (int64, error)) (bool, error) {
	pulled, err := pull(ctx, id)
	if err != nil {
		return false, fmt.Errorf("pull %s: %w", id, err)
	}
	err = bucket.Delete(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, blobstore.ErrBlobNotFound):
		if pulled > 0 {
			m.logger.Warn("referenced blob already missing", "bucket", bucket.Name(), "blob_id", id, "records", pulled)
		}
		return pulled > 0, nil
	default:
		return pulled > 0, fmt.Errorf("delete %s: %w", id, err)
	}
}

// Cascade deletes every id independently. Missing blobs are logged and
// tolerated; other failures are collected into Result.Err.
func (m *Manager) Cascade(ctx context.Context, bucket Blobs, ids []string) Result {
	var result Result
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		err := bucket.Delete(ctx, id)
		switch {
		case err == nil:
			result.Deleted = append(result.Deleted, id)
		case errors.Is(err, blobstore.ErrBlobNotFound):
			m.logger.Warn("blob already missing", "bucket", bucket.Name(), "blob_id", id)
			result.Missing = append(result.Missing, id)
		default:
			result.Failed = append(result.Failed, id)
			result.Err = multierr.Append(result.Err, fmt.Errorf("delete %s: %w", id, err))
		}
	}
	if result.Err != nil {
		m.logger.Error("blob cascade incomplete", "bucket", bucket.Name(), "failed", result.Failed, "error", result.Err)
	}
	return result
}

// Reconcile deletes ids held in before but no longer in after.
func (m *Manager) Reconcile(ctx context.Context, bucket Blobs, before, after []string) Result {
	return m.Cascade(ctx, bucket, Dropped(before, after))
}

// Dropped returns ids of before that are absent from after, in before's order.
func Dropped(before, after []string) []string {
	keep := make(map[string]struct{}, len(after))
	for _, id := range after {
		keep[id] = struct{}{}
	}
	var out []string
	for _, id := range before {
		if _, ok := keep[id]; !ok && id != "" {
			out = append(out, id)
		}
	}
	return out
}
