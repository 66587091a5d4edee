package refs

import (
	"context"
	"time"

	"deptcms/internal/blobstore"
)

const defaultSweepBatch = 500

// Lister pages through a bucket for the orphan sweep.
type Lister interface {
	Blobs
	List(ctx context.Context, q blobstore.ListQuery) ([]blobstore.Meta, error)
}

// Referenced answers whether any record still points at a blob.
type Referenced interface {
	Has(id, filename string) bool
}

type SweepOptions struct {
	Grace     time.Duration
	Apply     bool
	BatchSize int
	Now       func() time.Time
}

type SweepReport struct {
	Bucket  string
	Scanned int
	Orphans []blobstore.Meta
	Bytes   int64
	Result  Result
}

// Sweep finds blobs older than the grace period that nothing references and,
// when Apply is set, deletes them.
func (m *Manager) Sweep(ctx context.Context, bucket Lister, referenced Referenced, opts SweepOptions) (SweepReport, error) {
	report := SweepReport{Bucket: bucket.Name()}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	cutoff := now().Add(-opts.Grace)

	after := ""
	for {
		page, err := bucket.List(ctx, blobstore.ListQuery{CreatedBefore: cutoff, AfterID: after, Limit: batch})
		if err != nil {
			return report, err
		}
		for _, meta := range page {
			report.Scanned++
			if referenced.Has(meta.ID, meta.Filename) {
				continue
			}
			report.Orphans = append(report.Orphans, meta)
			report.Bytes += meta.Length
		}
		if len(page) < batch {
			break
		}
		after = page[len(page)-1].ID
	}

	if opts.Apply && len(report.Orphans) > 0 {
		ids := make([]string, 0, len(report.Orphans))
		for _, meta := range report.Orphans {
			ids = append(ids, meta.ID)
		}
		report.Result = m.Cascade(ctx, bucket, ids)
		m.logger.Info("orphan sweep applied", "bucket", report.Bucket, "deleted", len(report.Result.Deleted), "failed", len(report.Result.Failed))
	}
	return report, report.Result.Err
}
