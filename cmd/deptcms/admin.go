package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"deptcms/internal/config"
	"deptcms/internal/format"
	"deptcms/internal/models"
	"deptcms/internal/refs"
	"deptcms/internal/store"
	"deptcms/internal/tenant"
)

func newAdminCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands that work directly on the data directory",
	}
	cmd.AddCommand(newAdminUserCmd(cfg, jsonOutput))
	cmd.AddCommand(newAdminGCCmd(cfg, jsonOutput))
	return cmd
}

type gcBucketReport struct {
	Department string   `json:"department"`
	Bucket     string   `json:"bucket"`
	Scanned    int      `json:"scanned"`
	Orphans    []string `json:"orphans"`
	Bytes      int64    `json:"bytes"`
	Deleted    int      `json:"deleted"`
	Failed     int      `json:"failed"`
}

type gcOptions struct {
	Department string
	Apply      bool
	BatchSize  int
}

func newAdminGCCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var opts gcOptions

	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Find blobs no record references and, with --apply, delete them",
		RunE: func(cmd *cobra.Command, args []string) error {
			reports, err := runGC(cmd.Context(), cfg, opts, slog.Default())
			if *jsonOutput {
				if writeErr := writeJSON(reports); writeErr != nil {
					return writeErr
				}
				return err
			}

			mode := "dry run"
			if opts.Apply {
				mode = "applied"
			}
			table := &format.Table{Header: []string{"DEPARTMENT", "BUCKET", "SCANNED", "ORPHANS", "RECLAIMABLE", "DELETED", "FAILED"}}
			var total int64
			for _, r := range reports {
				total += r.Bytes
				if len(r.Orphans) == 0 {
					continue
				}
				table.Append(r.Department, r.Bucket, strconv.Itoa(r.Scanned), strconv.Itoa(len(r.Orphans)),
					humanize.Bytes(uint64(r.Bytes)), strconv.Itoa(r.Deleted), strconv.Itoa(r.Failed))
			}
			if len(table.Rows) > 0 {
				if writeErr := writeTable(table); writeErr != nil {
					return writeErr
				}
			}
			if writeErr := writePlain("%s: %s reclaimable across %d buckets\n", mode, humanize.Bytes(uint64(total)), len(reports)); writeErr != nil {
				return writeErr
			}
			return err
		},
	}

	cmd.Flags().StringVar(&opts.Department, "department", "", "sweep one department only")
	cmd.Flags().BoolVar(&opts.Apply, "apply", false, "delete the orphans instead of listing them")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "blobs listed per page (default: gc.batch_size)")
	return cmd
}

// runGC sweeps every bucket of every department, or of opts.Department.
// Sweeping continues past a failing bucket; the first error is returned.
func runGC(ctx context.Context, cfg *config.Config, opts gcOptions, logger *slog.Logger) ([]gcBucketReport, error) {
	grace, err := cfg.GCGrace()
	if err != nil {
		return nil, err
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = cfg.GC.BatchSize
	}

	st, err := openControlStore(cfg)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	departments, err := gcDepartments(ctx, st, opts.Department)
	if err != nil {
		return nil, err
	}

	registry, err := openRegistry(ctx, cfg, st, nil, logger)
	if err != nil {
		return nil, err
	}
	defer registry.Close()

	manager := refs.New(logger)
	var reports []gcBucketReport
	var firstErr error
	for _, department := range departments {
		ns, err := registry.Resolve(ctx, department)
		if err != nil {
			return reports, err
		}
		for _, recordType := range models.AllRecordTypes() {
			report, err := sweepBucket(ctx, manager, ns, recordType, refs.SweepOptions{Grace: grace, Apply: opts.Apply, BatchSize: batch})
			report.Department = ns.Key
			reports = append(reports, report)
			if err != nil {
				logger.Error("gc sweep failed", "department", ns.Key, "bucket", report.Bucket, "error", err)
				if firstErr == nil {
					firstErr = fmt.Errorf("sweep %s/%s: %w", ns.Key, report.Bucket, err)
				}
			}
		}
	}
	return reports, firstErr
}

func gcDepartments(ctx context.Context, st *store.Store, only string) ([]string, error) {
	if only == "" {
		return st.ListDepartments(ctx)
	}
	key, err := tenant.NormalizeKey(only)
	if err != nil {
		return nil, err
	}
	exists, err := st.DepartmentExists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%s: %w", key, tenant.ErrUnknownTenant)
	}
	return []string{key}, nil
}

func sweepBucket(ctx context.Context, manager *refs.Manager, ns *tenant.Namespace, recordType models.RecordType, opts refs.SweepOptions) (gcBucketReport, error) {
	out := gcBucketReport{Bucket: recordType.Bucket(), Orphans: []string{}}
	bucket, err := ns.Bucket(recordType)
	if err != nil {
		return out, err
	}
	referenced, err := ns.Records.ReferencedBlobs(ctx, recordType)
	if err != nil {
		return out, err
	}
	report, err := manager.Sweep(ctx, bucket, referenced, opts)
	out.Scanned = report.Scanned
	out.Bytes = report.Bytes
	for _, meta := range report.Orphans {
		out.Orphans = append(out.Orphans, meta.ID)
	}
	out.Deleted = len(report.Result.Deleted)
	out.Failed = len(report.Result.Failed)
	return out, err
}
