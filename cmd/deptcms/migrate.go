package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"deptcms/internal/config"
	"deptcms/internal/store"
	"deptcms/internal/tenant"
)

type migrationTarget struct {
	Name   string                 `json:"name"`
	Path   string                 `json:"path"`
	Status *store.MigrationStatus `json:"status"`
}

func newMigrateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var dryRun bool
	var inspect bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run or inspect schema migrations of the control and department databases",
		RunE: func(cmd *cobra.Command, args []string) error {
			apply := !inspect && !dryRun
			if err := os.MkdirAll(cfg.TenantDir(), 0o755); err != nil {
				return err
			}

			control := migrationTarget{Name: "control", Path: cfg.ControlDBPath()}
			status, err := inspectMigrations(control.Path, store.ControlMigrations)
			if err != nil {
				return fmt.Errorf("inspect control database: %w", err)
			}
			control.Status = status
			targets := []migrationTarget{control}

			// Departments are listed from the users table, so they are only
			// known once the control schema is current.
			if apply || len(status.Pending) == 0 {
				st, err := openControlStore(cfg)
				if err != nil {
					return fmt.Errorf("migrate control database: %w", err)
				}
				departments, err := st.ListDepartments(cmd.Context())
				st.Close()
				if err != nil {
					return err
				}
				for _, department := range departments {
					key, err := tenant.NormalizeKey(department)
					if err != nil {
						return fmt.Errorf("department %q: %w", department, err)
					}
					targets = append(targets, migrationTarget{Name: key, Path: filepath.Join(cfg.TenantDir(), key+".db")})
				}
			}

			for i := range targets {
				if apply && i > 0 {
					db, err := store.OpenDB(targets[i].Path, store.TenantMigrations)
					if err != nil {
						return fmt.Errorf("migrate %s: %w", targets[i].Name, err)
					}
					_ = db.Close()
				}
				if i == 0 && !apply {
					continue
				}
				set := store.TenantMigrations
				if i == 0 {
					set = store.ControlMigrations
				}
				status, err := inspectMigrations(targets[i].Path, set)
				if err != nil {
					return fmt.Errorf("inspect %s: %w", targets[i].Name, err)
				}
				targets[i].Status = status
			}

			if *jsonOutput {
				return writeJSON(targets)
			}
			for _, target := range targets {
				if err := writePlain("%s: version %d/%d, %d pending\n", target.Name,
					target.Status.CurrentVersion, target.Status.AvailableVersion, len(target.Status.Pending)); err != nil {
					return err
				}
				for _, m := range target.Status.Pending {
					if err := writePlain("  %d: %s\n", m.Version, m.Description); err != nil {
						return err
					}
				}
			}
			if apply {
				return writePlain("Migrations applied to %d databases.\n", len(targets))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	cmd.Flags().BoolVar(&inspect, "inspect", false, "show migration status")

	return cmd
}

func inspectMigrations(path string, set []store.Migration) (*store.MigrationStatus, error) {
	db, err := store.OpenRawDB(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return store.MigrationPlan(db, set)
}
