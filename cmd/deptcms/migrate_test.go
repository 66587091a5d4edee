package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"deptcms/internal/store"
)

func TestMigrateAppliesTenantSchemas(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	jsonOutput := false

	inspect := newMigrateCmd(cfg, &jsonOutput)
	inspect.SetArgs([]string{"--inspect"})
	if err := inspect.ExecuteContext(ctx); err != nil {
		t.Fatalf("inspect: %v", err)
	}

	st, err := openControlStore(cfg)
	if err != nil {
		t.Fatalf("open control store: %v", err)
	}
	if _, err := provisionUser(ctx, st, userEntry{Username: "hod", Department: "civil", Password: "password-123"}, time.Now()); err != nil {
		t.Fatalf("provision: %v", err)
	}
	st.Close()

	apply := newMigrateCmd(cfg, &jsonOutput)
	apply.SetArgs([]string{})
	if err := apply.ExecuteContext(ctx); err != nil {
		t.Fatalf("apply: %v", err)
	}

	path := filepath.Join(cfg.TenantDir(), "civil.db")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected tenant database: %v", err)
	}
	status, err := inspectMigrations(path, store.TenantMigrations)
	if err != nil {
		t.Fatalf("inspect tenant: %v", err)
	}
	if len(status.Pending) != 0 || status.CurrentVersion != status.AvailableVersion {
		t.Fatalf("expected tenant schema to be current, got %+v", status)
	}
}
