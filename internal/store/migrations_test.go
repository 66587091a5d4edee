package store

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func testRawDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenRawDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&count); err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return count == 1
}

func TestRunTenantMigrationsFreshDB(t *testing.T) {
	db := testRawDB(t)

	if err := runMigrations(db, TenantMigrations); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	version, _, err := pending(db, nil)
	if err != nil {
		t.Fatalf("current version: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected version 2, got %d", version)
	}

	for _, table := range []string{"blobs", "blob_chunks", "about", "events", "labs", "banners", "programs"} {
		if !tableExists(t, db, table) {
			t.Fatalf("expected table %s", table)
		}
	}
	if tableExists(t, db, "users") {
		t.Fatal("tenant database must not carry control tables")
	}
}

func TestRunMigrationsIdempotent(t *testing.T) {
	db := testRawDB(t)

	if err := runMigrations(db, ControlMigrations); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := runMigrations(db, ControlMigrations); err != nil {
		t.Fatalf("second run: %v", err)
	}

	version, _, err := pending(db, nil)
	if err != nil {
		t.Fatalf("current version: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected version 1, got %d", version)
	}
	if !tableExists(t, db, "users") || !tableExists(t, db, "sessions") {
		t.Fatal("expected control tables")
	}
}

func TestMigrationPlan(t *testing.T) {
	db := testRawDB(t)

	plan, err := MigrationPlan(db, TenantMigrations)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.CurrentVersion != 0 || plan.AvailableVersion != 2 {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	if len(plan.Pending) != 2 || plan.Pending[0].Version != 1 {
		t.Fatalf("expected 2 pending migrations, got %+v", plan.Pending)
	}

	if err := runMigrations(db, TenantMigrations); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	plan, err = MigrationPlan(db, TenantMigrations)
	if err != nil {
		t.Fatalf("plan after run: %v", err)
	}
	if plan.CurrentVersion != 2 || len(plan.Pending) != 0 {
		t.Fatalf("expected no pending migrations, got %+v", plan)
	}
}
