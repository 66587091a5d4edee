package store

import (
	"cmp"
	"database/sql"
	"fmt"
	"slices"
	"time"
)

// Migration represents a schema migration step.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationStatus reports the current and available migration versions.
type MigrationStatus struct {
	CurrentVersion   int             `json:"current_version"`
	AvailableVersion int             `json:"available_version"`
	Pending          []MigrationInfo `json:"pending"`
}

// MigrationInfo describes a single migration.
type MigrationInfo struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// ControlMigrations builds the control database: department users and sessions.
var ControlMigrations = []Migration{
	{
		Version:     1,
		Description: "users bound to departments, sessions",
		SQL:         controlSchemaSQL,
	},
}

// TenantMigrations builds one department database: blob metadata, chunk payloads and owning records.
var TenantMigrations = []Migration{
	{
		Version:     1,
		Description: "blob metadata and chunk tables",
		SQL:         blobSchemaSQL,
	},
	{
		Version:     2,
		Description: "owning records: about, events, labs, banners, programs",
		SQL:         recordSchemaSQL,
	},
}

const migrationsTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
);
`

// pending returns the migrations of set above the applied version, in order.
func pending(db *sql.DB, set []Migration) (int, []Migration, error) {
	if _, err := db.Exec(migrationsTableSQL); err != nil {
		return 0, nil, fmt.Errorf("create migrations table: %w", err)
	}
	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return 0, nil, fmt.Errorf("read schema version: %w", err)
	}

	sorted := slices.SortedFunc(slices.Values(set), func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	i, _ := slices.BinarySearchFunc(sorted, current+1, func(m Migration, v int) int { return cmp.Compare(m.Version, v) })
	return current, sorted[i:], nil
}

// runMigrations applies each pending migration in its own transaction.
func runMigrations(db *sql.DB, set []Migration) error {
	_, todo, err := pending(db, set)
	if err != nil {
		return err
	}
	for _, m := range todo {
		if err := apply(db, m); err != nil {
			return err
		}
	}
	return nil
}

func apply(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", m.Version, FormatTime(time.Now())); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	return tx.Commit()
}

// MigrationPlan reports the status of db against set without applying anything.
func MigrationPlan(db *sql.DB, set []Migration) (*MigrationStatus, error) {
	current, todo, err := pending(db, set)
	if err != nil {
		return nil, err
	}
	status := &MigrationStatus{CurrentVersion: current, AvailableVersion: current}
	for _, m := range todo {
		status.Pending = append(status.Pending, MigrationInfo{Version: m.Version, Description: m.Description})
		status.AvailableVersion = m.Version
	}
	return status, nil
}
