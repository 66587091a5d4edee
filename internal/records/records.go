// Package records persists the owning records of one department database.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"deptcms/internal/models"
	"deptcms/internal/store"
)

var ErrRecordNotFound = errors.New("record not found")

// Store reads and writes records in one tenant database.
type Store struct {
	db  *sql.DB
	qb  sq.StatementBuilderType
	now func() time.Time
}

// New binds a record store to an opened tenant database.
func New(db *sql.DB) *Store {
	return &Store{
		db:  db,
		qb:  sq.StatementBuilder.PlaceholderFormat(sq.Question),
		now: func() time.Time { return time.Now().UTC() },
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func tableFor(recordType models.RecordType) (string, error) {
	if !models.IsValidRecordType(recordType) {
		return "", fmt.Errorf("invalid record type: %s", recordType)
	}
	return string(recordType), nil
}

// Count returns the number of records of one type.
func (s *Store) Count(ctx context.Context, recordType models.RecordType) (int, error) {
	table, err := tableFor(recordType)
	if err != nil {
		return 0, err
	}
	query, args, err := s.qb.Select("COUNT(*)").From(table).ToSql()
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return count, nil
}

func (s *Store) deleteByID(ctx context.Context, table, id string) error {
	query, args, err := s.qb.Delete(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}
	return requireAffected(result)
}

func (s *Store) exec(ctx context.Context, runner execer, builder sq.Sqlizer) (sql.Result, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	return runner.ExecContext(ctx, query, args...)
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// pullFromList rewrites the JSON list column of every row whose list contains
// blobID and clears each singleton column equal to blobID, inside one
// transaction. It returns the number of references removed.
func (s *Store) pullFromList(ctx context.Context, table, column, blobID string, rewrite func(raw string) (string, bool, error), singletons ...string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := s.qb.Select("id", column).
		From(table).
		Where(sq.Like{column: "%" + blobID + "%"}).
		ToSql()
	if err != nil {
		return 0, err
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("scan %s.%s: %w", table, column, err)
	}
	pending := map[string]string{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			rows.Close()
			return 0, err
		}
		updated, changed, err := rewrite(raw)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("%s %s: %w", table, id, err)
		}
		if changed {
			pending[id] = updated
		}
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	now := store.FormatTime(s.now())
	for id, value := range pending {
		update := s.qb.Update(table).
			Set(column, value).
			Set("updated_at", now).
			Where(sq.Eq{"id": id})
		if _, err := s.exec(ctx, tx, update); err != nil {
			return 0, fmt.Errorf("pull %s from %s %s: %w", blobID, table, id, err)
		}
	}
	pulled := int64(len(pending))
	for _, single := range singletons {
		update := s.qb.Update(table).
			Set(single, nil).
			Set("updated_at", now).
			Where(sq.Eq{single: blobID})
		result, err := s.exec(ctx, tx, update)
		if err != nil {
			return 0, fmt.Errorf("clear %s.%s %s: %w", table, single, blobID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		pulled += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return pulled, nil
}

func withoutID(blobID string) func(raw string) (string, bool, error) {
	return func(raw string) (string, bool, error) {
		ids, err := decodeStrings(raw)
		if err != nil {
			return "", false, err
		}
		kept := make([]string, 0, len(ids))
		for _, id := range ids {
			if id != blobID {
				kept = append(kept, id)
			}
		}
		if len(kept) == len(ids) {
			return raw, false, nil
		}
		return encodeJSON(kept), true, nil
	}
}

func encodeJSON(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(data)
}

func decodeStrings(raw string) ([]string, error) {
	out := []string{}
	if strings.TrimSpace(raw) == "" || raw == "null" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func decodeInto[T any](raw string, target *[]T) error {
	*target = []T{}
	if strings.TrimSpace(raw) == "" || raw == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return fmt.Errorf("decode list: %w", err)
	}
	if *target == nil {
		*target = []T{}
	}
	return nil
}

func nullString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullTime(value *time.Time) sql.NullString {
	if value == nil || value.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: store.FormatTime(*value), Valid: true}
}

func parseNullTime(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	parsed, err := store.ParseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseTimes(created, updated string) (time.Time, time.Time, error) {
	createdAt, err := store.ParseTime(created)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	updatedAt, err := store.ParseTime(updated)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return createdAt, updatedAt, nil
}

// stamp assigns an id when missing and refreshes timestamps.
func (s *Store) stamp(id *string, createdAt, updatedAt *time.Time) error {
	now := s.now()
	if strings.TrimSpace(*id) == "" {
		generated, err := store.NewID()
		if err != nil {
			return err
		}
		*id = generated
	}
	if createdAt.IsZero() {
		*createdAt = now
	}
	*updatedAt = now
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func collect[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	out := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
