package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

const (
	UserRoleEditor = "editor"
	UserRoleAdmin  = "admin"
)

var userColumns = []string{
	"u.id", "u.username", "u.email", "u.department", "u.password_hash",
	"u.role", "u.disabled", "u.created_at", "u.updated_at",
}

// qb builds control database statements.
var qb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// AuthUser is one provisioned login bound to exactly one department.
type AuthUser struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	Department   string    `json:"department"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Disabled     bool      `json:"disabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type NewAuthUser struct {
	Username     string
	Email        string
	Department   string
	PasswordHash string
	Role         string
}

// NormalizeDepartment returns the canonical lowercase department key.
func NormalizeDepartment(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func normalizeUsername(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func (s *Store) CountEnabledUsers(ctx context.Context) (int, error) {
	query, args, err := qb.Select("COUNT(*)").From("users").Where(sq.Eq{"disabled": 0}).ToSql()
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// CreateUser provisions one user. The role defaults to editor.
func (s *Store) CreateUser(ctx context.Context, in NewAuthUser, now time.Time) (*AuthUser, error) {
	user := &AuthUser{
		Username:     normalizeUsername(in.Username),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Department:   NormalizeDepartment(in.Department),
		PasswordHash: strings.TrimSpace(in.PasswordHash),
		Role:         strings.TrimSpace(in.Role),
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
	switch {
	case user.Username == "":
		return nil, fmt.Errorf("username is required")
	case user.Department == "":
		return nil, fmt.Errorf("department is required")
	case user.PasswordHash == "":
		return nil, fmt.Errorf("password hash is required")
	}
	if user.Role == "" {
		user.Role = UserRoleEditor
	}

	id, err := NewID()
	if err != nil {
		return nil, err
	}
	user.ID = id

	query, args, err := qb.Insert("users").
		Columns("id", "username", "email", "department", "password_hash", "role", "disabled", "created_at", "updated_at").
		Values(user.ID, user.Username, user.Email, user.Department, user.PasswordHash, user.Role, 0,
			FormatTime(user.CreatedAt), FormatTime(user.UpdatedAt)).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert user %s: %w", user.Username, err)
	}
	return user, nil
}

// GetUserByUsername returns nil, nil when no such user exists.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*AuthUser, error) {
	username = normalizeUsername(username)
	if username == "" {
		return nil, nil
	}
	return s.getUser(ctx, sq.Eq{"u.username": username})
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*AuthUser, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	return s.getUser(ctx, sq.Eq{"u.id": id})
}

func (s *Store) getUser(ctx context.Context, where sq.Sqlizer) (*AuthUser, error) {
	query, args, err := qb.Select(userColumns...).From("users u").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, err
	}
	return scanUser(s.db.QueryRowContext(ctx, query, args...))
}

// ListUsers returns every user ordered by department, then username.
func (s *Store) ListUsers(ctx context.Context) ([]AuthUser, error) {
	query, args, err := qb.Select(userColumns...).From("users u").OrderBy("u.department ASC", "u.username ASC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]AuthUser, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// DepartmentExists reports whether at least one user is bound to department.
// The department directory is derived from users; there is no separate table.
func (s *Store) DepartmentExists(ctx context.Context, department string) (bool, error) {
	department = NormalizeDepartment(department)
	if department == "" {
		return false, nil
	}
	query, args, err := qb.Select("1").From("users").Where(sq.Eq{"department": department}).Limit(1).ToSql()
	if err != nil {
		return false, err
	}
	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) ListDepartments(ctx context.Context) ([]string, error) {
	query, args, err := qb.Select("DISTINCT department").From("users").OrderBy("department ASC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var department string
		if err := rows.Scan(&department); err != nil {
			return nil, err
		}
		out = append(out, department)
	}
	return out, rows.Err()
}

// SetUserDisabled returns nil, nil when the user does not exist.
func (s *Store) SetUserDisabled(ctx context.Context, username string, disabled bool, now time.Time) (*AuthUser, error) {
	username = normalizeUsername(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	flag := 0
	if disabled {
		flag = 1
	}
	query, args, err := qb.Update("users").
		Set("disabled", flag).
		Set("updated_at", FormatTime(now)).
		Where(sq.Eq{"username": username}).
		ToSql()
	if err != nil {
		return nil, err
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update user %s: %w", username, err)
	}
	if affected, err := result.RowsAffected(); err != nil || affected == 0 {
		return nil, err
	}
	return s.GetUserByUsername(ctx, username)
}

// DeleteUser removes a user and, through the foreign key, their sessions.
func (s *Store) DeleteUser(ctx context.Context, username string) (bool, error) {
	username = normalizeUsername(username)
	if username == "" {
		return false, fmt.Errorf("username is required")
	}
	query, args, err := qb.Delete("users").Where(sq.Eq{"username": username}).ToSql()
	if err != nil {
		return false, err
	}
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete user %s: %w", username, err)
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

// CreateSession stores the hash of a new session token for userID.
func (s *Store) CreateSession(ctx context.Context, userID, tokenHash string, expiresAt, createdAt time.Time) error {
	userID = strings.TrimSpace(userID)
	tokenHash = strings.TrimSpace(tokenHash)
	if userID == "" || tokenHash == "" {
		return fmt.Errorf("user id and token hash are required")
	}
	id, err := NewID()
	if err != nil {
		return err
	}
	query, args, err := qb.Insert("sessions").
		Columns("id", "user_id", "token_hash", "expires_at", "created_at").
		Values(id, userID, tokenHash, FormatTime(expiresAt), FormatTime(createdAt)).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetUserBySessionTokenHash resolves a live session. Expired, revoked and
// disabled-user sessions yield nil, nil.
func (s *Store) GetUserBySessionTokenHash(ctx context.Context, tokenHash string, now time.Time) (*AuthUser, error) {
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return nil, nil
	}
	query, args, err := qb.Select(userColumns...).
		From("sessions s").
		Join("users u ON u.id = s.user_id").
		Where(sq.Eq{"s.token_hash": tokenHash, "s.revoked_at": nil, "u.disabled": 0}).
		Where(sq.Gt{"s.expires_at": FormatTime(now)}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	return scanUser(s.db.QueryRowContext(ctx, query, args...))
}

func (s *Store) RevokeSessionByTokenHash(ctx context.Context, tokenHash string, revokedAt time.Time) error {
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" {
		return nil
	}
	query, args, err := qb.Update("sessions").
		Set("revoked_at", FormatTime(revokedAt)).
		Where(sq.Eq{"token_hash": tokenHash, "revoked_at": nil}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// scanUser maps sql.ErrNoRows to nil, nil.
func scanUser(row interface{ Scan(dest ...any) error }) (*AuthUser, error) {
	var user AuthUser
	var disabled int
	var created, updated string
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.Department, &user.PasswordHash,
		&user.Role, &disabled, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.Disabled = disabled != 0
	if user.CreatedAt, err = ParseTime(created); err != nil {
		return nil, err
	}
	if user.UpdatedAt, err = ParseTime(updated); err != nil {
		return nil, err
	}
	return &user, nil
}
