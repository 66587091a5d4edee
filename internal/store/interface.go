package store

import (
	"context"
	"time"
)

// AuthStore abstracts the user and session operations used by the HTTP layer.
type AuthStore interface {
	CountEnabledUsers(ctx context.Context) (int, error)
	GetUserByUsername(ctx context.Context, username string) (*AuthUser, error)
	CreateSession(ctx context.Context, userID, tokenHash string, expiresAt, createdAt time.Time) error
	GetUserBySessionTokenHash(ctx context.Context, tokenHash string, now time.Time) (*AuthUser, error)
	RevokeSessionByTokenHash(ctx context.Context, tokenHash string, revokedAt time.Time) error
}

// UserAdminStore adds the provisioning operations used by the CLI.
type UserAdminStore interface {
	AuthStore
	CreateUser(ctx context.Context, in NewAuthUser, now time.Time) (*AuthUser, error)
	ListUsers(ctx context.Context) ([]AuthUser, error)
	SetUserDisabled(ctx context.Context, username string, disabled bool, now time.Time) (*AuthUser, error)
	DeleteUser(ctx context.Context, username string) (bool, error)
	ListDepartments(ctx context.Context) ([]string, error)
}

var _ UserAdminStore = (*Store)(nil)
