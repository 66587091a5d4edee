package server

import (
	"context"
	"fmt"
	"strings"
	"time"

	"deptcms/internal/auth"
	"deptcms/internal/store"
)

const (
	sessionCookieName = "deptcms_session"
	authTypeBearer    = "bearer"
	authTypeSession   = "session"
	defaultSessionTTL = 24 * time.Hour
)

// AuthService turns credentials into department-bound sessions.
type AuthService struct {
	store      store.AuthStore
	sessionTTL time.Duration
}

type loginResult struct {
	User      *store.AuthUser
	Token     string
	ExpiresAt time.Time
}

func NewAuthService(authStore store.AuthStore) *AuthService {
	if authStore == nil {
		return nil
	}
	return &AuthService{store: authStore, sessionTTL: defaultSessionTTL}
}

// Login checks the password and opens a session. Unknown, disabled and
// department-less users all fail with auth.ErrInvalidCredentials.
func (a *AuthService) Login(ctx context.Context, username, password string, now time.Time) (*loginResult, error) {
	normalized, err := auth.NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: password is required", auth.ErrInvalidInput)
	}

	user, err := a.store.GetUserByUsername(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if user == nil {
		auth.SpendVerifyTime(password)
		return nil, auth.ErrInvalidCredentials
	}
	if !auth.VerifyPassword(user.PasswordHash, password) || user.Disabled || user.Department == "" {
		return nil, auth.ErrInvalidCredentials
	}

	token, hash, err := auth.NewSessionToken()
	if err != nil {
		return nil, err
	}
	expiresAt := now.Add(a.sessionTTL)
	if err := a.store.CreateSession(ctx, user.ID, hash, expiresAt, now); err != nil {
		return nil, err
	}
	return &loginResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// Authenticate returns the user owning token, or nil for unknown, revoked and expired tokens.
func (a *AuthService) Authenticate(ctx context.Context, token string, now time.Time) (*store.AuthUser, error) {
	if a == nil || strings.TrimSpace(token) == "" {
		return nil, nil
	}
	return a.store.GetUserBySessionTokenHash(ctx, auth.HashSessionToken(token), now)
}

func (a *AuthService) Revoke(ctx context.Context, token string, now time.Time) error {
	if a == nil || strings.TrimSpace(token) == "" {
		return nil
	}
	return a.store.RevokeSessionByTokenHash(ctx, auth.HashSessionToken(token), now)
}
