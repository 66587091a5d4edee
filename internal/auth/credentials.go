// Package auth holds credential rules and session token handling for
// department users.
package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordBytes = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordBytes = 72
	maxUsernameBytes = 64
)

var (
	ErrInvalidInput       = errors.New("invalid credentials input")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Logins are either short handles or the department contact email.
var usernamePattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9._+-]*[a-z0-9])?(?:@[a-z0-9](?:[a-z0-9.-]*[a-z0-9])?)?$`)

// NormalizeUsername lower-cases raw and checks it is a handle or email.
func NormalizeUsername(raw string) (string, error) {
	username := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case username == "":
		return "", fmt.Errorf("%w: username is required", ErrInvalidInput)
	case len(username) > maxUsernameBytes:
		return "", fmt.Errorf("%w: username longer than %d bytes", ErrInvalidInput, maxUsernameBytes)
	case !usernamePattern.MatchString(username):
		return "", fmt.Errorf("%w: username %q has unsupported characters", ErrInvalidInput, username)
	}
	return username, nil
}

func ValidatePassword(password string) error {
	if len(password) < minPasswordBytes {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordBytes)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, maxPasswordBytes)
	}
	return nil
}

// HashPassword validates and bcrypt-hashes a new password.
func HashPassword(password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// VerifyPassword reports whether candidate matches hash. An empty hash never matches.
func VerifyPassword(hash, candidate string) bool {
	if strings.TrimSpace(hash) == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}

var (
	decoyOnce sync.Once
	decoyHash []byte
)

// SpendVerifyTime runs one bcrypt comparison against a throwaway hash so a
// login for an unknown user costs as much as a wrong password.
func SpendVerifyTime(candidate string) {
	decoyOnce.Do(func() {
		decoyHash, _ = bcrypt.GenerateFromPassword([]byte("deptcms-decoy-password"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(decoyHash, []byte(candidate))
}
