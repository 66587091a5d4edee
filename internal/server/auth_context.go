package server

import (
	"context"

	"deptcms/internal/store"
)

type authContextKey struct{}

type authPrincipal struct {
	AuthType string
	User     *store.AuthUser
	Token    string
}

func contextWithAuthPrincipal(ctx context.Context, principal authPrincipal) context.Context {
	return context.WithValue(ctx, authContextKey{}, principal)
}

func authPrincipalFromContext(ctx context.Context) (authPrincipal, bool) {
	if ctx == nil {
		return authPrincipal{}, false
	}
	principal, ok := ctx.Value(authContextKey{}).(authPrincipal)
	return principal, ok
}

// departmentFromContext returns the tenant key of the authenticated user.
func departmentFromContext(ctx context.Context) (string, bool) {
	principal, ok := authPrincipalFromContext(ctx)
	if !ok || principal.User == nil || principal.User.Department == "" {
		return "", false
	}
	return principal.User.Department, true
}
