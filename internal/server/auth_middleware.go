package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// withAuth requires a session for every /v1/ route except login, public and health.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAnonymousPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, authType := requestToken(r)
		if token == "" {
			s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("unauthorized")))
			return
		}
		user, err := s.authService.Authenticate(r.Context(), token, time.Now().UTC())
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		if user == nil {
			s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("unauthorized")))
			return
		}

		noteDepartment(w, user.Department)
		ctx := contextWithAuthPrincipal(r.Context(), authPrincipal{AuthType: authType, User: user, Token: token})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isAnonymousPath(path string) bool {
	switch {
	case path == "/health", path == "/metrics", path == "/v1/auth/login":
		return true
	case strings.HasPrefix(path, "/v1/public/"):
		return true
	case !strings.HasPrefix(path, "/v1/"):
		return true
	default:
		return false
	}
}

// requestToken prefers an explicit bearer token over the session cookie.
func requestToken(r *http.Request) (string, string) {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, value, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(value), authTypeBearer
		}
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return strings.TrimSpace(cookie.Value), authTypeSession
	}
	return "", ""
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		return strings.ToLower(proto)
	}
	return "http"
}
