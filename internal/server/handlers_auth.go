package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"deptcms/internal/api"
	"deptcms/internal/auth"
)

func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if s.authService == nil {
		s.writeErrorReq(w, r, http.StatusNotImplemented, makeAPIError(http.StatusNotImplemented, "not_implemented", ErrCodeNotImplemented, fmt.Errorf("login is not configured")))
		return
	}

	var req api.AuthLoginRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	now := time.Now().UTC()
	key := loginAttemptKey(req.Username, r)
	if !s.loginLimiter.Allow(key, now) {
		s.writeErrorReq(w, r, http.StatusTooManyRequests, makeAPIError(http.StatusTooManyRequests, "resource_exhausted", ErrCodeResourceExhausted, fmt.Errorf("too many login attempts; retry later")))
		return
	}

	result, err := s.authService.Login(r.Context(), req.Username, req.Password, now)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.loginLimiter.RegisterFailure(key, now)
		s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(err))
		return
	case errors.Is(err, auth.ErrInvalidInput):
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequest(err))
		return
	case err != nil:
		s.writeStoreError(w, r, err)
		return
	}
	s.loginLimiter.Reset(key)

	http.SetCookie(w, sessionCookie(r, result.Token, result.ExpiresAt))
	expires := result.ExpiresAt
	s.writeOK(w, http.StatusOK, "logged in", api.AuthMeResponse{
		Authenticated: true,
		Username:      result.User.Username,
		Department:    result.User.Department,
		Role:          result.User.Role,
		AuthType:      authTypeSession,
		Token:         result.Token,
		ExpiresAt:     &expires,
	})
}

func (s *Server) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if principal, ok := authPrincipalFromContext(r.Context()); ok {
		if err := s.authService.Revoke(r.Context(), principal.Token, time.Now().UTC()); err != nil {
			s.writeStoreError(w, r, err)
			return
		}
	}
	http.SetCookie(w, sessionCookie(r, "", time.Time{}))
	s.writeOK(w, http.StatusOK, "logged out", nil)
}

func (s *Server) handleAuthMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := authPrincipalFromContext(r.Context())
	if !ok || principal.User == nil {
		s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("unauthorized")))
		return
	}
	user := principal.User
	s.writeOK(w, http.StatusOK, "", api.AuthMeResponse{
		Authenticated: true,
		Username:      user.Username,
		Department:    user.Department,
		Role:          user.Role,
		AuthType:      principal.AuthType,
	})
}

// sessionCookie sets token until expires. An empty token clears the cookie.
func sessionCookie(r *http.Request, token string, expires time.Time) *http.Cookie {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   requestScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
	}
	if token == "" {
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0).UTC()
		return cookie
	}
	cookie.Expires = expires
	cookie.MaxAge = int(time.Until(expires) / time.Second)
	return cookie
}

// loginAttemptKey scopes failed-login counting to one client and one username.
func loginAttemptKey(username string, r *http.Request) string {
	user := strings.ToLower(strings.TrimSpace(username))
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	return host + "|" + user
}
