package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"deptcms/internal/api"
)

func loginRequest(username, password, remoteAddr string) *http.Request {
	body := []byte(`{"username":"` + username + `","password":"` + password + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	return req
}

func TestBrowserSessionLoginFlow(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "hod", "CSE")

	loginW := httptest.NewRecorder()
	env.handler.ServeHTTP(loginW, loginRequest("hod", testPassword, ""))
	if loginW.Code != http.StatusOK {
		t.Fatalf("expected login 200, got %d (%s)", loginW.Code, loginW.Body.String())
	}

	var sessionCookie *http.Cookie
	for _, c := range loginW.Result().Cookies() {
		if c.Name == sessionCookieName {
			sessionCookie = c
			break
		}
	}
	if sessionCookie == nil {
		t.Fatal("expected session cookie on login response")
	}
	if !sessionCookie.HttpOnly {
		t.Fatal("expected HttpOnly session cookie")
	}

	meReq := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	meReq.AddCookie(sessionCookie)
	meW := httptest.NewRecorder()
	env.handler.ServeHTTP(meW, meReq)
	if meW.Code != http.StatusOK {
		t.Fatalf("expected auth me 200, got %d (%s)", meW.Code, meW.Body.String())
	}
	me := decodeData[api.AuthMeResponse](t, meW)
	if me.Username != "hod" || me.Department != "cse" {
		t.Fatalf("unexpected identity: %+v", me)
	}
	if me.AuthType != authTypeSession {
		t.Fatalf("expected auth_type %q, got %q", authTypeSession, me.AuthType)
	}

	logoutReq := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	logoutReq.AddCookie(sessionCookie)
	logoutW := httptest.NewRecorder()
	env.handler.ServeHTTP(logoutW, logoutReq)
	if logoutW.Code != http.StatusOK {
		t.Fatalf("expected logout 200, got %d (%s)", logoutW.Code, logoutW.Body.String())
	}

	afterReq := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	afterReq.AddCookie(sessionCookie)
	afterW := httptest.NewRecorder()
	env.handler.ServeHTTP(afterW, afterReq)
	if afterW.Code != http.StatusUnauthorized {
		t.Fatalf("expected events to be unauthorized after logout, got %d", afterW.Code)
	}
}

func TestAuthLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "hod", "cse")

	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, loginRequest("hod", "wrong-password", ""))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected login 401, got %d (%s)", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, loginRequest("nobody@dept.edu", testPassword, ""))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected unknown user 401, got %d (%s)", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, loginRequest("two words", testPassword, ""))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected malformed username 400, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestAuthLoginRateLimitedAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)
	env.srv.loginLimiter = newLoginRateLimiter(2, time.Minute, 10*time.Minute)
	env.seedUser(t, "hod", "cse")

	for attempt := 1; attempt <= 2; attempt++ {
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, loginRequest("hod", "wrong-password", "127.0.0.1:12345"))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d (%s)", attempt, w.Code, w.Body.String())
		}
	}

	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, loginRequest("hod", testPassword, "127.0.0.1:12345"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate-limited login to return 429, got %d (%s)", w.Code, w.Body.String())
	}
	var errResp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.ErrorCode != ErrCodeResourceExhausted {
		t.Fatalf("expected error_code %d, got %d", ErrCodeResourceExhausted, errResp.ErrorCode)
	}
}

func TestAuthLoginSuccessResetsRateLimiterState(t *testing.T) {
	env := newTestEnv(t)
	env.srv.loginLimiter = newLoginRateLimiter(2, time.Minute, 10*time.Minute)
	env.seedUser(t, "hod", "cse")

	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, loginRequest("hod", "wrong-password", "127.0.0.1:22334"))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected first wrong login 401, got %d", w.Code)
	}
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, loginRequest("hod", testPassword, "127.0.0.1:22334"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected successful login 200, got %d (%s)", w.Code, w.Body.String())
	}
	for attempt := 1; attempt <= 2; attempt++ {
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, loginRequest("hod", "wrong-password", "127.0.0.1:22334"))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("post-reset attempt %d: expected 401, got %d", attempt, w.Code)
		}
	}
}

func TestLoginRateLimiterBlockExpires(t *testing.T) {
	limiter := newLoginRateLimiter(1, time.Minute, 5*time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	limiter.RegisterFailure("k", now)
	if limiter.Allow("k", now.Add(time.Second)) {
		t.Fatal("expected key to be blocked")
	}
	if !limiter.Allow("k", now.Add(6*time.Minute)) {
		t.Fatal("expected block to expire")
	}
	if !limiter.Allow("other", now) {
		t.Fatal("expected unrelated key to be allowed")
	}
}
