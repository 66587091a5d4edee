package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"deptcms/internal/api"
	"deptcms/internal/models"
)

func seedAbout(t *testing.T, env *testEnv, token string) models.About {
	t.Helper()
	body, contentType := multipartBody(t,
		[]formField{{"hod_name", "Dr. X"}, {"hod_message", "hi"}},
		filePart{field: "hod_image", filename: "portrait.png", contentType: "image/png", body: "portrait"},
	)
	w := env.do(t, http.MethodPost, "/v1/about", token, body, contentType)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	return decodeData[models.About](t, w)
}

func TestPublicListUsesDepartmentHeaderOrQuery(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "hod", "cse")
	about := seedAbout(t, env, token)

	req := httptest.NewRequest(http.MethodGet, "/v1/public/about", nil)
	req.Header.Set(defaultTenantHeader, "CSE")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if got := decodeData[*models.About](t, w); got == nil || got.ID != about.ID {
		t.Fatalf("expected about %s, got %+v", about.ID, got)
	}

	w = env.do(t, http.MethodGet, "/v1/public/about?department=cse", "", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 via query, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/v1/public/about", "", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without department, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.ErrorCode != ErrCodeInvalidTenant {
		t.Fatalf("expected error_code %d, got %d", ErrCodeInvalidTenant, resp.ErrorCode)
	}

	w = env.do(t, http.MethodGet, "/v1/public/about?department=mech", "", nil, "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown department, got %d", w.Code)
	}
}

func TestPublicRoutesAreReadOnlyWithCORS(t *testing.T) {
	env := newTestEnv(t)
	env.login(t, "hod", "cse")

	req := httptest.NewRequest(http.MethodGet, "/v1/public/events?department=cse", nil)
	req.Header.Set("Origin", "https://cse.example.edu")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Fatal("expected CORS allow-origin header")
	}

	preflight := httptest.NewRequest(http.MethodOptions, "/v1/public/events", nil)
	preflight.Header.Set("Origin", "https://cse.example.edu")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, preflight)
	if w.Code >= 300 {
		t.Fatalf("expected preflight success, got %d", w.Code)
	}

	post := httptest.NewRequest(http.MethodPost, "/v1/public/events?department=cse", strings.NewReader("{}"))
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, post)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for public write, got %d", w.Code)
	}
}

func TestPublicBannerListLinksPublicAssets(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "hod", "cse")
	body, contentType := multipartBody(t, nil,
		filePart{field: "banner", filename: "one.png", contentType: "image/png", body: "one"},
	)
	if w := env.do(t, http.MethodPost, "/v1/banners", token, body, contentType); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}

	items := decodeData[[]api.BannerItem](t, env.do(t, http.MethodGet, "/v1/public/banners?department=cse", "", nil, ""))
	if len(items) != 1 {
		t.Fatalf("expected one banner, got %+v", items)
	}
	if !strings.HasPrefix(items[0].URL, publicAssetPrefix+"banners/") || !strings.HasSuffix(items[0].URL, "?department=cse") {
		t.Fatalf("unexpected public url %q", items[0].URL)
	}

	w := env.do(t, http.MethodGet, items[0].URL, "", nil, "")
	if w.Code != http.StatusOK || w.Body.String() != "one" {
		t.Fatalf("expected public asset, got %d %q", w.Code, w.Body.String())
	}
}
