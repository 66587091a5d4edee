package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	"deptcms/internal/api"
	internalauth "deptcms/internal/auth"
	"deptcms/internal/blobstore"
	"deptcms/internal/ingest"
	"deptcms/internal/models"
	"deptcms/internal/store"
	"deptcms/internal/tenant"
)

const testPassword = "password-123"

type testEnv struct {
	srv      *Server
	store    *store.Store
	registry *tenant.Registry
	handler  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "control.db"))
	if err != nil {
		t.Fatalf("open control store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry, err := tenant.NewRegistry(st, tenant.Options{
		Dir:       filepath.Join(dir, "tenants"),
		ChunkSize: 8,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close() })

	srv := New("127.0.0.1:0", Options{
		Auth:     st,
		Registry: registry,
		Pipeline: ingest.New(ingest.Options{Logger: logger}),
		Logger:   logger,
	})
	return &testEnv{srv: srv, store: st, registry: registry, handler: srv.Handler()}
}

func (e *testEnv) seedUser(t *testing.T, username, department string) {
	t.Helper()
	hash, err := internalauth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	_, err = e.store.CreateUser(context.Background(), store.NewAuthUser{
		Username:     username,
		Department:   department,
		PasswordHash: hash,
	}, time.Now().UTC())
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
}

// login seeds a user for department and returns a bearer token.
func (e *testEnv) login(t *testing.T, username, department string) string {
	t.Helper()
	e.seedUser(t, username, department)
	body := []byte(`{"username":"` + username + `","password":"` + testPassword + `"}`)
	w := e.do(t, http.MethodPost, "/v1/auth/login", "", bytes.NewReader(body), "application/json")
	if w.Code != http.StatusOK {
		t.Fatalf("expected login 200, got %d (%s)", w.Code, w.Body.String())
	}
	me := decodeData[api.AuthMeResponse](t, w)
	if me.Token == "" {
		t.Fatal("expected token in login response")
	}
	return me.Token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) bucket(t *testing.T, department string, recordType models.RecordType) *blobstore.Bucket {
	t.Helper()
	binding, err := e.registry.Bind(context.Background(), department, recordType)
	if err != nil {
		t.Fatalf("bind %s/%s: %v", department, recordType, err)
	}
	return binding.Bucket
}

type testEnvelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var env testEnvelope[T]
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, w.Body.String())
	}
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", w.Body.String())
	}
	return env.Data
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v (%s)", err, w.Body.String())
	}
	if resp.Success {
		t.Fatalf("expected failure envelope, got %s", w.Body.String())
	}
	return resp
}

type filePart struct {
	field       string
	filename    string
	contentType string
	body        string
}

type formField struct {
	name  string
	value string
}

func multipartBody(t *testing.T, fields []formField, files ...filePart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, field := range fields {
		if err := mw.WriteField(field.name, field.value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, file := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+file.field+`"; filename="`+file.filename+`"`)
		if file.contentType != "" {
			header.Set("Content-Type", file.contentType)
		}
		part, err := mw.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := io.WriteString(part, file.body); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func blobExists(t *testing.T, bucket *blobstore.Bucket, id string) bool {
	t.Helper()
	_, err := bucket.Stat(context.Background(), id)
	if err == nil {
		return true
	}
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return false
	}
	t.Fatalf("stat %s: %v", id, err)
	return false
}
