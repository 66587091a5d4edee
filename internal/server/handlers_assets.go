package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"deptcms/internal/blobstore"
	"deptcms/internal/models"
	"deptcms/internal/store"
	"deptcms/internal/tenant"
)

func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	department, ok := departmentFromContext(r.Context())
	if !ok {
		http.Error(w, "department required", http.StatusForbidden)
		return
	}
	s.streamAsset(w, r, department)
}

func (s *Server) handlePublicAsset(w http.ResponseWriter, r *http.Request) {
	s.streamAsset(w, r, s.publicDepartment(r))
}

// streamAsset writes one blob. Errors are plain text since clients render
// these URLs directly.
func (s *Server) streamAsset(w http.ResponseWriter, r *http.Request, department string) {
	recordType, err := models.ParseRecordType(r.PathValue("type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	if !store.ValidID(id) {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if s.registry == nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	b, err := s.registry.Bind(r.Context(), department, recordType)
	switch {
	case errors.Is(err, tenant.ErrUnknownTenant):
		http.Error(w, "unknown department", http.StatusForbidden)
		return
	case errors.Is(err, tenant.ErrTenant):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.log().Error("bind asset tenant", "department", department, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	body, meta, err := b.Bucket.OpenReadStream(r.Context(), id)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log().Error("open asset", "department", department, "bucket", b.Bucket.Name(), "blob_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer body.Close()

	etag := ""
	if meta.SHA256 != "" {
		etag = `"` + meta.SHA256 + `"`
		w.Header().Set("ETag", etag)
	}
	if etag != "" && etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	contentType := meta.ContentType
	if contentType == "" {
		contentType = blobstore.DefaultContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Length, 10))
	if disposition := mime.FormatMediaType("inline", map[string]string{"filename": meta.Filename}); disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, body); err != nil {
		s.log().Warn("asset stream interrupted", "department", department, "blob_id", id, "error", err)
	}
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
