package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/cors"

	"deptcms/internal/models"
)

const publicAssetPrefix = "/v1/public/assets/"

// publicRoutes serves the read-only website API. The department comes from
// a header or the department query parameter instead of a session.
func (s *Server) publicRoutes() http.Handler {
	mux := http.NewServeMux()
	for _, recordType := range models.AllRecordTypes() {
		mux.HandleFunc("GET /v1/public/"+string(recordType), s.handlePublicList(recordType))
	}
	mux.HandleFunc("GET /v1/public/assets/{type}/{id}", s.handlePublicAsset)

	origins := s.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{s.tenantHeader, "If-None-Match"},
		ExposedHeaders: []string{"ETag", "Content-Disposition"},
		MaxAge:         600,
	}).Handler(mux)
}

func (s *Server) publicDepartment(r *http.Request) string {
	if value := strings.TrimSpace(r.Header.Get(s.tenantHeader)); value != "" {
		return value
	}
	return strings.TrimSpace(r.URL.Query().Get("department"))
}

func (s *Server) handlePublicList(recordType models.RecordType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		department := s.publicDepartment(r)
		b, ok := s.bind(w, r, department, recordType)
		if !ok {
			return
		}
		data, err := s.services.byType(recordType).List(r.Context(), b, publicAssetLink(b.Namespace.Key))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeOK(w, http.StatusOK, "", data)
	}
}

func publicAssetLink(department string) assetLinker {
	base := assetPath(publicAssetPrefix)
	return func(recordType models.RecordType, blobID string) string {
		return base(recordType, blobID) + "?department=" + url.QueryEscape(department)
	}
}
