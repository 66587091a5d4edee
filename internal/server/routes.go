package server

import (
	"net/http"

	"deptcms/internal/models"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health and metrics.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	// Auth.
	mux.HandleFunc("POST /v1/auth/login", s.handleAuthLogin)
	mux.HandleFunc("POST /v1/auth/logout", s.handleAuthLogout)
	mux.HandleFunc("GET /v1/auth/me", s.handleAuthMe)

	// Records.
	for _, recordType := range models.AllRecordTypes() {
		base := "/v1/" + string(recordType)
		mux.HandleFunc("GET "+base, s.handleListRecords(recordType))
		mux.HandleFunc("POST "+base, s.handleCreateRecord(recordType))
		mux.HandleFunc("DELETE "+base, s.handleDeleteRecord(recordType))
		if recordType == models.RecordBanners {
			mux.HandleFunc("PATCH "+base, s.handleReorderBanners)
		} else {
			mux.HandleFunc("PATCH "+base, s.handleUpdateRecord(recordType))
		}
		if recordType != models.RecordAbout {
			mux.HandleFunc("GET "+base+"/count", s.handleCountRecords(recordType))
		}
	}

	// Single reference removal.
	mux.HandleFunc("DELETE /v1/about/image", s.handleRemoveReference(models.RecordAbout))
	mux.HandleFunc("DELETE /v1/events/image", s.handleRemoveReference(models.RecordEvents))
	mux.HandleFunc("DELETE /v1/labs/image", s.handleRemoveReference(models.RecordLabs))
	mux.HandleFunc("DELETE /v1/programs/scheme", s.handleRemoveReference(models.RecordPrograms))

	// Assets.
	mux.HandleFunc("GET /v1/assets/{type}/{id}", s.handleAsset)

	// Public website API.
	mux.Handle("/v1/public/", s.publicRoutes())

	return mux
}
