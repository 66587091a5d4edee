package server

import (
	"net/http"

	"deptcms/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	tenants := 0
	if s.registry != nil {
		tenants = len(s.registry.Opened())
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Tenants: tenants})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.NotFound(w, r)
		return
	}
	s.metrics.ServeHTTP(w, r)
}
