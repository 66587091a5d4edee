package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// statusRecorder captures what a handler wrote so the request can be logged afterwards.
type statusRecorder struct {
	http.ResponseWriter
	status     int
	bytes      int64
	department string
}

func (w *statusRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// noteDepartment tags the request log line with the tenant the request acted on.
func noteDepartment(w http.ResponseWriter, department string) {
	if rec, ok := w.(*statusRecorder); ok {
		rec.department = department
	}
}

// withRequestLogging logs one line per request: 5xx at error, the rest at debug.
// Probes on /health and /metrics are not logged.
func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		if strings.HasPrefix(r.URL.Path, "/v1/public/") {
			rec.department = s.publicDepartment(r)
		}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelDebug
		if status >= 500 {
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int64("bytes", rec.bytes),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_addr", r.RemoteAddr),
		}
		if rec.department != "" {
			attrs = append(attrs, slog.String("department", rec.department))
		}
		s.log().LogAttrs(context.WithoutCancel(r.Context()), level, "request complete", attrs...)
	})
}
