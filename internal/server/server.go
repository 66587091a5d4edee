package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"deptcms/internal/ingest"
	"deptcms/internal/refs"
	"deptcms/internal/store"
	"deptcms/internal/tenant"
)

const (
	allowRemoteEnvKey      = "DEPTCMS_ALLOW_REMOTE"
	readHeaderTimeout      = 5 * time.Second
	readTimeout            = 5 * time.Minute
	writeTimeout           = 5 * time.Minute
	idleTimeout            = 60 * time.Second
	shutdownTimeout        = 15 * time.Second
	uploadConcurrencyLimit = 16
	defaultMaxUploadBytes  = 100 << 20
	defaultTenantHeader    = "X-Department"
)

// Options wires the server to its collaborators.
type Options struct {
	Auth           store.AuthStore
	Registry       *tenant.Registry
	Pipeline       *ingest.Pipeline
	Refs           *refs.Manager
	MaxUploadBytes int64
	AllowedOrigins []string
	TenantHeader   string
	Metrics        http.Handler
	Logger         *slog.Logger
}

// Server wraps HTTP handlers for the deptcms API.
type Server struct {
	addr           string
	authService    *AuthService
	registry       *tenant.Registry
	pipeline       *ingest.Pipeline
	refs           *refs.Manager
	services       contentServices
	maxUploadBytes int64
	allowedOrigins []string
	tenantHeader   string
	metrics        http.Handler
	logger         *slog.Logger
	loginLimiter   *loginRateLimiter
	uploadLimiter  chan struct{}
}

// New creates a new server instance.
func New(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	manager := opts.Refs
	if manager == nil {
		manager = refs.New(logger)
	}
	pipeline := opts.Pipeline
	if pipeline == nil {
		pipeline = ingest.New(ingest.Options{Logger: logger})
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	header := strings.TrimSpace(opts.TenantHeader)
	if header == "" {
		header = defaultTenantHeader
	}

	return &Server{
		addr:           addr,
		authService:    NewAuthService(opts.Auth),
		registry:       opts.Registry,
		pipeline:       pipeline,
		refs:           manager,
		services:       newContentServices(manager, logger),
		maxUploadBytes: maxUpload,
		allowedOrigins: opts.AllowedOrigins,
		tenantHeader:   header,
		metrics:        opts.Metrics,
		logger:         logger,
		loginLimiter:   newLoginRateLimiter(defaultLoginMaxFailures, defaultLoginWindow, defaultLoginBlock),
		uploadLimiter:  make(chan struct{}, uploadConcurrencyLimit),
	}
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.withAuth(s.routes()))
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}

func (s *Server) withLimiter(w http.ResponseWriter, r *http.Request, limiter chan struct{}, name string, fn func()) {
	if !s.acquireLimiter(limiter, w, r, name) {
		return
	}
	defer s.releaseLimiter(limiter)
	fn()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
