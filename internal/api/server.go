// Package api provides the HTTP API server, router and auth for the leasectl
// daemon.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leasectl/leasectl/internal/client"
	"github.com/leasectl/leasectl/internal/config"
	"github.com/leasectl/leasectl/internal/history"
	"github.com/leasectl/leasectl/internal/task"
)

// ReleaseFunc sends a DHCPRELEASE for ip, leased to mac, to serverID.
type ReleaseFunc func(ctx context.Context, mac, ip, serverID string) error

// Server is the HTTP API server for the leasectl daemon.
type Server struct {
	cfg        config.APIConfig
	registry   *task.Registry
	history    *history.Store
	release    ReleaseFunc
	logger     *slog.Logger
	httpServer *http.Server
	auth       *AuthMiddleware
	startTime  time.Time
	version    string
}

// NewServer creates a new API server that submits lease requests to reg.
func NewServer(cfg config.APIConfig, reg *task.Registry, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:       cfg,
		registry:  reg,
		logger:    logger,
		startTime: time.Now(),
		version:   "dev",
		release: func(ctx context.Context, mac, ip, serverID string) error {
			return client.Release(ctx, mac, ip, serverID, client.WithLogger(logger))
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	s.auth = NewAuthMiddleware(cfg.Auth.AuthToken, cfg.Auth.Users, logger)
	return s
}

// ServerOption configures optional Server fields.
type ServerOption func(*Server)

// WithHistory sets the lease history store used by the history endpoints
// and by release lookups.
func WithHistory(h *history.Store) ServerOption {
	return func(s *Server) { s.history = h }
}

// WithReleaser overrides how DHCPRELEASE messages are sent.
func WithReleaser(fn ReleaseFunc) ServerOption {
	return func(s *Server) {
		if fn != nil {
			s.release = fn
		}
	}
}

// WithVersion sets the server version string.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return newMetricsMiddleware(mux)
}

// Listen binds the API server to its configured address and prepares routes.
// Call this synchronously to catch port conflicts before starting background serve.
func (s *Server) Listen() (net.Listener, error) {
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("binding API server to %s: %w", s.cfg.Listen, err)
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return ln, nil
}

// Serve accepts connections on the listener. Blocks until shutdown.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// registerRoutes sets up all API endpoints.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Prometheus metrics (no auth)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Health check (no auth)
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	// Lease tasks
	mux.HandleFunc("POST /api/v1/leases", s.auth.RequireAuth(s.handleRequestLease))
	mux.HandleFunc("GET /api/v1/tasks", s.auth.RequireAuth(s.handleListTasks))
	mux.HandleFunc("GET /api/v1/tasks/{id}", s.auth.RequireAuth(s.handleGetTask))

	// Release
	mux.HandleFunc("POST /api/v1/release", s.auth.RequireAuth(s.handleRelease))

	// History
	mux.HandleFunc("GET /api/v1/history", s.auth.RequireAuth(s.handleListHistory))
	mux.HandleFunc("GET /api/v1/history/{mac}", s.auth.RequireAuth(s.handleGetHistory))
}

// JSONResponse writes a JSON response with the given status code.
func JSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// JSONError writes a JSON error response.
func JSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	})
}
