package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/wonny/canslim/pkg/config"
	"github.com/wonny/canslim/pkg/logger"
)

const readyCheckTimeout = 5 * time.Second

// CheckFunc reports dependency health by component; nil values are healthy
type CheckFunc func(ctx context.Context) map[string]error

// Server represents the HTTP API server.
// /ready answers 503 until the listener is up and while any dependency
// check fails, and again once shutdown begins.
// ⭐ SSOT: API 서버 설정은 이 파일에서만
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
	config     *config.Config
	checks     CheckFunc
	ready      atomic.Bool
}

// New creates a new API server. checks may be nil.
func New(cfg *config.Config, log *logger.Logger, router http.Handler, checks CheckFunc) *Server {
	s := &Server{
		logger: log,
		config: cfg,
		checks: checks,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ready", s.readiness)
	mux.Handle("/", router)

	s.httpServer = &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // backtests run inside the request
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start listens and serves until Shutdown
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener and marks the server ready
func (s *Server) Serve(ln net.Listener) error {
	s.logger.WithFields(map[string]interface{}{
		"addr": ln.Addr().String(),
		"env":  s.config.Env,
	}).Info("Starting API server")

	s.ready.Store(true)
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		s.ready.Store(false)
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops reporting ready, then drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	s.logger.Info("Shutting down API server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

// ReadyResponse is the /ready body
type ReadyResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// readiness handles GET /ready
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Status: "ready"}
	status := http.StatusOK

	switch {
	case !s.ready.Load():
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	case s.checks != nil:
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		resp.Components = make(map[string]string)
		for name, err := range s.checks(ctx) {
			if err == nil {
				resp.Components[name] = "ok"
				continue
			}
			resp.Components[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
