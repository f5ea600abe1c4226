// Package api exposes the health snapshot and the administrative operations
// over HTTP and the standard gRPC health protocol.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/vietddude/faultkeeper/internal/resilience/health"
	"github.com/vietddude/faultkeeper/internal/resilience/metrics"
	"github.com/vietddude/faultkeeper/internal/resilience/recovery"
)

// ErrUnknownCategory is returned by Controller.ResetErrors for an unknown category.
var ErrUnknownCategory = errors.New("unknown failure category")

// Controller is what the server reads and administers.
type Controller interface {
	SystemStatus() recovery.Snapshot
	ForceRecovery(component string) bool
	ResetComponent(component string) error
	// ResetErrors clears tracking for one category, or all when category is empty.
	ResetErrors(category string) error
}

// Config configures the HTTP server.
type Config struct {
	Port int
	// RateLimit is the admin requests per second. Zero disables limiting.
	RateLimit float64
	Burst     int
}

// Server provides HTTP endpoints for health and administration.
type Server struct {
	ctrl    Controller
	server  *http.Server
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewServer creates a new server.
func NewServer(ctrl Controller, cfg Config) *Server {
	mux := http.NewServeMux()
	s := &Server{
		ctrl: ctrl,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: slog.Default().With("component", "api"),
	}
	if cfg.RateLimit > 0 {
		burst := max(cfg.Burst, 1)
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("POST /components/{name}/recover", s.admin(s.handleRecover))
	mux.Handle("POST /components/{name}/reset", s.admin(s.handleReset))
	mux.Handle("POST /errors/reset", s.admin(s.handleResetErrors))

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Listen binds the configured address.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	return ln, nil
}

// Serve serves on ln until Stop. A clean shutdown returns nil.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("HTTP API listening", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) admin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			metrics.AdminRejectedTotal.Inc()
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.ctrl.SystemStatus()

	status := http.StatusOK
	if snap.SystemHealth == health.LevelCritical || snap.SystemHealth == health.LevelEmergency {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status":    snap.SystemHealth,
		"escalated": snap.Escalated,
	})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.SystemStatus())
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := s.ctrl.SystemStatus().Components[name]; !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", recovery.ErrUnknownComponent, name))
		return
	}

	recovered := s.ctrl.ForceRecovery(name)
	s.log.Info("Forced recovery via API", "target", name, "recovered", recovered)
	writeJSON(w, http.StatusOK, map[string]any{
		"component": name,
		"recovered": recovered,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.ctrl.ResetComponent(name); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, recovery.ErrUnknownComponent) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"component": name,
		"status":    "reset",
	})
}

func (s *Server) handleResetErrors(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	if err := s.ctrl.ResetErrors(category); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnknownCategory) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	if category == "" {
		category = "all"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"category": category,
		"status":   "reset",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
