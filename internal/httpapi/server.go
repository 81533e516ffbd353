// Package httpapi serves the read-only health surface: liveness,
// daemon status, recent results and Prometheus metrics.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"servermon/internal/config"
	"servermon/internal/domain"
	"servermon/internal/metrics"
	"servermon/internal/monitor"
	"servermon/internal/repo"
)

// Daemon is the slice of the monitoring daemon the API reads from.
type Daemon interface {
	Status(ctx context.Context) (*monitor.StatusSnapshot, error)
	Results(ctx context.Context, name string, limit int) ([]*domain.CheckResult, error)
}

type Server struct {
	httpServer *http.Server
	daemon     Daemon
	recorder   *metrics.Recorder
	log        *zap.Logger
}

func New(cfg config.HealthConfig, d Daemon, recorder *metrics.Recorder, log *zap.Logger) *Server {
	s := &Server{daemon: d, recorder: recorder, log: log}
	s.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.routes(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// routes keeps /healthz open so liveness probes work without
// credentials or rate budget; everything else sits behind the per-IP
// limiter and, when one is configured, the bearer token.
func (s *Server) routes(cfg config.HealthConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Group(func(r chi.Router) {
		r.Use(rateLimit(cfg.RateLimitPerMin, cfg.RateLimitPerMin/2))
		if cfg.AuthToken != "" {
			r.Use(bearerAuth(cfg.AuthToken))
		}
		r.Get("/status", s.handleStatus)
		r.Get("/endpoints/{name}/results", s.handleResults)
		r.Method(http.MethodGet, "/metrics", s.recorder.Handler())
	})
	return r
}

func (s *Server) Start() error {
	s.log.Info("health_listener_started", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.daemon.Status(r.Context())
	if err != nil {
		s.log.Error("status_handler_failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "status unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > 500 {
			n = 500
		}
		limit = n
	}
	results, err := s.daemon.Results(r.Context(), name, limit)
	if errors.Is(err, repo.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "unknown endpoint")
		return
	}
	if err != nil {
		s.log.Error("results_handler_failed", zap.String("endpoint", name), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "results unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"endpoint": name,
		"count":    len(results),
		"results":  results,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response_encode_failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const prefix = "Bearer "
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, prefix) ||
				subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(h, prefix)), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", "Bearer")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
