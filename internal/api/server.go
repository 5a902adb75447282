package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/riftlens/internal/config"
	"github.com/JakeFAU/riftlens/internal/metrics"
	"github.com/JakeFAU/riftlens/internal/riftlens"
	"github.com/JakeFAU/riftlens/internal/store"
)

const (
	defaultRequestTimeout = 30 * time.Second
	readyTimeout          = 2 * time.Second
)

// pinger is implemented by stores with a remote backend.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the report store and the artifact store.
type Server struct {
	router  chi.Router
	reports riftlens.ReportStore
	logger  *zap.Logger
}

// Option customizes a Server.
type Option func(*options)

type options struct {
	runs store.RunRepository
}

// WithRunRepository serves run history from repo instead of artifact summaries.
func WithRunRepository(repo store.RunRepository) Option {
	return func(o *options) {
		o.runs = repo
	}
}

// NewServer constructs a Server with middleware and routes. blobs may be nil,
// in which case run lookups answer 503 unless a run repository is supplied.
func NewServer(
	reports riftlens.ReportStore,
	blobs riftlens.BlobStore,
	cfg config.ServerConfig,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		reports: reports,
		logger:  logger,
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	players := NewPlayerHandler(reports, logger)
	runs := NewRunHandler(blobs, o.runs, logger)
	r.Route("/v1", func(r chi.Router) {
		r.Route("/players", func(r chi.Router) {
			r.Get("/", players.ListPlayers)
			r.Route("/{player_id}", func(r chi.Router) {
				r.Get("/", players.GetPlayer)
				r.Get("/summary", players.GetSummary)
			})
		})
		r.Get("/runs", runs.ListRuns)
		r.Get("/runs/{run_id}", runs.GetRun)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	p, ok := s.reports.(pinger)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		s.logger.Warn("report store not ready", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "report store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
