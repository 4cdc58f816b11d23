package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/figcap/internal/config"
	"github.com/dgallion1/figcap/internal/ledger"
	"github.com/dgallion1/figcap/internal/pipeline"
	"github.com/dgallion1/figcap/internal/stats"
)

// ShardLedger is the read and maintenance side of the shard ledger.
type ShardLedger interface {
	List(ctx context.Context, limit int) ([]ledger.ShardResult, error)
	Forget(ctx context.Context, shard string) (bool, error)
	Totals(ctx context.Context) (shards, papers, records int, err error)
}

// Server is the HTTP API server for figcap.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	ledger       ShardLedger
	tracker      *stats.Tracker
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. tracker may be nil.
func NewServer(orch *pipeline.Orchestrator, l ShardLedger, tracker *stats.Tracker, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		ledger:       l,
		tracker:      tracker,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/extract", s.handleExtract)
		r.Get("/api/extract/{jobID}/status", s.handleExtractStatus)
		r.Post("/api/extract/paper", s.handleExtractPaper)

		r.Get("/api/shards", s.handleListShards)
		r.Delete("/api/shards", s.handleForgetShard)

		r.Get("/api/stats", s.handleStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
