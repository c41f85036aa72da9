// Package server exposes the simulator over a JSON REST API: one-shot
// simulations, the run archive and interactive step-by-step sessions.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/gosched/internal/config"
	"github.com/me/gosched/internal/store"
	"github.com/me/gosched/internal/workload"
)

// Version is reported by the health and discovery endpoints.
const Version = "0.1.0"

// Server is the gosched REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	parser    *workload.Parser
	validator *workload.Validator
	store     store.Store
	sessions  *SessionRegistry
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithSessionRegistry replaces the default session registry.
func WithSessionRegistry(reg *SessionRegistry) Option {
	return func(s *Server) {
		s.sessions = reg
	}
}

// New creates a new Server with all routes registered.
// st may be nil, in which case the run archive endpoints answer 503.
func New(cfg config.ServerConfig, st store.Store, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		parser:    workload.NewParser(logger),
		validator: workload.NewValidator(logger),
		store:     st,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessions == nil {
		s.sessions = NewSessionRegistry(cfg.SessionTTL, cfg.MaxSessions, logger)
	}

	s.routes()
	return s
}

// StartJanitor purges idle sessions in a background goroutine until ctx
// is cancelled.
func (s *Server) StartJanitor(ctx context.Context) {
	interval := s.config.SessionTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		if err := s.sessions.RunJanitor(ctx, interval); err != nil && err != context.Canceled {
			s.logger.Error("session janitor stopped", "error", err)
		}
	}()
}

// Sessions returns the interactive session registry.
func (s *Server) Sessions() *SessionRegistry {
	return s.sessions
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		// Discovery
		r.Get("/", s.handleDiscovery)

		// Health
		r.Get("/health", s.handleHealth)

		// One-shot simulation, nothing archived
		r.Post("/simulate", s.handleSimulate)

		// Run archive
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Post("/", s.handleCreateRun)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Delete("/", s.handleDeleteRun)
				r.Get("/trace", s.handleGetRunTrace)
			})
		})

		// Interactive sessions
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Post("/tick", s.handleTickSession)
			})
		})

		// SSE endpoints for real-time updates
		r.Route("/sse", func(r chi.Router) {
			r.Get("/sessions/{id}", s.handleSSESession)
		})
	})
}
