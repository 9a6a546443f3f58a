// Package api provides HTTP, WebSocket and SSE handlers for the analyst service.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/artifacts"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/auth"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/tracing"
)

// ServerOptions holds the optional cross-cutting layers.
type ServerOptions struct {
	// Auth enforces bearer tokens when set
	Auth *auth.Middleware

	// RateLimiter guards run creation when set
	RateLimiter *auth.RateLimiter

	// Tracing wraps the router with server spans
	Tracing bool
}

// Server holds the HTTP handlers and dependencies.
type Server struct {
	router   *mux.Router
	handlers *Handlers
	opts     ServerOptions
}

// NewServer creates a new API server with the given handlers.
func NewServer(h *Handlers, opts ServerOptions) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: h,
		opts:     opts,
	}
	s.setupRoutes()
	return s
}

// Router returns the configured handler for use with http.Server.
func (s *Server) Router() http.Handler {
	var handler http.Handler = s.router
	handler = s.handlers.RequestIDMiddleware(handler)
	handler = s.handlers.SecurityHeadersMiddleware(handler)
	handler = s.handlers.CORSMiddleware(handler)
	return tracing.Middleware(s.opts.Tracing)(handler)
}

func (s *Server) setupRoutes() {
	h := s.handlers

	// Liveness, readiness and metrics
	s.router.HandleFunc("/health", h.Health).Methods("GET")
	s.router.HandleFunc("/healthz", h.Health).Methods("GET")
	s.router.HandleFunc("/ready", h.Ready).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Model endpoints
	s.router.HandleFunc("/api/health", h.ModelHealth).Methods("GET")
	s.router.HandleFunc("/api/warmup", h.Warmup).Methods("POST")

	// Crew runs
	crew := s.router.PathPrefix("/api/crew").Subrouter()

	var startRun http.Handler = http.HandlerFunc(h.StartRun)
	if s.opts.RateLimiter != nil {
		startRun = s.opts.RateLimiter.Handler(startRun)
	}
	crew.Handle("/run", startRun).Methods("POST")
	crew.HandleFunc("/status/{run_id}", h.GetStatus).Methods("GET")
	crew.HandleFunc("/report/{run_id}", h.GetReport).Methods("GET")
	crew.HandleFunc("/runs", h.ListRuns).Methods("GET")
	crew.HandleFunc("/events/{run_id}", h.GetEvents).Methods("GET")
	crew.HandleFunc("/events/{run_id}/sse", h.StreamEvents).Methods("GET")
	crew.HandleFunc("/artifacts/{run_id}", h.ListArtifacts).Methods("GET")
	crew.HandleFunc("/agents", h.ListAgents).Methods("GET")

	// Live stream
	s.router.HandleFunc("/ws/crew/stream/{run_id}", h.StreamRun).Methods("GET")

	// Generated reports and charts
	s.router.PathPrefix(artifacts.OutputURLPrefix).Handler(
		http.StripPrefix(artifacts.OutputURLPrefix, http.FileServer(http.Dir(h.config.OutputDir))),
	).Methods("GET", "HEAD")

	// Apply middleware
	s.router.Use(h.LoggingMiddleware)
	s.router.Use(h.RecoveryMiddleware)
	if s.opts.Auth != nil {
		s.router.Use(s.opts.Auth.Handler)
	}
}
