package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP handlers and dependencies.
type Server struct {
	router   *mux.Router
	handlers *Handlers
	limiter  *RateLimiter
}

// NewServer creates a new API server with the given handlers.
func NewServer(h *Handlers, limiter *RateLimiter) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: h,
		limiter:  limiter,
	}
	s.setupRoutes()
	return s
}

// Router returns the configured router for use with http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("/health", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/healthz", s.handlers.Health).Methods("GET")
	s.router.HandleFunc("/ready", s.handlers.Ready).Methods("GET")

	// Metrics
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Invocation boundary
	s.router.HandleFunc("/run", s.handlers.Run).Methods("POST")

	// Job record diagnostics
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/jobs", s.handlers.ListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", s.handlers.GetJob).Methods("GET")

	// Apply middleware
	s.router.Use(s.handlers.CORSMiddleware)
	s.router.Use(s.handlers.LoggingMiddleware)
	s.router.Use(s.handlers.RecoveryMiddleware)
	if s.limiter != nil {
		s.router.Use(s.limiter.Handler)
	}
}
