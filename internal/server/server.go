// Package server assembles the tailorbatch HTTP server: chi routing,
// the middleware stack, and graceful lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/tailorforge/tailorbatch/internal/errors"
	"github.com/tailorforge/tailorbatch/internal/observability"
	"github.com/tailorforge/tailorbatch/internal/server/handlers"
	"github.com/tailorforge/tailorbatch/internal/server/middleware"
)

// Option configures optional server collaborators.
type Option func(*Server)

// WithBatchHandler mounts the /v1/batches endpoints.
func WithBatchHandler(h *handlers.BatchHandler) Option {
	return func(s *Server) { s.batches = h }
}

// WithTimeouts overrides the HTTP server timeouts.
func WithTimeouts(read, write, idle time.Duration) Option {
	return func(s *Server) {
		s.readTimeout = read
		s.writeTimeout = write
		s.idleTimeout = idle
	}
}

// Server is the tailorbatch HTTP server.
type Server struct {
	host    string
	port    int
	batches *handlers.BatchHandler

	readTimeout  time.Duration
	writeTimeout time.Duration
	idleTimeout  time.Duration

	httpServer *http.Server
}

// New creates a server listening on host:port. Endpoints beyond
// health and version are mounted through options.
func New(host string, port int, opts ...Option) *Server {
	s := &Server{
		host:         host,
		port:         port,
		readTimeout:  30 * time.Second,
		writeTimeout: 30 * time.Second,
		idleTimeout:  120 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.port
}

// Handler builds the full route tree with the middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.WriteErrorWithRequestID(w, apperrors.CodeNotFound,
			fmt.Sprintf("no route for %s %s", req.Method, req.URL.Path),
			http.StatusNotFound, middleware.GetRequestID(req.Context()))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.WriteErrorWithRequestID(w, apperrors.CodeMethodNotAllowed,
			fmt.Sprintf("method %s not allowed for %s", req.Method, req.URL.Path),
			http.StatusMethodNotAllowed, middleware.GetRequestID(req.Context()))
	})

	r.Get("/health", handlers.Health)
	r.Get("/health/live", handlers.HealthLive)
	r.Get("/health/ready", handlers.HealthReady)
	r.Get("/health/startup", handlers.HealthStartup)
	r.Get("/version", handlers.Version)

	if s.batches != nil {
		r.Route("/v1/batches", func(r chi.Router) {
			r.Post("/", s.batches.Submit)
			r.Get("/{batchID}", s.batches.GetStatus)
			r.Get("/{batchID}/results", s.batches.GetResults)
		})
	}

	return r
}

// Start begins serving and blocks until the listener stops.
// A graceful Shutdown returns nil.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  s.idleTimeout,
	}

	observability.ServerLogger.Info("http server listening", zap.String("addr", addr))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
