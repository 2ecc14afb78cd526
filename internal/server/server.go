// Package server exposes the feature pipeline over HTTP.
//
// Routes:
//
//	POST /v1/landscapes  diagrams → landscape feature matrix
//	POST /v1/distances   diagrams → pairwise landscape distance matrix
//	GET  /healthz        liveness probe
//	GET  /version        build information
//
// Requests and responses are JSON. Errors are reported as
// {"code": "...", "message": "..."} with a status derived from the error
// code.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/topofeat/pkg/errors"
	"github.com/matzehuels/topofeat/pkg/pipeline"
)

// MaxBodyBytes bounds the size of a request body.
const MaxBodyBytes = 32 << 20

const shutdownTimeout = 10 * time.Second

// Server serves the pipeline over HTTP.
type Server struct {
	runner   *pipeline.Runner
	logger   *log.Logger
	workers  int
	maxWidth int
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithWorkers bounds the worker count used per request. Zero means
// GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(s *Server) { s.workers = n }
}

// WithMaxWidth bounds n_layers*n_nodes of the grids clients may request.
// Zero selects landscape.DefaultMaxWidth.
func WithMaxWidth(n int) Option {
	return func(s *Server) { s.maxWidth = n }
}

// WithLogger sets the request logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server backed by runner.
func New(runner *pipeline.Runner, opts ...Option) *Server {
	s := &Server{runner: runner, logger: runner.Logger}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Get("/version", s.handleVersion)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/landscapes", s.handleLandscapes)
		r.Post("/distances", s.handleDistances)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return errors.Wrap(errors.ErrCodeIO, err, "listen on %s", addr)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "shutdown")
	}
	return nil
}
