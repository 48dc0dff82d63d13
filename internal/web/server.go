// Package web serves HTTP triggers for the fetch and load pipelines.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/justestif/spotify-catalog-etl/internal/config"
	"github.com/justestif/spotify-catalog-etl/internal/logger"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr string
	// RunTimeout bounds each triggered run. Zero means no extra deadline.
	RunTimeout time.Duration
}

// Server is the HTTP trigger server.
type Server struct {
	router   chi.Router
	server   *http.Server
	handlers *Handlers
}

// NewServer creates a trigger server over the given pipelines.
func NewServer(cfg ServerConfig, fetch FetchRunner, load LoadRunner) *Server {
	if cfg.Addr == "" {
		cfg.Addr = config.DefaultAddr
	}

	s := &Server{
		router:   chi.NewRouter(),
		handlers: NewHandlers(fetch, load, cfg.RunTimeout),
	}

	s.setupMiddleware()
	s.setupRoutes()

	// Runs answer synchronously, so writes must outlive the run deadline.
	writeTimeout := 15 * time.Second
	if cfg.RunTimeout > 0 {
		writeTimeout += cfg.RunTimeout
	}

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handlers.Health)
	s.router.Post("/fetch", s.handlers.Fetch)
	s.router.Post("/load", s.handlers.Load)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logger.Info("Starting server at http://%s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and handles graceful shutdown on interrupt signals.
func (s *Server) Run() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop:
		logger.Info("Shutting down server...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}
