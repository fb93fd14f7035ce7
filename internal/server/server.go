package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"flaneur/internal/config"
	"flaneur/internal/logger"
	"flaneur/internal/persistence"
	"flaneur/internal/pipeline"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// JobRunner runs a named pipeline job
type JobRunner interface {
	Run(ctx context.Context, name string, opts pipeline.RunOptions) (*pipeline.Summary, error)
}

// Options configures a Server
type Options struct {
	Config config.Server
	// DevMode accepts unauthenticated cron calls
	DevMode bool
	// Now defaults to time.Now
	Now func() time.Time
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	db         persistence.Database
	runner     JobRunner
	config     config.Server
	devMode    bool
	now        func() time.Time
	log        *slog.Logger
}

// New creates a new HTTP server instance
func New(db persistence.Database, runner JobRunner, opts Options) *Server {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		router:  chi.NewRouter(),
		db:      db,
		runner:  runner,
		config:  opts.Config,
		devMode: opts.DevMode,
		now:     now,
		log:     logger.Get().With("component", "server"),
	}

	s.setupMiddleware()
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", opts.Config.Host, opts.Config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  opts.Config.ReadTimeout,
		WriteTimeout: opts.Config.WriteTimeout,
	}

	return s
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	if s.config.CORS.Enabled {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300, // Maximum value not ignored by any major browsers
		}))
	}
}

// setupRoutes configures routes for the server
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		// Cron jobs run for minutes; no request timeout here.
		r.Route("/cron", func(r chi.Router) {
			r.Use(s.requireCronAuth)
			r.Get("/{job}", s.handleCron)
			r.Post("/{job}", s.handleCron)
		})

		r.With(middleware.Timeout(30*time.Second)).Post("/sightings", s.handleSubmitSighting)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		"addr", s.httpServer.Addr,
		"read_timeout", s.config.ReadTimeout,
		"write_timeout", s.config.WriteTimeout,
		"dev_mode", s.devMode,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server gracefully...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.log.Info("HTTP server stopped")
	return nil
}

// Router returns the chi router instance (useful for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
