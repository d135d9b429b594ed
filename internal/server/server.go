// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware, and routes,
// and decides:
//   - which store backs the API (SQLite file or Postgres)
//   - which URL patterns map to which handler functions
//   - which routes need a bearer token
//   - how the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go creates:
//
//	config.Config + *slog.Logger → server.New
//	server.New creates: Store → services → handlers → routes
//
// This is the "composition root" pattern: all dependencies are wired
// in one place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/config"
	"github.com/sakif/task-manager/internal/handler"
	"github.com/sakif/task-manager/internal/metrics"
	"github.com/sakif/task-manager/internal/middleware"
	"github.com/sakif/task-manager/internal/repository"
	"github.com/sakif/task-manager/internal/repository/postgres"
	sqliteRepo "github.com/sakif/task-manager/internal/repository/sqlite"
	"github.com/sakif/task-manager/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store. When the server shuts down we close it to
// flush pending writes (SQLite WAL) or release pooled connections (Postgres).
type Server struct {
	router  *chi.Mux
	handler http.Handler
	config  config.Config
	logger  *slog.Logger
	store   repository.Store
	metrics *metrics.Metrics
}

// New opens the configured store and builds a ready-to-start Server.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s, err := NewWithStore(cfg, logger, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

// NewWithStore builds a Server on an already opened store.
// The server takes ownership of store and closes it when Start returns.
func NewWithStore(cfg config.Config, logger *slog.Logger, store repository.Store) (*Server, error) {
	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		store:   store,
		metrics: metrics.New(),
	}

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	// /metrics and /healthz are polled constantly; tracing them is noise.
	s.handler = otelhttp.NewHandler(s.router, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/metrics" && r.URL.Path != "/healthz"
		}),
	)

	return s, nil
}

// openStore picks Postgres when DATABASE_URL is set and the SQLite file otherwise.
func openStore(ctx context.Context, cfg config.Config) (repository.Store, error) {
	if cfg.UsePostgres() {
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Handler exposes the fully wired HTTP handler (tests drive it with httptest).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// POST   /auth/register       → create account, returns token
// POST   /auth/login          → returns token
// GET    /auth/me             → current user                 [auth]
// GET    /tasks               → list own tasks (?status=)    [auth]
// POST   /tasks               → create task                  [auth]
// GET    /tasks/stats         → counts by status             [auth]
// GET    /tasks/{id}          → single task                  [auth]
// PUT    /tasks/{id}          → partial update               [auth]
// DELETE /tasks/{id}          → delete                       [auth]
// PATCH  /tasks/{id}/done     → mark done                    [auth]
// GET    /healthz             → store reachability
// GET    /metrics             → Prometheus scrape endpoint
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added. Our order:
// 1. RequestID: assigns unique ID to each request (read by the logger)
// 2. RealIP: extracts real client IP from proxy headers
// 3. Logger + Metrics: observe the final status, including recovered panics
// 4. Recoverer: catches panics and returns 500 instead of crashing
// 5. CORS: answers preflight requests before routing
func (s *Server) setupRoutes() error {
	cfg := s.config

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics(s.metrics))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.NotFound(handler.NotFound(s.logger))
	s.router.MethodNotAllowed(handler.MethodNotAllowed(s.logger))

	// === AUTH PRIMITIVES ===
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService(cfg.BcryptCost)

	// === DEPENDENCY CHAIN ===
	//   store → repositories → services → handlers
	// The handler never touches the database directly.
	// The service never touches HTTP.
	authService := service.NewAuthService(s.store.Users(), tokens, passwords, s.logger, s.metrics)
	taskService := service.NewTaskService(s.store.Tasks(), s.logger, s.metrics)

	authHandler := handler.NewAuthHandler(authService, s.logger)
	taskHandler := handler.NewTaskHandler(taskService, s.logger)
	healthHandler := handler.NewHealthHandler(s.store, s.logger)

	// guard.Require hands the authenticated user to the handler as an
	// argument; a protected handler cannot be mounted without it.
	guard := auth.NewGuard(tokens, s.store.Users(), handler.ErrorWriter(s.logger))

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.HandleRegister)
		r.Post("/login", authHandler.HandleLogin)
		r.Get("/me", guard.Require(authHandler.HandleMe))
	})

	s.router.Route("/tasks", func(r chi.Router) {
		r.Get("/", guard.Require(taskHandler.HandleList))
		r.Post("/", guard.Require(taskHandler.HandleCreate))
		r.Get("/stats", guard.Require(taskHandler.HandleStats))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", guard.Require(taskHandler.HandleGet))
			r.Put("/", guard.Require(taskHandler.HandleUpdate))
			r.Delete("/", guard.Require(taskHandler.HandleDelete))
			r.Patch("/done", guard.Require(taskHandler.HandleMarkDone))
		})
	})

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the store (flushes WAL / drains the pool)
//
// The `defer s.store.Close()` ensures step 3 happens on every return path.
func (s *Server) Start() error {
	defer s.store.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		backend := "sqlite:" + s.config.DBPath
		if s.config.UsePostgres() {
			backend = "postgres"
		}
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", backend),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
