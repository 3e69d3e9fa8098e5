// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: New opens the database, builds the
// services and handlers, and wires them to routes. Everything below this
// package receives its dependencies as constructor arguments.
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

	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/config"
	"github.com/sakif/task-manager/internal/handler"
	"github.com/sakif/task-manager/internal/mailer"
	"github.com/sakif/task-manager/internal/middleware"
	sqliteRepo "github.com/sakif/task-manager/internal/repository/sqlite"
	"github.com/sakif/task-manager/internal/service"
)

// Server owns the router and the database connection.
type Server struct {
	router   *chi.Mux
	config   *config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	notifier service.Notifier
	metrics  *middleware.Metrics
}

// Option customises a Server before its routes are built.
type Option func(*Server)

// WithNotifier replaces the notifier chosen from the configuration.
func WithNotifier(n service.Notifier) Option {
	return func(s *Server) { s.notifier = n }
}

// New opens the database (applying pending migrations) and wires every
// route.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		metrics: middleware.NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = newNotifier(cfg, logger)
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func newNotifier(cfg *config.Config, logger *slog.Logger) service.Notifier {
	if cfg.SendGridAPIKey == "" {
		logger.Warn("SENDGRID_API_KEY not set, emails will only be logged")
		return mailer.NewLogOnly(logger)
	}
	return mailer.NewSendGrid(context.Background(), mailer.Config{
		APIKey:  cfg.SendGridAPIKey,
		BaseURL: cfg.SendGridBaseURL,
		From:    cfg.MailFrom,
		Timeout: cfg.MailTimeout,
	}, logger)
}

// setupRoutes configures middleware and routes.
//
// ROUTES (bearer token required unless marked public):
//
//	POST   /users                   public, rate limited
//	POST   /users/login             public, rate limited
//	POST   /users/logout
//	POST   /users/logout/all
//	GET    /users/myprofile
//	PATCH  /users/myprofile
//	DELETE /users/myprofile
//	POST   /users/myprofile/avatar
//	DELETE /users/myprofile/avatar
//	GET    /users/{id}/avatar       public
//	POST   /tasks
//	GET    /tasks
//	GET    /tasks/{id}
//	PATCH  /tasks/{id}
//	DELETE /tasks/{id}
//	GET    /healthz                 public
//	GET    /metrics                 public
func (s *Server) setupRoutes() error {
	signer, err := auth.NewSigner(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token signer: %w", err)
	}
	tokens := auth.NewTokenService(signer, s.db, s.logger)
	passwords := auth.NewPasswordService(s.config.BcryptCost)

	userService := service.NewUserService(s.db, tokens, passwords, s.notifier, s.logger)
	taskService := service.NewTaskService(s.db, s.logger)

	userHandler := handler.NewUserHandler(userService, s.config.AvatarMaxBytes, s.logger)
	taskHandler := handler.NewTaskHandler(taskService, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	requireAuth := auth.RequireAuth(tokens, handler.WriteError, s.logger)
	limiter := middleware.NewRateLimiter(s.config.AuthRatePerMinute, handler.WriteError)

	// Order matters: the request id must exist before the logger runs, and
	// Recoverer sits inside the logger so a panic is still logged as a 500.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(s.metrics.Middleware)
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", s.metrics.Handler())

	s.router.Route("/users", func(r chi.Router) {
		r.With(limiter.Middleware).Post("/", userHandler.HandleRegister)
		r.With(limiter.Middleware).Post("/login", userHandler.HandleLogin)
		r.Get("/{id}/avatar", userHandler.HandleGetAvatar)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/logout", userHandler.HandleLogout)
			r.Post("/logout/all", userHandler.HandleLogoutAll)
			r.Get("/myprofile", userHandler.HandleGetProfile)
			r.Patch("/myprofile", userHandler.HandleUpdateProfile)
			r.Delete("/myprofile", userHandler.HandleDeleteProfile)
			r.Post("/myprofile/avatar", userHandler.HandleUploadAvatar)
			r.Delete("/myprofile/avatar", userHandler.HandleDeleteAvatar)
		})
	})

	s.router.Route("/tasks", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/", taskHandler.HandleCreate)
		r.Get("/", taskHandler.HandleList)
		r.Get("/{id}", taskHandler.HandleGet)
		r.Patch("/{id}", taskHandler.HandleUpdate)
		r.Delete("/{id}", taskHandler.HandleDelete)
	})

	return nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start serves HTTP until SIGINT or SIGTERM, then drains in-flight
// requests for up to 30 seconds and closes the database.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
