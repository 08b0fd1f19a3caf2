// Package server wires handlers, middleware, and routes together and owns
// the HTTP server lifecycle. It is the composition root: every dependency
// is constructed here, so the rest of the codebase only receives what it
// needs through constructors.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/avelasco/studyhub/internal/auth"
	"github.com/avelasco/studyhub/internal/config"
	"github.com/avelasco/studyhub/internal/handler"
	"github.com/avelasco/studyhub/internal/middleware"
	sqliteRepo "github.com/avelasco/studyhub/internal/repository/sqlite"
	"github.com/avelasco/studyhub/internal/service"
)

// Server holds the router and the resources it owns. The database
// connection is closed during shutdown so the WAL is flushed and the file
// lock released.
type Server struct {
	router *chi.Mux
	cfg    *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New assembles the full dependency chain:
//
//	sqlite.DB → repositories → services → handlers → routes
//
// Services receive repository interfaces, handlers receive services, and
// nothing reaches past its own layer.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	sessions := auth.NewSessionIssuer(tokens, s.cfg.SecureCookies)
	passwords := auth.NewPasswordService()

	providers := auth.NewProviders(
		s.cfg.Google.Credentials(),
		s.cfg.GitHub.Credentials(),
		s.cfg.Facebook.Credentials(),
	)
	for name := range providers {
		s.logger.Info("social login enabled", slog.String("provider", name))
	}

	gamificationService := service.NewGamificationService(s.db.Gamification(), s.logger)
	if err := gamificationService.SeedBadges(context.Background()); err != nil {
		return fmt.Errorf("seeding badges: %w", err)
	}

	authService := service.NewAuthService(
		s.db.Users(),
		s.db.Audit(),
		s.db.PasswordResets(),
		passwords,
		gamificationService,
		s.logger,
	)

	authHandler := handler.NewAuthHandler(authService, providers, tokens, sessions, s.logger)
	settingsHandler := handler.NewSettingsHandler(authService, s.logger)
	gamificationHandler := handler.NewGamificationHandler(gamificationService, s.logger)

	// Public routes.
	s.router.Post("/register", authHandler.HandleRegister)
	s.router.Post("/login", authHandler.HandleLogin)
	s.router.Post("/api/login", authHandler.HandleAPILogin)
	s.router.Post("/auth/logout", authHandler.HandleLogout)
	s.router.Post("/forgot-password", settingsHandler.HandleForgotPassword)
	s.router.Post("/reset-password", settingsHandler.HandleResetPassword)

	s.router.Get("/auth/{provider}/login", authHandler.HandleProviderLogin)
	s.router.Get("/auth/{provider}/callback", authHandler.HandleProviderCallback)

	// Authenticated API.
	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Get("/api/me", authHandler.HandleMe)
		r.Get("/api/settings/social-accounts", settingsHandler.HandleListSocialAccounts)
		r.Delete("/api/settings/social-accounts", settingsHandler.HandleDisconnectSocialAccount)
		r.Get("/api/points", gamificationHandler.HandlePoints)
		r.Get("/api/badges", gamificationHandler.HandleBadges)
	})

	return nil
}

// Start runs the server until SIGINT/SIGTERM, then drains in-flight
// requests for up to 30 seconds before closing the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("database", s.cfg.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
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
