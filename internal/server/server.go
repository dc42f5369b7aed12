// Package server wires the application together and runs the HTTP
// server.
//
// This is the composition root: the blob store, auth service, session
// manager, feed hub, and handlers are all constructed and connected
// here, so the dependency graph lives in one place.
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

	"github.com/pagepilot/pagepilot/internal/config"
	"github.com/pagepilot/pagepilot/internal/guard"
	"github.com/pagepilot/pagepilot/internal/handler"
	"github.com/pagepilot/pagepilot/internal/middleware"
	sqliteRepo "github.com/pagepilot/pagepilot/internal/repository/sqlite"
	"github.com/pagepilot/pagepilot/internal/service"
	"github.com/pagepilot/pagepilot/internal/session"
	"github.com/pagepilot/pagepilot/internal/websocket"
)

// Server owns the router and the resources that need an orderly
// shutdown: the database connection and the feed hub.
type Server struct {
	router   *chi.Mux
	cfg      config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	hub      *websocket.Hub
	sessions *session.Manager
}

// New assembles the full application. The session snapshot is loaded
// here, before any request can be served, so route guards only ever see
// the "unknown" state if construction is still in flight.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	authService := service.NewAuthService(db, logger)
	hub := websocket.NewHub(logger)
	sessions := session.NewManager(authService, hub, logger)

	if err := sessions.Load(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading session state: %w", err)
	}

	s := &Server{
		router:   chi.NewRouter(),
		cfg:      cfg,
		logger:   logger,
		db:       db,
		hub:      hub,
		sessions: sessions,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures middleware and the route table.
//
// Pages:
//
//	GET  /            → landing (public)
//	GET  /signup      → signup form (anonymous-only)
//	GET  /login       → login form (anonymous-only)
//	GET  /profile     → profile page (authenticated-only)
//	POST /signup, /login, /logout, /profile → form flows
//
// API:
//
//	GET  /api/session → current auth state
//	POST /api/signup, /api/login, /api/logout; PUT /api/profile
//	GET  /ws/session  → session change feed (websocket)
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	fileServer := http.FileServer(http.Dir(s.cfg.StaticDir))
	s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))

	pages, err := handler.NewPageHandler(s.cfg.TemplateDir, s.sessions, s.logger)
	if err != nil {
		return fmt.Errorf("creating page handler: %w", err)
	}
	auth := handler.NewAuthHandler(s.sessions, pages, s.logger)
	feed := handler.NewFeedHandler(s.hub, s.logger)

	s.router.Get("/", pages.HandleLanding)

	// Signup/login pages bounce already-signed-in visitors to the profile.
	s.router.Group(func(r chi.Router) {
		r.Use(guard.AnonymousOnly(s.sessions, "/profile"))
		r.Get("/signup", pages.HandleSignupPage)
		r.Get("/login", pages.HandleLoginPage)
	})

	s.router.Post("/signup", auth.HandleSignupForm)
	s.router.Post("/login", auth.HandleLoginForm)
	s.router.Post("/logout", auth.HandleLogoutForm)

	// The profile requires a signed-in session; anonymous visitors are
	// sent to the login form carrying the way back.
	s.router.Group(func(r chi.Router) {
		r.Use(guard.RequireAuth(s.sessions, "/login"))
		r.Get("/profile", pages.HandleProfilePage)
		r.Post("/profile", auth.HandleProfileForm)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/session", auth.HandleSessionState)
		r.Post("/signup", auth.HandleAPISignup)
		r.Post("/login", auth.HandleAPILogin)
		r.Post("/logout", auth.HandleAPILogout)
		r.Put("/profile", auth.HandleAPIProfileUpdate)
	})

	s.router.Get("/ws/session", feed.HandleFeed)

	return nil
}

// Start runs the server until SIGINT/SIGTERM, then shuts down in order:
// stop accepting requests, drain in-flight ones, stop the feed hub, and
// close the database.
func (s *Server) Start() error {
	defer s.db.Close()

	go s.hub.Run()
	defer s.hub.Stop()

	// No Read/WriteTimeout: the session feed holds connections open far
	// longer than any sane request timeout. The websocket layer enforces
	// its own deadlines.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.cfg.Port)),
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
