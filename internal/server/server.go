// Package server wires JokeBot together and runs the HTTP server.
//
// New is the composition root: it opens the stores, builds the services,
// the session dispatcher and the handlers, and mounts them on a chi router.
//
//	sqlite.DB ─→ AuthService ─┐
//	jsonfile.Store ─→ ChatService ─┼─→ session.Dispatcher ─→ handler.UIHandler
//	mailer.Sender ─→ ResetService ─┘
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/jokebot/internal/assistant"
	"github.com/sakif/jokebot/internal/auth"
	"github.com/sakif/jokebot/internal/config"
	"github.com/sakif/jokebot/internal/handler"
	"github.com/sakif/jokebot/internal/mailer"
	"github.com/sakif/jokebot/internal/middleware"
	"github.com/sakif/jokebot/internal/repository/jsonfile"
	sqliteRepo "github.com/sakif/jokebot/internal/repository/sqlite"
	"github.com/sakif/jokebot/internal/service"
	"github.com/sakif/jokebot/internal/session"
)

// Server owns the router and the database connection.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// Options replaces collaborators that New would otherwise build from the
// configuration. Zero values mean "build the default".
type Options struct {
	Mailer    mailer.Sender
	Assistant service.Streamer
}

// New builds a Server from cfg. The JWT and session secrets must already be
// set.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Server, error) {
	if cfg.Auth.JWTSecret == "" || cfg.Auth.SessionSecret == "" {
		return nil, errors.New("server: JWT and session secrets must be set")
	}

	db, err := sqliteRepo.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(opts); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database.
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes builds the dependency graph and mounts the routes.
//
//	GET  /healthz                 liveness, pings the database
//	GET  /                        current view (login, sign-up, reset or chat)
//	POST /auth/login|signup       rate limited
//	POST /auth/logout|mode
//	POST /reset/show|cancel|confirm
//	POST /reset/request           rate limited
//	POST /chats/new|delete        login required
//	POST /chats/{id}/open         login required
//	POST /chats/messages          login required, Server-Sent Events
func (s *Server) setupRoutes(opts Options) error {
	cfg := s.config

	tokens, err := auth.NewTokenServiceWithTTL(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	mail := opts.Mailer
	if mail == nil {
		mail = newMailer(cfg.Mail, s.logger)
	}

	streamer := opts.Assistant
	if streamer == nil {
		streamer = assistant.New(assistant.Config{
			APIKey:      cfg.Assistant.APIKey,
			Model:       cfg.Assistant.Model,
			BaseURL:     cfg.Assistant.BaseURL,
			TypingDelay: cfg.Assistant.TypingDelay,
		}, s.logger)
	}

	authService := service.NewAuthService(s.db, tokens, auth.NewPasswordService(), s.logger)
	resetService := service.NewResetService(service.NewOTPStore(), mail, authService, s.logger)
	chatService := service.NewChatService(jsonfile.New(cfg.DataDir, s.logger), streamer, s.logger)
	dispatcher := session.NewDispatcher(authService, resetService, chatService, s.logger)

	ui, err := handler.NewUIHandler(
		dispatcher,
		authService,
		handler.NewSessionStore([]byte(cfg.Auth.SessionSecret), cfg.Auth.SecureCookies),
		handler.UIConfig{TokenTTL: tokens.TTL(), SecureCookies: cfg.Auth.SecureCookies},
		s.logger,
	)
	if err != nil {
		return fmt.Errorf("creating UI handler: %w", err)
	}
	health := handler.NewHealthHandler(s.db, s.logger)
	limiter := middleware.NewRateLimiter(cfg.Auth.RateLimit)

	// Order matters: RequestID before Logger so the id is logged, RealIP
	// before the rate limiter so limits apply per client.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.SecurityHeaders)

	s.router.Get("/healthz", health.HandleHealth)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(tokens))

		r.Get("/", ui.HandleIndex)
		r.Post("/auth/logout", ui.HandleLogout)
		r.Post("/auth/mode", ui.HandleAuthMode)
		r.Post("/reset/show", ui.HandleShowReset)
		r.Post("/reset/cancel", ui.HandleCancelReset)
		r.Post("/reset/confirm", ui.HandleConfirmReset)

		r.Group(func(r chi.Router) {
			r.Use(limiter.Limit)
			r.Post("/auth/login", ui.HandleLogin)
			r.Post("/auth/signup", ui.HandleSignup)
			r.Post("/reset/request", ui.HandleRequestReset)
		})
	})

	s.router.Route("/chats", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))

		r.Post("/new", ui.HandleNewChat)
		r.Post("/delete", ui.HandleDeleteAll)
		r.Post("/{id}/open", ui.HandleOpenChat)
		r.Post("/messages", ui.HandleSendMessage)
	})

	return nil
}

func newMailer(cfg config.MailConfig, logger *slog.Logger) mailer.Sender {
	if cfg.Provider == config.MailProviderSMTP {
		return mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			Sender:   cfg.Sender,
		}, logger)
	}

	if cfg.APIKey == "" {
		logger.Warn("MAILER_SEND_API_KEY not set, password reset emails will fail")
	}
	return mailer.NewHTTPSender(mailer.HTTPConfig{
		APIKey:   cfg.APIKey,
		Sender:   cfg.Sender,
		Endpoint: cfg.Endpoint,
	}, nil, logger)
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully and
// closes the database.
//
// The write timeout does not cut off streamed replies: the streaming
// handler clears its own deadline.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.String("data_dir", s.config.DataDir),
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

		// In-flight replies get 30 seconds to finish and be saved.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
