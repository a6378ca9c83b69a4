// Package api is the HTTP surface of easyconnect: health and admin endpoints,
// the chat proxy, and the mounted OAuth and webhook routes.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/easyconnect/internal/auth"
	"github.com/mattjoyce/easyconnect/internal/events"
	"github.com/mattjoyce/easyconnect/internal/llm"
	"github.com/mattjoyce/easyconnect/internal/store"
)

// WorkspaceDirectory defines the read-only store operations the admin
// endpoints need.
type WorkspaceDirectory interface {
	ListWorkspaceIDs() ([]string, error)
	GetWorkspace(workspaceID string) (store.Workspace, bool, error)
}

// EventLog defines the event-log read operations.
type EventLog interface {
	Recent(ctx context.Context, limit int) ([]events.Record, error)
	Count(ctx context.Context) (int, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the legacy single bearer token (admin/full access).
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	directory WorkspaceDirectory
	eventLog  EventLog
	chat      llm.Client
	oauth     http.Handler
	webhook   http.Handler
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. chat may be nil when no LLM backend
// is configured; POST /chat then returns 503.
func New(config Config, directory WorkspaceDirectory, eventLog EventLog, chat llm.Client, oauthRoutes http.Handler, webhookHandler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		directory: directory,
		eventLog:  eventLog,
		chat:      chat,
		oauth:     oauthRoutes,
		webhook:   webhookHandler,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	// Run server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	// Inbound platform surface. The webhook handler carries its own
	// verification; the OAuth flow is driven by browser redirects.
	if s.webhook != nil {
		r.Post("/notion/webhook", s.webhook.ServeHTTP)
	}
	if s.oauth != nil {
		r.Mount("/notion/oauth", s.oauth)
	}

	// Protected API.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes("workspace:ro", "workspace:rw", "*")).Get("/workspaces", s.handleWorkspaces)
		r.With(s.requireScopes("workspace:ro", "workspace:rw", "*")).Get("/events", s.handleEvents)
		r.With(s.requireScopes("chat:rw", "*")).Post("/chat", s.handleChat)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
