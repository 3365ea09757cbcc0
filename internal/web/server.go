package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kozaktomas/faceauth-station/internal/ai"
	"github.com/kozaktomas/faceauth-station/internal/config"
	"github.com/kozaktomas/faceauth-station/internal/database"
	"github.com/kozaktomas/faceauth-station/internal/web/handlers"
	"github.com/kozaktomas/faceauth-station/internal/web/middleware"
	"github.com/kozaktomas/faceauth-station/internal/workflow"
)

// Dependencies are the services the HTTP API exposes.
type Dependencies struct {
	Ledger       database.Ledger
	Attendance   *workflow.Attendance
	Registration *workflow.Registration
	Events       *handlers.EventBroadcaster
	Usage        handlers.UsageReporter
	// Sessions persists admin sessions; nil keeps them in memory.
	Sessions middleware.SessionRepository
	Logger   *zap.Logger
}

// noProvider reports a kiosk without an AI provider.
type noProvider struct{}

func (noProvider) ProviderName() string { return "" }
func (noProvider) Usage() ai.Usage { return ai.Usage{} }

// Server represents the web server
type Server struct {
	config         *config.Config
	deps           Dependencies
	logger         *zap.Logger
	router         *chi.Mux
	httpServer     *http.Server
	sessionManager *middleware.SessionManager
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Events == nil {
		deps.Events = handlers.NewEventBroadcaster()
	}
	if deps.Usage == nil {
		deps.Usage = noProvider{}
	}

	r := chi.NewRouter()
	sessionManager := middleware.NewSessionManager(cfg.Web.SessionSecret, deps.Sessions, deps.Logger)

	s := &Server{
		config:         cfg,
		deps:           deps,
		logger:         deps.Logger,
		router:         r,
		sessionManager: sessionManager,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Web.Host, strconv.Itoa(cfg.Web.Port)),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // event streams reconnect after this
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting web server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")

	s.sessionManager.Stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
