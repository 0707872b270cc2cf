// Package http serves the tracker's JSON API: leaderboard and progress
// reads, registration, manual sweeps and the keep-alive health endpoint.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/leetbuddy/challenge-tracker/internal/application/query"
	"github.com/leetbuddy/challenge-tracker/internal/application/tracking"
	"github.com/leetbuddy/challenge-tracker/internal/domain/participant"
	"github.com/leetbuddy/challenge-tracker/internal/domain/sweep"
	"github.com/leetbuddy/challenge-tracker/internal/interface/http/handlers"
	"github.com/leetbuddy/challenge-tracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	AllowedOrigins []string
	// MaxLeaderboard caps the limit query parameter.
	MaxLeaderboard int
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   2 * time.Minute,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
		AllowedOrigins: []string{"*"},
		MaxLeaderboard: 100,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Registrar changes the participant registry.
type Registrar interface {
	Register(ctx context.Context, participantID, username string) (participant.Record, error)
	Unregister(ctx context.Context, participantID string) (bool, error)
}

// Sweeper runs sweeps on demand.
type Sweeper interface {
	Run(ctx context.Context, trigger tracking.Trigger) (tracking.SweepResult, error)
	Running() bool
	LastResult() (tracking.SweepResult, bool)
}

// SweepCache holds the summary a previous process published, so the last
// sweep survives a restart.
type SweepCache interface {
	LastSweep(ctx context.Context) (sweep.Summary, error)
}

// HealthChecker reports dependency health.
type HealthChecker interface {
	Check(ctx context.Context) handlers.HealthStatus
}

// Dependencies contains everything the handlers call.
type Dependencies struct {
	Queries  *query.Service
	Commands Registrar
	Sweeper  Sweeper
	// Cache may be nil.
	Cache SweepCache
	// Health may be nil.
	Health HealthChecker
	Logger zerolog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	router     *http.ServeMux
	httpServer *http.Server
	logger     zerolog.Logger

	mu        sync.Mutex
	listener  net.Listener
	serveDone chan struct{}
}

// NewServer creates a server with routes and middleware installed.
func NewServer(config Config, deps Dependencies) *Server {
	def := DefaultConfig()
	if config.Addr == "" {
		config.Addr = def.Addr
	}
	if config.MaxHeaderBytes <= 0 {
		config.MaxHeaderBytes = def.MaxHeaderBytes
	}
	if config.MaxLeaderboard <= 0 {
		config.MaxLeaderboard = def.MaxLeaderboard
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = def.AllowedOrigins
	}

	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		logger: logger.Component(deps.Logger, "http"),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Addr,
		Handler:        s.buildMiddlewareChain(s.router),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.HandleFunc("GET /{$}", s.handleHealth)

	s.router.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
	s.router.HandleFunc("GET /api/progress", s.handleProgress)
	s.router.HandleFunc("GET /api/stats", s.handleStats)

	s.router.HandleFunc("POST /api/participants", s.handleRegister)
	s.router.HandleFunc("GET /api/participants/{id}", s.handlePersonalStatus)
	s.router.HandleFunc("DELETE /api/participants/{id}", s.handleUnregister)

	s.router.HandleFunc("POST /api/sweeps", s.handleRunSweep)
	s.router.HandleFunc("GET /api/sweeps", s.handleSweepHistory)
	s.router.HandleFunc("GET /api/sweeps/last", s.handleLastSweep)
}

// buildMiddlewareChain wraps the router; the last wrapper runs first.
func (s *Server) buildMiddlewareChain(handler http.Handler) http.Handler {
	h := recoveryMiddleware(handler)
	h = requestLogger(s.logger)(h)
	h = cors.New(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         86400,
	}).Handler(h)
	return h
}

// Handler returns the full handler chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start binds the listener and serves in the background. Bind errors are
// returned; later serve errors are logged.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New("http: server already running")
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	s.listener = ln
	s.serveDone = make(chan struct{})

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("http server starting")
	go func(done chan struct{}) {
		defer close(done)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("http server failed")
		}
	}(s.serveDone)
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Addr
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	done := s.serveDone
	running := s.listener != nil
	s.listener = nil
	s.mu.Unlock()
	if !running {
		return nil
	}

	s.logger.Info().Msg("shutting down http server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	<-done
	return nil
}
