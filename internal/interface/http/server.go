// Package http serves the read side over REST: leaderboard pages, member
// standings, league placements and live index reads, plus health and metrics
// endpoints. The write side has no HTTP surface; ingestion and classification
// run on the worker's schedule.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arena-hub/arena-rank/internal/application/query"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds the API server settings.
type Config struct {
	// Host is the bind address.
	Host string `koanf:"host"`

	// Port is the listen port.
	Port int `koanf:"port"`

	// ReadTimeout bounds reading one request.
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// WriteTimeout bounds writing one response.
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// IdleTimeout bounds idle keep-alive connections.
	IdleTimeout time.Duration `koanf:"idle_timeout"`

	// Enabled turns the API off entirely when false.
	Enabled bool `koanf:"enabled"`
}

// DefaultConfig returns the default server settings.
func DefaultConfig() Config {
	return Config{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		Enabled:      true,
	}
}

// Address returns the host:port bind string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies carries the query handlers and probes the routes dispatch to.
// MetricsHandler and Pinger are optional.
type Dependencies struct {
	Leaderboard       *query.GetLeaderboardHandler
	MyRanking         *query.GetMyRankingHandler
	MyLeague          *query.GetMyLeagueHandler
	LeagueLeaderboard *query.GetLeagueLeaderboardHandler
	TopStandings      *query.GetTopStandingsHandler
	NearbyStandings   *query.GetNearbyStandingsHandler
	StandingsPage     *query.GetStandingsPageHandler

	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler

	// Pinger reports storage health for the readiness probe.
	Pinger interface {
		Ping(ctx context.Context) error
	}

	Logger *slog.Logger
}

// ErrMissingHandlers is returned when a required query handler is absent.
var ErrMissingHandlers = errors.New("http: all query handlers are required")

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server is the REST API server.
type Server struct {
	config     Config
	deps       Dependencies
	logger     *slog.Logger
	httpServer *http.Server

	mu        sync.Mutex
	running   bool
	startedAt time.Time
}

// NewServer builds the server and its routes.
func NewServer(config Config, deps Dependencies) (*Server, error) {
	if deps.Leaderboard == nil || deps.MyRanking == nil || deps.MyLeague == nil ||
		deps.LeagueLeaderboard == nil || deps.TopStandings == nil ||
		deps.NearbyStandings == nil || deps.StandingsPage == nil {
		return nil, ErrMissingHandlers
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger,
	}

	router := http.NewServeMux()
	s.routes(router)

	s.httpServer = &http.Server{
		Addr:         config.Address(),
		Handler:      s.withMiddleware(router),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

func (s *Server) routes(router *http.ServeMux) {
	router.HandleFunc("GET /health", s.handleHealth)
	router.HandleFunc("GET /healthz", s.handleHealth)
	router.HandleFunc("GET /ready", s.handleReady)

	router.HandleFunc("GET /api/v1/arenas/{arena}/leaderboard", s.handleLeaderboard)
	router.HandleFunc("GET /api/v1/arenas/{arena}/standings", s.handleStandings)
	router.HandleFunc("GET /api/v1/arenas/{arena}/members/{member}/ranking", s.handleMyRanking)
	router.HandleFunc("GET /api/v1/arenas/{arena}/members/{member}/nearby", s.handleNearby)
	router.HandleFunc("GET /api/v1/arenas/{arena}/members/{member}/league", s.handleMyLeague)
	router.HandleFunc("GET /api/v1/arenas/{arena}/leagues/{tier}", s.handleLeagueLeaderboard)

	if s.deps.MetricsHandler != nil {
		router.Handle("GET /metrics", s.deps.MetricsHandler)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Middleware
// ─────────────────────────────────────────────────────────────────────────────

type contextKey string

const contextKeyRequestID contextKey = "request_id"

func (s *Server) withMiddleware(handler http.Handler) http.Handler {
	h := handler
	h = s.logRequests(h)
	h = s.recoverPanics(h)
	h = s.assignRequestID(h)
	return h
}

func (s *Server) assignRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in http handler",
					"error", rec,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID(r.Context()),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// ─────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("http: server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting http server", "address", s.config.Address())

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http: serve: %w", err)
	}
	return nil
}

// StartAsync runs Start in a goroutine and reports its error on the
// returned channel.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the full middleware-wrapped handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
