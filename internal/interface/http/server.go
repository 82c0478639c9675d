// Package http exposes the economy engine as a JSON REST API.
// Identity comes from a trusted gateway in request headers; the handlers
// only translate HTTP into commands and queries.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/alem-hub/xp-economy/config"
	"github.com/alem-hub/xp-economy/internal/application/command"
	"github.com/alem-hub/xp-economy/internal/application/presence"
	"github.com/alem-hub/xp-economy/internal/application/query"
	dpresence "github.com/alem-hub/xp-economy/internal/domain/presence"
	"github.com/alem-hub/xp-economy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequestTimeout bounds the context of every API request.
	RequestTimeout time.Duration

	MaxHeaderBytes int

	// MaxBodyBytes limits JSON request bodies.
	MaxBodyBytes int64

	// RateLimit throttles non-admin accounts; RequestsPerMinute 0 disables it.
	RateLimit RateLimitConfig

	// DefaultLocation decides the login day when the caller sends no timezone. Nil means UTC.
	DefaultLocation *time.Location
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 10 * time.Second,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   1 << 16,
		RateLimit:      DefaultRateLimitConfig(),
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// PresenceBroadcaster announces joins and leaves to every process.
type PresenceBroadcaster interface {
	Join(ctx context.Context, channel, accountID, token string) (dpresence.Entry, error)
	Leave(ctx context.Context, channel, accountID string) error
}

// Dependencies contains everything the handlers call.
type Dependencies struct {
	// Commands
	Bootstrap        *command.BootstrapSessionHandler
	RecordCompletion *command.RecordCompletionHandler
	Redeem           *command.RedeemRewardHandler
	MarkFulfilled    *command.MarkFulfilledHandler
	Connections      *command.ConnectionHandler
	Memberships      *command.MembershipHandler
	Catalog          *command.CatalogHandler

	// Queries
	Profile     *query.GetProfileHandler
	Leaderboard *query.GetLeaderboardHandler
	Economy     *query.EconomyQueries
	Social      *query.SocialQueries
	Analytics   *query.AnalyticsHandler

	Presence          *presence.Service
	PresenceBroadcast PresenceBroadcaster

	// Features gates whole route groups; nil enables everything.
	Features FeatureGate

	Health *HealthChecker
	Logger *logger.Logger
}

// FeatureGate decides whether a feature is visible to an account.
type FeatureGate interface {
	IsEnabled(feature string, ctx *config.FeatureContext) bool
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     chi.Router
	logger     *logger.Logger
	limiter    *RateLimiter

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Health == nil {
		deps.Health = NewHealthChecker("")
	}
	if deps.PresenceBroadcast == nil && deps.Presence != nil {
		deps.PresenceBroadcast = presence.NewLocal(deps.Presence)
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger.With(logger.Component("http")),
	}
	if config.RateLimit.RequestsPerMinute > 0 {
		s.limiter = NewRateLimiter(config.RateLimit, nil)
	}
	s.router = s.routes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.recoveryMiddleware)
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(s.timeoutMiddleware)
		api.Use(identityMiddleware)

		api.Group(func(pr chi.Router) {
			pr.Use(requireAccount)
			pr.Use(s.rateLimitMiddleware)

			pr.Get("/me", s.handleMe)
			pr.Post("/session", s.handleBootstrapSession)

			pr.Get("/activities", s.handleListActivities)
			pr.Post("/completions", s.handleRecordCompletion)
			pr.Get("/completions", s.handleListCompletions)

			pr.Get("/badges", s.handleListBadges)

			pr.With(s.requireFeature(config.FeatureRedemptions)).Group(func(g chi.Router) {
				g.Get("/rewards", s.handleListRewards)
				g.Post("/rewards/{id}/redeem", s.handleRedeem)
				g.Get("/redemptions", s.handleListMyRedemptions)
			})

			pr.With(s.requireFeature(config.FeatureLeaderboard)).Get("/leaderboard", s.handleLeaderboard)

			pr.With(s.requireFeature(config.FeatureConnections)).Group(func(g chi.Router) {
				g.Get("/connections", s.handleListConnections)
				g.Post("/connections/{userID}", s.handleRequestConnection)
				g.Post("/connections/{userID}/accept", s.handleAcceptConnection)
				g.Delete("/connections/{userID}", s.handleRemoveConnection)
			})

			pr.With(s.requireFeature(config.FeatureGroups)).Group(func(g chi.Router) {
				g.Get("/groups", s.handleListGroups)
				g.Get("/groups/{id}/members", s.handleListMembers)
				g.Post("/groups/{id}/join", s.handleJoinGroup)
			})

			pr.With(s.requireFeature(config.FeaturePresence)).Group(func(g chi.Router) {
				g.Get("/presence/{channel}", s.handlePresence)
				g.Post("/presence/{channel}", s.handlePresenceJoin)
				g.Delete("/presence/{channel}", s.handlePresenceLeave)
			})
		})

		api.Route("/admin", func(ar chi.Router) {
			ar.Use(requireAccount)
			ar.Use(requireAdmin)

			ar.Get("/analytics", s.handleAnalytics)

			ar.Get("/redemptions", s.handleListAllRedemptions)
			ar.Post("/redemptions/{id}/fulfill", s.handleFulfill)

			ar.Get("/connections/pending", s.handleListPendingConnections)
			ar.Post("/connections/{a}/{b}/accept", s.handleAdminAcceptConnection)
			ar.Post("/connections/{a}/{b}/reject", s.handleAdminRejectConnection)

			ar.Post("/groups", s.handlePutGroup)
			ar.Delete("/groups/{id}", s.handleDeleteGroup)
			ar.Post("/groups/{id}/members/{userID}", s.handleAdminAddMember)
			ar.Post("/groups/{id}/members/{userID}/approve", s.handleApproveMember)
			ar.Delete("/groups/{id}/members/{userID}", s.handleRemoveMember)

			ar.Post("/accounts", s.handleCreateAccount)
			ar.Patch("/accounts/{id}", s.handleUpdateAccount)
			ar.Post("/rewards", s.handlePutReward)
			ar.Delete("/rewards/{id}", s.handleDeleteReward)
			ar.Post("/activities", s.handlePutActivity)
			ar.Post("/badges", s.handlePutBadge)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, r, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// requestIDMiddleware tags the request and its logger with an ID.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		ctx = logger.WithContext(ctx, s.logger.WithRequestID(requestID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs every request with its status and latency.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		fields := []logger.Field{
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rw.statusCode),
			logger.Latency(time.Since(start)),
		}
		log := logger.FromContext(r.Context())
		if rw.statusCode >= http.StatusInternalServerError {
			log.Warn("http request", fields...)
			return
		}
		log.Debug("http request", fields...)
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				s.logger.Error("panic recovered",
					logger.Any("error", err),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
				)
				writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// timeoutMiddleware bounds the request context.
func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	if s.config.RequestTimeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER TYPES
// ══════════════════════════════════════════════════════════════════════════════

type contextKey string

const (
	contextKeyRequestID contextKey = "request_id"
	contextKeyActor     contextKey = "actor"
)

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func getRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return id
	}
	return ""
}
