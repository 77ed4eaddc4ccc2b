// Package api hosts the web deployment: session endpoints over HTTP and
// the per-session WebSocket command channel.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/api/middleware"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/config"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/log"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/protocol"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/session"
)

// Executor runs data commands for one session against its remote
// database. Implementations are created per session by the
// session.HandleFactory and are never shared across tokens. SQL
// construction and row I/O live behind this interface.
type Executor interface {
	Execute(ctx context.Context, cmd protocol.Command) ([]protocol.Event, error)
}

// ConfigSource provides the current daemon configuration. Implemented by
// config.Holder.
type ConfigSource interface {
	Get() config.Config
}

// Server is the HTTP API server.
type Server struct {
	cfg      ConfigSource
	sessions *session.Manager
	logger   zerolog.Logger
	router   *chi.Mux
	version  string
}

// Option configures the Server.
type Option func(*Server)

// WithVersion sets the version string reported by /healthz.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer wires the router with the canonical middleware stack and all
// endpoints.
func NewServer(cfg ConfigSource, sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		logger:   log.WithComponent("api"),
		version:  "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	current := cfg.Get()
	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:            true,
		AllowedOrigins:        current.CORSOrigins,
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        "tabled",
		EnableLogging:         true,
		RateLimit:             current.RateLimit,
	})

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/session", s.handleStartSession)
		r.Get("/session", s.handleSessionStatus)
		r.Delete("/session", s.handleEndSession)
		r.Get("/ws", s.handleWS)
	})

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
