package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/marketstream/internal/connection"
	"github.com/rickgao/marketstream/internal/event"
)

// connectTimeout bounds a Connect issued through the API.
const connectTimeout = 30 * time.Second

// LatestReader looks up the most recent cached event for a symbol. It
// returns nil when nothing is cached.
type LatestReader interface {
	Latest(ctx context.Context, market string, category event.Category, symbol string) (json.RawMessage, error)
}

// Pinger reports whether a backing service is reachable.
type Pinger func(ctx context.Context) error

// Server exposes a connection.Registry over HTTP.
type Server struct {
	registry   *connection.Registry
	credential string
	logger     *slog.Logger

	latest  LatestReader
	pingers map[string]Pinger

	metricsPath    string
	metricsHandler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithLatest enables GET /streams/{market}/latest/{category}/{symbol}.
func WithLatest(r LatestReader) Option {
	return func(s *Server) { s.latest = r }
}

// WithPinger adds a dependency checked by /health. A failing pinger makes
// the service unhealthy.
func WithPinger(name string, p Pinger) Option {
	return func(s *Server) { s.pingers[name] = p }
}

// WithMetrics mounts h at path.
func WithMetrics(path string, h http.Handler) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.metricsHandler = h
	}
}

// NewServer creates a Server. credential is used for connections created
// through POST /streams/{market}/connect and is never echoed back.
func NewServer(registry *connection.Registry, credential string, opts ...Option) *Server {
	s := &Server{
		registry:   registry,
		credential: credential,
		logger:     slog.Default(),
		pingers:    make(map[string]Pinger),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("GET /streams", s.handleList)
	mux.HandleFunc("GET /streams/{market}", s.handleStatus)
	mux.HandleFunc("DELETE /streams/{market}", s.handleClose)
	mux.HandleFunc("POST /streams/{market}/connect", s.handleConnect)
	mux.HandleFunc("POST /streams/{market}/subscribe", s.handleSubscribe)
	mux.HandleFunc("POST /streams/{market}/unsubscribe", s.handleUnsubscribe)
	mux.HandleFunc("GET /streams/{market}/subscriptions", s.handleSubscriptions)
	mux.HandleFunc("GET /streams/{market}/recent", s.handleRecent)
	if s.latest != nil {
		mux.HandleFunc("GET /streams/{market}/latest/{category}/{symbol}", s.handleLatest)
	}
	if s.metricsHandler != nil && s.metricsPath != "" {
		mux.Handle("GET "+s.metricsPath, s.metricsHandler)
	}

	return mux
}
