// Package http serves the schema registry over HTTP and websocket.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/schemaregistry/errors"
	"github.com/c360/schemaregistry/gateway"
	"github.com/c360/schemaregistry/metric"
	"github.com/c360/schemaregistry/notify"
	"github.com/c360/schemaregistry/pkg/cache"
	"github.com/c360/schemaregistry/pkg/tlsutil"
	"github.com/c360/schemaregistry/registry"
)

// Option configures a Server.
type Option func(*Server)

// WithCache exposes cache statistics on /cache/stats.
func WithCache(c *cache.Cache) Option {
	return func(s *Server) { s.cache = c }
}

// WithMetrics serves registry on /metrics and records request metrics in it.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Server) { s.metrics = registry }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Server is the registry's HTTP gateway.
type Server struct {
	config   gateway.Config
	registry *registry.Registry
	hub      *notify.Hub
	cache    *cache.Cache
	metrics  *metric.MetricsRegistry
	logger   *slog.Logger
	upgrader websocket.Upgrader

	requestDuration *prometheus.HistogramVec

	mu      sync.Mutex
	server  *http.Server
	clients map[*wsClient]struct{}
	closed  bool
}

var _ gateway.HTTPHandler = (*Server)(nil)

// NewServer creates a Server. The hub may be nil, in which case /ws is not served.
func NewServer(cfg gateway.Config, reg *registry.Registry, hub *notify.Hub, opts ...Option) (*Server, error) {
	if reg == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Server", "NewServer", "registry is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Server", "NewServer", "config validation")
	}

	s := &Server{
		config:   cfg,
		registry: reg,
		hub:      hub,
		logger:   slog.Default(),
		clients:  make(map[*wsClient]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "gateway")

	s.upgrader = websocket.Upgrader{
		CheckOrigin:     s.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	if s.metrics != nil {
		s.requestDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metric.Namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration by route and status",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		)
		if err := s.metrics.RegisterHistogramVec("gateway", "request_duration", s.requestDuration); err != nil {
			s.logger.Warn("request metrics disabled", "error", err)
			s.requestDuration = nil
		}
	}

	return s, nil
}

// RegisterHTTPHandlers mounts every route under prefix.
func (s *Server) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	handle := func(pattern string, h http.HandlerFunc) {
		method, path, _ := strings.Cut(pattern, " ")
		mux.Handle(method+" "+prefix+strings.TrimPrefix(path, "/"), s.wrap(h))
	}

	handle("GET /health", s.handleHealth)
	handle("GET /schemas", s.handleListSchemas)
	handle("GET /schema/{id}", s.handleGetSchema)
	handle("POST /schema/{id}", s.handleCreateSchema)
	handle("DELETE /schema/{id}", s.handleDeleteSchema)
	handle("GET /schema/{id}/versions", s.handleListVersions)
	handle("POST /schema/{id}/compat", s.handleValidateData)
	handle("GET /compat/{id}/{from}/{to}", s.handleCheckVersions)
	handle("GET /diff/{id}/{from}/{to}", s.handleDiffVersions)
	handle("GET /cache/stats", s.handleCacheStats)

	if s.hub != nil {
		handle("GET /ws", s.handleWebSocket)
	}
	if s.metrics != nil {
		mux.Handle("GET "+prefix+"metrics", s.withRequestID(metric.Handler(s.metrics)))
	}
}

// Handler returns the routes mounted at "/".
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterHTTPHandlers("/", mux)
	return s.withRequestID(s.withCORS(mux))
}

// Start serves until Stop is called. It returns nil after a clean Stop.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(fmt.Errorf("server already running"), "Server", "Start", "start gateway")
	}
	tlsConfig, err := tlsutil.LoadServerConfig(s.config.TLS)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         tlsConfig,
	}
	s.server = srv
	s.closed = false
	s.mu.Unlock()

	s.logger.Info("HTTP gateway listening", "addr", srv.Addr, "tls", tlsConfig != nil)
	if tlsConfig != nil {
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "Server", "Start", fmt.Sprintf("listen on %s", srv.Addr))
	}
	return nil
}

// Stop closes websocket clients and shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.closed = true
	clients := make([]*wsClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.shutdown()
	}

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "shutdown gateway")
	}
	return nil
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) addClient(c *wsClient) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

func (s *Server) removeClient(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || !s.config.EnableCORS {
		return true
	}
	return s.originAllowed(origin)
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.config.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
