// Package server serves the build root during development and pushes
// reload notices to open pages over a websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/cors"

	"github.com/conneroisu/assetforge/internal/config"
	"github.com/conneroisu/assetforge/internal/events"
	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/metrics"
	"github.com/conneroisu/assetforge/internal/websocket"
)

// Routes owned by the dev server.
const (
	LiveReloadPath   = "/__livereload"
	LiveReloadScript = "/__livereload.js"
	HealthPath       = "/health"
	MetricsPath      = "/metrics"
)

const shutdownTimeout = 5 * time.Second

// Options configures a DevServer.
type Options struct {
	Server config.ServerConfig
	// Root is the directory served, normally the build root.
	Root    string
	Broker  *events.Broker
	Metrics *metrics.Metrics
	// Status, if set, reports per-task state on /health.
	Status func() map[string]string
}

// DevServer serves built files with live reload.
type DevServer struct {
	opts    Options
	hub     *websocket.Hub
	handler http.Handler
	logger  logging.Logger

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
}

// New creates a dev server. The websocket hub starts immediately when live
// reload is enabled.
func New(opts Options, logger logging.Logger) *DevServer {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &DevServer{opts: opts, logger: logger.WithComponent("server")}

	if opts.Server.LiveReload {
		s.hub = websocket.NewHub(websocket.AllowedOrigins(s.allowedOrigins()), logger, opts.Metrics.SetReloadClients)
	}
	s.handler = s.routes()
	return s
}

func (s *DevServer) allowedOrigins() []string {
	port := strconv.Itoa(s.opts.Server.Port)
	allowed := []string{
		s.opts.Server.Addr(),
		net.JoinHostPort("localhost", port),
		net.JoinHostPort("127.0.0.1", port),
	}
	return append(allowed, s.opts.Server.AllowedOrigins...)
}

func (s *DevServer) routes() http.Handler {
	mux := http.NewServeMux()

	site := http.NewServeMux()
	site.HandleFunc(HealthPath, s.handleHealth)
	site.Handle(MetricsPath, s.opts.Metrics.Handler())
	site.HandleFunc("/", s.handleStatic)
	if s.hub != nil {
		site.HandleFunc(LiveReloadScript, handleScript)
		// The websocket bypasses request logging so the writer stays hijackable.
		mux.Handle(LiveReloadPath, s.hub)
	}
	mux.Handle("/", s.logRequests(site))

	var handler http.Handler = mux
	if s.opts.Server.CORS {
		origins := s.opts.Server.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		handler = cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		})(handler)
	}
	return handler
}

// Handler returns the server's routes.
func (s *DevServer) Handler() http.Handler { return s.handler }

// Start listens on the configured address and serves until ctx is done.
func (s *DevServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Server.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down.
func (s *DevServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.listener = ln
	s.mu.Unlock()

	if s.hub != nil && s.opts.Broker != nil {
		sub, cancel := s.opts.Broker.Subscribe(32)
		defer cancel()
		go s.forward(ctx, sub)
	}

	s.logger.Info(ctx, "Dev server listening", "url", "http://"+ln.Addr().String(),
		"livereload", s.hub != nil)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Addr returns the listening address, or "" before Serve.
func (s *DevServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown disconnects live-reload clients and stops the HTTP server.
func (s *DevServer) Shutdown(ctx context.Context) error {
	var errs []error
	if s.hub != nil {
		errs = append(errs, s.hub.Shutdown(ctx))
	}

	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
