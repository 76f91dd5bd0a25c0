// Package server serves the build output for local development, with
// live-reload injection and a metrics endpoint.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/livereload"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
)

// Options configures a Server.
type Options struct {
	Addr string
	// Root is the directory served at "/".
	Root string
	// LiveReload, when set, is mounted at livereload.EventsPath and HTML
	// responses get the client script injected.
	LiveReload *livereload.Hub
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server is the development HTTP server.
type Server struct {
	opts   Options
	logger *slog.Logger

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

// New returns an unstarted server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{opts: opts, logger: logger}
}

// Handler returns the complete handler tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	var files http.Handler = http.FileServer(http.Dir(s.opts.Root))
	if hub := s.opts.LiveReload; hub != nil {
		files = livereload.Inject(noCache(files))
		mux.Handle(livereload.EventsPath, hub)
		mux.Handle(livereload.ScriptPath, livereload.ScriptHandler())
	}
	if s.opts.Metrics != nil {
		mux.Handle("/metrics", s.opts.Metrics)
	}
	mux.Handle("/", files)
	return chain(s.logger, mux)
}

// Start binds the listen address and serves in the background. Binding errors
// are returned immediately.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return ferrors.RuntimeError("server already started").Build()
	}

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "listen").
			WithContext("addr", s.opts.Addr).
			UserAction().
			Build()
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server stopped", logfields.Error(err))
		}
	}()
	s.logger.Info("Serving", logfields.Addr("http://"+ln.Addr().String()), logfields.Path(s.opts.Root))
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.opts.Addr
}

// Stop disconnects live-reload clients and shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if s.opts.LiveReload != nil {
		s.opts.LiveReload.Shutdown()
	}
	if err := srv.Shutdown(ctx); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "server shutdown").Build()
	}
	return nil
}

func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		next.ServeHTTP(w, r)
	})
}
