// Package server exposes the blog over HTTP: rendered pages, static files,
// and the live-reload streams (Server-Sent Events and WebSocket).
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/scribe/internal/config"
	"github.com/conneroisu/scribe/internal/entry"
	"github.com/conneroisu/scribe/internal/events"
	"github.com/conneroisu/scribe/internal/logging"
	"github.com/conneroisu/scribe/internal/server/middleware"
)

// EntryReader is the read side of the entry store.
type EntryReader interface {
	Get(name string) (*entry.Entry, bool)
	IterateRecent(visit func(e *entry.Entry))
	Len() int
}

// Renderer renders themed pages. Implementations always return usable HTML;
// the error is informational.
type Renderer interface {
	RenderHome(ctx context.Context, recent []*entry.Entry) (string, error)
	RenderEntry(ctx context.Context, e *entry.Entry) (string, error)
	RenderNotFound(ctx context.Context, name string) (string, error)
}

// Server serves the blog.
type Server struct {
	config   *config.Config
	entries  EntryReader
	renderer Renderer
	bus      *events.Bus
	logger   logging.Logger

	httpServer   *http.Server
	serverMutex  sync.Mutex
	shutdownOnce sync.Once
	// closed when Shutdown starts so long-lived streams end promptly
	shutdown chan struct{}
}

// New creates a server over the given store, theme and event bus.
func New(cfg *config.Config, entries EntryReader, renderer Renderer, bus *events.Bus, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Server{
		config:   cfg,
		entries:  entries,
		renderer: renderer,
		bus:      bus,
		logger:   logger.WithComponent("server"),
		shutdown: make(chan struct{}),
	}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /blog", s.handleHome)
	mux.HandleFunc("GET /blog/{$}", s.handleHome)
	mux.HandleFunc("GET /blog/{name}", s.handleEntry)
	mux.HandleFunc("GET /files/{path...}", s.handleFiles)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)

	return middleware.Chain(mux,
		middleware.Recovery(s.logger),
		middleware.Logging(s.logger),
		middleware.SecurityHeaders(),
	)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.serverMutex.Lock()
	select {
	case <-s.shutdown:
		s.serverMutex.Unlock()
		listener.Close()
		return nil
	default:
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "Server listening", "addr", listener.Addr().String())

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends open event streams and gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "Shutting down server")

		s.serverMutex.Lock()
		close(s.shutdown)
		server := s.httpServer
		s.serverMutex.Unlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		}
	})

	return shutdownErr
}
