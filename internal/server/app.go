package server

import (
	"context"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/scribe/internal/config"
	"github.com/conneroisu/scribe/internal/dispatch"
	"github.com/conneroisu/scribe/internal/entry"
	scribeerrors "github.com/conneroisu/scribe/internal/errors"
	"github.com/conneroisu/scribe/internal/events"
	"github.com/conneroisu/scribe/internal/logging"
	"github.com/conneroisu/scribe/internal/store"
	"github.com/conneroisu/scribe/internal/theme"
	"github.com/conneroisu/scribe/internal/watcher"
)

// ShutdownTimeout bounds graceful HTTP shutdown.
const ShutdownTimeout = 5 * time.Second

// App wires the content pipeline, the theme and the HTTP server together.
type App struct {
	Config     *config.Config
	Store      *store.Store
	Bus        *events.Bus
	Theme      *theme.Registry
	Dispatcher *dispatch.Dispatcher
	Server     *Server

	contentWatcher *watcher.FileWatcher
	themeWatcher   *watcher.FileWatcher
	logger         logging.Logger
}

// NewApp builds every component from cfg. Failing to load the theme or to
// watch the content or theme directories is fatal.
func NewApp(cfg *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	bus := events.NewBus(cfg.Events.Backlog)
	entries := store.New(cfg.Content.MaxRecent,
		store.WithLogger(logger),
		store.WithWriteTimeout(cfg.Content.WriteTimeout),
	)

	registry, err := theme.NewRegistry(cfg.Theme.Path,
		theme.WithExtension(cfg.Theme.Extension),
		theme.WithBlogInfo(theme.BlogInfo{Title: cfg.Blog.Title, Description: cfg.Blog.Description}),
		theme.WithPublisher(bus),
		theme.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	parser := entry.NewParser(entry.Options{GFM: cfg.Content.GFM, UnsafeHTML: cfg.Content.UnsafeHTML})
	dispatcher := dispatch.New(cfg.Content.BasePath, parser, entries, bus,
		dispatch.WithLogger(logger),
		dispatch.WithQueueSize(cfg.Content.QueueSize),
		dispatch.WithParseTimeout(cfg.Content.ParseTimeout),
	)

	contentWatcher, err := watcher.NewFileWatcher(cfg.Content.Debounce, logger)
	if err != nil {
		return nil, err
	}
	contentWatcher.AddFilter(watcher.NoHiddenFilter)
	contentWatcher.AddHandler(func(ev watcher.ChangeEvent) {
		dispatcher.Submit(ev)
	})
	if err := contentWatcher.AddPath(cfg.Content.BasePath); err != nil {
		contentWatcher.Stop()
		return nil, scribeerrors.Wrap(err, scribeerrors.ErrorTypeConfig, scribeerrors.ErrCodeConfigInvalid, "content directory cannot be watched")
	}

	themeWatcher, err := watcher.NewFileWatcher(cfg.Content.Debounce, logger)
	if err != nil {
		contentWatcher.Stop()
		return nil, err
	}
	themeWatcher.AddFilter(watcher.PatternFilter(cfg.Theme.Patterns...))
	themeWatcher.AddHandler(registry.HandleChange)
	for _, dir := range append([]string{cfg.Theme.Path}, cfg.Theme.ExtraPaths...) {
		if err := themeWatcher.AddPath(dir); err != nil {
			contentWatcher.Stop()
			themeWatcher.Stop()
			return nil, scribeerrors.Wrap(err, scribeerrors.ErrorTypeConfig, scribeerrors.ErrCodeConfigInvalid, "theme directory cannot be watched")
		}
	}

	return &App{
		Config:         cfg,
		Store:          entries,
		Bus:            bus,
		Theme:          registry,
		Dispatcher:     dispatcher,
		Server:         New(cfg, entries, registry, bus, logger),
		contentWatcher: contentWatcher,
		themeWatcher:   themeWatcher,
		logger:         logger.WithComponent("app"),
	}, nil
}

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", a.Config.Server.Addr())
	if err != nil {
		a.Close()
		return err
	}
	return a.Serve(ctx, listener)
}

// Serve ingests the content directory, then serves on listener and applies
// filesystem changes until ctx is cancelled.
func (a *App) Serve(ctx context.Context, listener net.Listener) error {
	defer a.Close()

	// watch first so files written during the scan are not missed; their
	// events wait in the dispatcher queue
	if err := a.contentWatcher.Start(ctx); err != nil {
		listener.Close()
		return err
	}
	if err := a.themeWatcher.Start(ctx); err != nil {
		listener.Close()
		return err
	}

	if err := a.Dispatcher.Scan(ctx); err != nil {
		listener.Close()
		return err
	}
	a.logger.Info(ctx, "Content loaded", "entries", a.Store.Len(), "dir", a.Config.Content.BasePath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Dispatcher.Run(gctx)
	})
	g.Go(func() error {
		return a.Server.Serve(gctx, listener)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close stops the filesystem watchers.
func (a *App) Close() {
	a.contentWatcher.Stop()
	a.themeWatcher.Stop()
}
