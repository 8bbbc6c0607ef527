package theme

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/conneroisu/scribe/internal/entry"
	"github.com/conneroisu/scribe/internal/events"
	"github.com/conneroisu/scribe/internal/logging"
	"github.com/conneroisu/scribe/internal/watcher"
)

// BlogInfo is handed to every template as blog_info.
type BlogInfo struct {
	Title       string
	Description string
}

func (b BlogInfo) data() map[string]interface{} {
	return map[string]interface{}{
		"title":       b.Title,
		"description": b.Description,
	}
}

// Publisher receives a Reload after each successful theme reload.
type Publisher interface {
	Publish(ev events.UpdateEvent)
}

// Registry holds the active theme snapshot.
type Registry struct {
	dir       string
	ext       string
	info      BlogInfo
	current   atomic.Pointer[Snapshot]
	reloadMu  sync.Mutex
	publisher Publisher
	logger    logging.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithExtension sets the template file extension.
func WithExtension(ext string) Option {
	return func(r *Registry) {
		if ext != "" {
			r.ext = ext
		}
	}
}

// WithBlogInfo sets the blog_info passed to templates.
func WithBlogInfo(info BlogInfo) Option {
	return func(r *Registry) {
		r.info = info
	}
}

// WithPublisher broadcasts a Reload after successful reloads.
func WithPublisher(p Publisher) Option {
	return func(r *Registry) {
		r.publisher = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry loads the theme in dir. A theme that fails to load is an
// error; there is no snapshot to fall back on yet.
func NewRegistry(dir string, opts ...Option) (*Registry, error) {
	r := &Registry{
		dir:    dir,
		ext:    DefaultExtension,
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("theme")

	perf := logging.StartOperation(r.logger, "theme_load")
	snapshot, err := Load(r.dir, r.ext)
	if err != nil {
		perf.EndWithError(context.Background(), err, "dir", dir)
		return nil, err
	}
	perf.End(context.Background(), "dir", dir, "partials", len(snapshot.partials))

	r.current.Store(snapshot)
	return r, nil
}

// Current returns the active snapshot.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Info returns the blog_info passed to templates.
func (r *Registry) Info() BlogInfo {
	return r.info
}

// Reload builds a new snapshot and swaps it in. On failure the active
// snapshot is kept and the error returned.
func (r *Registry) Reload(ctx context.Context) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	perf := logging.StartOperation(r.logger, "theme_reload")
	snapshot, err := Load(r.dir, r.ext)
	if err != nil {
		perf.EndWithError(ctx, err, "dir", r.dir)
		r.logger.Warn(ctx, err, "Theme reload failed, keeping previous theme")
		return err
	}
	r.current.Store(snapshot)
	perf.End(ctx, "dir", r.dir)
	r.logger.Info(ctx, "Theme reloaded", "dir", r.dir)

	if r.publisher != nil {
		r.publisher.Publish(events.Reload{})
	}
	return nil
}

// HandleChange is a watcher.ChangeHandler that reloads the theme.
func (r *Registry) HandleChange(ev watcher.ChangeEvent) {
	ctx := context.Background()
	r.logger.Debug(ctx, "Theme file changed", "path", ev.Path, "type", ev.Type.String())
	_ = r.Reload(ctx)
}

// RenderHome renders the home page for the recent entries. The returned HTML
// is always usable; a non-nil error means the fallback page was rendered.
func (r *Registry) RenderHome(ctx context.Context, recent []*entry.Entry) (string, error) {
	items := make([]interface{}, 0, len(recent))
	for _, e := range recent {
		items = append(items, e.TemplateData())
	}
	data := map[string]interface{}{
		"blog_info":         r.info.data(),
		"important_entries": items,
	}
	return r.render(ctx, TemplateHome, data, func() string {
		return fallbackHome(ctx, r.info, recent)
	})
}

// RenderEntry renders a single entry.
func (r *Registry) RenderEntry(ctx context.Context, e *entry.Entry) (string, error) {
	data := map[string]interface{}{
		"blog_info":  r.info.data(),
		"blog_entry": e.TemplateData(),
	}
	return r.render(ctx, TemplateBlogEntry, data, func() string {
		return fallbackEntry(ctx, r.info, e)
	})
}

// RenderNotFound renders the page shown for an unknown entry name.
func (r *Registry) RenderNotFound(ctx context.Context, name string) (string, error) {
	data := map[string]interface{}{
		"blog_info":       r.info.data(),
		"entry_not_found": name,
	}
	return r.render(ctx, TemplateEntryNotFound, data, func() string {
		return fallbackNotFound(ctx, r.info, name)
	})
}

func (r *Registry) render(ctx context.Context, name string, data map[string]interface{}, fallback func() string) (string, error) {
	snapshot := r.current.Load()
	if snapshot == nil {
		err := fmt.Errorf("no theme loaded")
		r.logger.Error(ctx, err, "Render failed", "template", name)
		return fallback(), err
	}

	out, err := snapshot.Render(name, data)
	if err != nil {
		r.logger.Error(ctx, err, "Render failed, serving fallback page", "template", name)
		return fallback(), err
	}
	return out, nil
}
