// Package dispatch turns classified filesystem changes in the content
// directory into entry store mutations and reload broadcasts.
//
// Events are queued on a bounded channel and applied by a single actor, so
// changes to the same file are applied in the order they were observed.
package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/scribe/internal/entry"
	scribeerrors "github.com/conneroisu/scribe/internal/errors"
	"github.com/conneroisu/scribe/internal/events"
	"github.com/conneroisu/scribe/internal/logging"
	"github.com/conneroisu/scribe/internal/watcher"
)

// DefaultQueueSize is the number of pending events held before Submit
// starts rejecting.
const DefaultQueueSize = 256

// Dispatcher applies content changes to the entry store.
type Dispatcher struct {
	dir       string
	parser    Parser
	store     EntryStore
	publisher Publisher

	queue        chan watcher.ChangeEvent
	parseTimeout time.Duration
	scanLimit    int

	logger  logging.Logger
	handler *scribeerrors.ErrorHandler
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithQueueSize sets the capacity of the event queue.
func WithQueueSize(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.queue = make(chan watcher.ChangeEvent, size)
		}
	}
}

// WithParseTimeout bounds each parse. Zero means no bound.
func WithParseTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.parseTimeout = timeout
	}
}

// WithScanConcurrency limits how many files Scan parses at once.
func WithScanConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.scanLimit = n
		}
	}
}

// New creates a dispatcher for the content directory dir.
func New(dir string, parser Parser, store EntryStore, publisher Publisher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		dir:       dir,
		parser:    parser,
		store:     store,
		publisher: publisher,
		queue:     make(chan watcher.ChangeEvent, DefaultQueueSize),
		scanLimit: runtime.GOMAXPROCS(0),
		logger:    logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithComponent("dispatch")
	d.handler = scribeerrors.NewErrorHandler(d.logger)
	return d
}

// Submit enqueues an event without blocking. It reports false when the
// queue is full and the event was dropped.
func (d *Dispatcher) Submit(ev watcher.ChangeEvent) bool {
	select {
	case d.queue <- ev:
		return true
	default:
		d.logger.Warn(context.Background(), fmt.Errorf("dispatch queue full"),
			"Dropping change event", "path", ev.Path, "type", ev.Type.String())
		return false
	}
}

// Run drains the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-d.queue:
			d.apply(ctx, ev)
		}
	}
}

// Scan parses every eligible file already in the content directory and adds
// it to the store. Files that fail to parse are logged and skipped; only an
// unreadable directory or cancellation is returned as an error.
func (d *Dispatcher) Scan(ctx context.Context) error {
	perf := logging.StartOperation(d.logger, "initial_scan")

	dirEntries, err := os.ReadDir(d.dir)
	if err != nil {
		err = scribeerrors.NewIOError(d.dir, err)
		perf.EndWithError(ctx, err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.scanLimit)

	eligible := 0
	for _, de := range dirEntries {
		if !de.Type().IsRegular() || !entry.IsEligible(de.Name()) {
			continue
		}
		eligible++
		path := filepath.Join(d.dir, de.Name())
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d.ingest(gctx, path)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		perf.EndWithError(ctx, err)
		return err
	}
	perf.End(ctx, "files", eligible)
	return nil
}

// apply performs the action for a single event.
func (d *Dispatcher) apply(ctx context.Context, ev watcher.ChangeEvent) {
	name := ev.Name()

	switch ev.Type {
	case watcher.EventTypeCreated:
		if !entry.IsEligible(name) {
			return
		}
		if d.ingest(ctx, ev.Path) {
			d.publisher.Publish(events.Reload{})
		}

	case watcher.EventTypeModified:
		if !entry.IsEligible(name) {
			return
		}
		if !d.store.Contains(name) {
			// first sight of a name that was never ingested, e.g. it failed
			// to parse earlier; handle as a creation
			d.logger.Debug(ctx, "Modified unknown entry, treating as created", "name", name)
		}
		if d.ingest(ctx, ev.Path) {
			d.publisher.Publish(events.Reload{})
		}

	case watcher.EventTypeRemoved:
		if !entry.IsMarkdown(name) {
			return
		}
		removed, err := d.store.Remove(ctx, name)
		if err != nil {
			d.handler.Handle(ctx, err)
			return
		}
		if removed {
			d.logger.Info(ctx, "Entry removed", "name", name)
		}
	}
}

// ingest parses path and upserts the result. It reports whether the store
// was updated.
func (d *Dispatcher) ingest(ctx context.Context, path string) bool {
	parseCtx := ctx
	if d.parseTimeout > 0 {
		var cancel context.CancelFunc
		parseCtx, cancel = context.WithTimeout(ctx, d.parseTimeout)
		defer cancel()
	}

	e, err := d.parser.Parse(parseCtx, path)
	if err != nil {
		d.handler.Handle(ctx, err)
		return false
	}

	replaced, err := d.store.Upsert(ctx, e)
	if err != nil {
		d.handler.Handle(ctx, err)
		return false
	}

	if replaced {
		d.logger.Info(ctx, "Entry updated", "name", e.Name)
	} else {
		d.logger.Info(ctx, "Entry added", "name", e.Name)
	}
	return true
}
