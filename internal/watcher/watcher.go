// Package watcher observes a flat directory and reports classified,
// debounced changes to its regular files.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	scribeerrors "github.com/conneroisu/scribe/internal/errors"
	"github.com/conneroisu/scribe/internal/logging"
)

// FileWatcher watches directories non-recursively and emits one classified
// event per path after a quiet period.
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	filters   []FileFilter
	handlers  []ChangeHandler
	logger    logging.Logger

	mutex sync.RWMutex
	dirs  map[string]struct{}
	// regular files currently present in the watched directories
	known map[string]struct{}

	stopOnce sync.Once
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type EventType
	Path string
}

// Name returns the base name of the changed file.
func (e ChangeEvent) Name() string {
	return filepath.Base(e.Path)
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeRemoved
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// FileFilter determines if a file should be reported
type FileFilter func(path string) bool

// ChangeHandler receives debounced events. It is called from the watcher's
// delivery goroutine and must return promptly.
type ChangeHandler func(event ChangeEvent)

// NewFileWatcher creates a new file watcher
func NewFileWatcher(debounceDelay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, scribeerrors.NewWatcherError("", err)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &FileWatcher{
		watcher:   watcher,
		debouncer: NewDebouncer(debounceDelay),
		filters:   make([]FileFilter, 0),
		handlers:  make([]ChangeHandler, 0),
		logger:    logger.WithComponent("watcher"),
		dirs:      make(map[string]struct{}),
		known:     make(map[string]struct{}),
	}, nil
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddPath starts watching dir. The regular files already present are
// recorded so later renames onto them classify as modifications.
func (fw *FileWatcher) AddPath(dir string) error {
	cleanDir := filepath.Clean(dir)

	info, err := os.Stat(cleanDir)
	if err != nil {
		return scribeerrors.NewWatcherError(cleanDir, err)
	}
	if !info.IsDir() {
		return scribeerrors.NewWatcherError(cleanDir, fmt.Errorf("not a directory"))
	}

	entries, err := os.ReadDir(cleanDir)
	if err != nil {
		return scribeerrors.NewWatcherError(cleanDir, err)
	}

	fw.mutex.Lock()
	fw.dirs[cleanDir] = struct{}{}
	for _, e := range entries {
		if e.Type().IsRegular() {
			fw.known[filepath.Join(cleanDir, e.Name())] = struct{}{}
		}
	}
	fw.mutex.Unlock()

	if err := fw.watcher.Add(cleanDir); err != nil {
		return scribeerrors.NewWatcherError(cleanDir, err)
	}
	return nil
}

// Start starts the file watcher
func (fw *FileWatcher) Start(ctx context.Context) error {
	go fw.processEvents(ctx)
	go fw.watchLoop(ctx)

	return nil
}

// Stop stops the file watcher and cleans up resources
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		fw.debouncer.Stop()
		err = fw.watcher.Close()
	})
	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			// backend errors (e.g. queue overflow) are not fatal
			fw.logger.Warn(ctx, scribeerrors.NewWatcherError("", err), "File watcher error")
		}
	}
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.debouncer.done:
			return
		case event := <-fw.debouncer.output:
			fw.mutex.RLock()
			handlers := fw.handlers
			fw.mutex.RUnlock()

			fw.logger.Debug(ctx, "File changed", "path", event.Path, "type", event.Type.String())
			for _, handler := range handlers {
				handler(event)
			}
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	changeEvent, ok := fw.classify(event)
	if !ok {
		return
	}

	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(changeEvent.Path) {
			return
		}
	}

	fw.debouncer.Add(changeEvent)
}

// classify maps a raw fsnotify event onto Created, Modified or Removed.
// Directories, symlinks and paths outside the watched directories are
// dropped.
func (fw *FileWatcher) classify(event fsnotify.Event) (ChangeEvent, bool) {
	path := filepath.Clean(event.Name)

	fw.mutex.Lock()
	defer fw.mutex.Unlock()

	if _, watched := fw.dirs[filepath.Dir(path)]; !watched {
		return ChangeEvent{}, false
	}
	_, existed := fw.known[path]

	info, err := os.Lstat(path)
	present := err == nil && info.Mode().IsRegular()

	if !present {
		if err == nil {
			// a directory or symlink now occupies the name
			delete(fw.known, path)
			return ChangeEvent{}, false
		}
		if !existed {
			return ChangeEvent{}, false
		}
		// removed, or renamed away from this name
		delete(fw.known, path)
		return ChangeEvent{Type: EventTypeRemoved, Path: path}, true
	}

	fw.known[path] = struct{}{}

	switch {
	case event.Has(fsnotify.Create) && !existed:
		return ChangeEvent{Type: EventTypeCreated, Path: path}, true
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write), event.Has(fsnotify.Chmod):
		return ChangeEvent{Type: EventTypeModified, Path: path}, true
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// the name was replaced before we looked; the new file is what counts
		if existed {
			return ChangeEvent{Type: EventTypeModified, Path: path}, true
		}
		return ChangeEvent{Type: EventTypeCreated, Path: path}, true
	default:
		return ChangeEvent{Type: EventTypeModified, Path: path}, true
	}
}

// Debouncer collapses bursts of events on the same path into one event that
// is emitted once the path has been quiet for the delay.
type Debouncer struct {
	delay   time.Duration
	output  chan ChangeEvent
	done    chan struct{}
	mutex   sync.Mutex
	pending map[string]*pendingChange
	stopped bool
}

type pendingChange struct {
	event ChangeEvent
	timer *time.Timer
}

// NewDebouncer creates a debouncer. A zero delay forwards events as soon as
// they arrive.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		output:  make(chan ChangeEvent, 256),
		done:    make(chan struct{}),
		pending: make(map[string]*pendingChange),
	}
}

// Add records an event, merging it with any pending event on the same path.
func (d *Debouncer) Add(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped {
		return
	}

	if d.delay <= 0 {
		d.send(event)
		return
	}

	if p, ok := d.pending[event.Path]; ok {
		p.event.Type = mergeTypes(p.event.Type, event.Type)
		p.timer.Reset(d.delay)
		return
	}

	path := event.Path
	d.pending[path] = &pendingChange{
		event: event,
		timer: time.AfterFunc(d.delay, func() { d.flush(path) }),
	}
}

func (d *Debouncer) flush(path string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	p, ok := d.pending[path]
	if !ok || d.stopped {
		return
	}
	delete(d.pending, path)

	d.send(p.event)
}

// send hands an event to the delivery goroutine. Caller holds d.mutex, which
// keeps deliveries for a path in order.
func (d *Debouncer) send(event ChangeEvent) {
	select {
	case d.output <- event:
	case <-d.done:
	}
}

// Stop cancels pending timers and releases the delivery goroutine.
func (d *Debouncer) Stop() {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	for path, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, path)
	}
	close(d.done)
}

// mergeTypes folds a newer event type into a pending one.
func mergeTypes(pending, next EventType) EventType {
	switch {
	case pending == EventTypeCreated && next == EventTypeModified:
		return EventTypeCreated
	case pending == EventTypeRemoved && next == EventTypeCreated:
		// deleted and recreated within the window: the name existed before
		return EventTypeModified
	default:
		return next
	}
}

// Common file filters

// PatternFilter keeps paths whose base name matches any of the doublestar
// patterns.
func PatternFilter(patterns ...string) FileFilter {
	return func(path string) bool {
		base := filepath.Base(path)
		for _, pattern := range patterns {
			if ok, err := doublestar.Match(pattern, base); err == nil && ok {
				return true
			}
		}
		return false
	}
}

// NoHiddenFilter drops dotfiles and common editor scratch files.
func NoHiddenFilter(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	return !(strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"))
}
