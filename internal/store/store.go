// Package store holds the in-memory index of rendered entries.
//
// A Store keeps two coupled views: every entry by name, and a bounded
// "recent" slice ordered newest first. One RWMutex guards both so readers
// never observe an entry in the recent view that is missing from the name
// index.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/scribe/internal/entry"
	scribeerrors "github.com/conneroisu/scribe/internal/errors"
	"github.com/conneroisu/scribe/internal/logging"
)

const maxLockBackoff = 16 * time.Millisecond

// Store is a thread-safe name index plus an ordered bounded recent view.
type Store struct {
	mutex     sync.RWMutex
	byName    map[string]*entry.Entry
	recent    []*entry.Entry
	maxRecent int

	writeTimeout time.Duration
	logger       logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used when a write gives up.
func WithLogger(logger logging.Logger) Option {
	return func(s *Store) {
		s.logger = logger.WithComponent("store")
	}
}

// WithWriteTimeout bounds how long Upsert and Remove wait for exclusive
// access. Zero or negative waits indefinitely.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.writeTimeout = d
	}
}

// New creates a store whose recent view holds at most maxRecent entries.
func New(maxRecent int, opts ...Option) *Store {
	if maxRecent < 1 {
		maxRecent = 1
	}

	s := &Store{
		byName:    make(map[string]*entry.Entry),
		recent:    make([]*entry.Entry, 0, maxRecent),
		maxRecent: maxRecent,
		logger:    logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// MaxRecent returns the capacity of the recent view.
func (s *Store) MaxRecent() int {
	return s.maxRecent
}

// Upsert inserts or replaces e by name and reports whether an entry with
// that name already existed. If exclusive access cannot be obtained within
// the write timeout the store is left unchanged and ErrStoreBusy returned.
func (s *Store) Upsert(ctx context.Context, e *entry.Entry) (bool, error) {
	if !s.lock(ctx) {
		s.logger.Warn(ctx, scribeerrors.ErrStoreBusy, "Upsert skipped", "name", e.Name)
		return false, scribeerrors.ErrStoreBusy
	}
	defer s.mutex.Unlock()

	_, existed := s.byName[e.Name]
	s.byName[e.Name] = e

	if existed {
		if idx := s.recentIndex(e.Name); idx >= 0 {
			s.recent = append(s.recent[:idx], s.recent[idx+1:]...)
			s.refill(e.Name)
		}
	}
	s.insertRecent(e)

	return existed, nil
}

// Remove deletes the named entry from both views and reports whether it was
// present.
func (s *Store) Remove(ctx context.Context, name string) (bool, error) {
	if !s.lock(ctx) {
		s.logger.Warn(ctx, scribeerrors.ErrStoreBusy, "Remove skipped", "name", name)
		return false, scribeerrors.ErrStoreBusy
	}
	defer s.mutex.Unlock()

	if _, ok := s.byName[name]; !ok {
		return false, nil
	}
	delete(s.byName, name)

	if idx := s.recentIndex(name); idx >= 0 {
		s.recent = append(s.recent[:idx], s.recent[idx+1:]...)
		s.refill("")
	}

	return true, nil
}

// Get returns the entry stored under name.
func (s *Store) Get(name string) (*entry.Entry, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	e, ok := s.byName[name]
	return e, ok
}

// Contains reports whether an entry named name is stored.
func (s *Store) Contains(name string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, ok := s.byName[name]
	return ok
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.byName)
}

// Names returns all stored names in ascending order.
func (s *Store) Names() []string {
	s.mutex.RLock()
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	s.mutex.RUnlock()

	sort.Strings(names)
	return names
}

// IterateRecent calls visit for each entry of the recent view, newest first,
// while holding the read lock. visit must not call Upsert or Remove.
func (s *Store) IterateRecent(visit func(e *entry.Entry)) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, e := range s.recent {
		visit(e)
	}
}

// Recent returns a copy of the recent view.
func (s *Store) Recent() []*entry.Entry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make([]*entry.Entry, len(s.recent))
	copy(out, s.recent)
	return out
}

// lock acquires the write lock, polling with backoff until the write timeout
// or ctx expires.
func (s *Store) lock(ctx context.Context) bool {
	if s.writeTimeout <= 0 {
		s.mutex.Lock()
		return true
	}
	if s.mutex.TryLock() {
		return true
	}

	deadline := time.NewTimer(s.writeTimeout)
	defer deadline.Stop()

	backoff := time.Millisecond
	for {
		retry := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			retry.Stop()
			return false
		case <-deadline.C:
			retry.Stop()
			return false
		case <-retry.C:
		}

		if s.mutex.TryLock() {
			return true
		}
		if backoff < maxLockBackoff {
			backoff *= 2
		}
	}
}

// Caller must hold the write lock for everything below.

func (s *Store) recentIndex(name string) int {
	for i, e := range s.recent {
		if e.Name == name {
			return i
		}
	}
	return -1
}

// insertRecent places e at its sorted position. An entry that would land
// past the tail of a full view is not inserted.
func (s *Store) insertRecent(e *entry.Entry) {
	pos := sort.Search(len(s.recent), func(i int) bool {
		return entry.Newer(e, s.recent[i])
	})
	if pos == len(s.recent) && len(s.recent) >= s.maxRecent {
		return
	}

	s.recent = append(s.recent, nil)
	copy(s.recent[pos+1:], s.recent[pos:])
	s.recent[pos] = e

	if len(s.recent) > s.maxRecent {
		s.recent[len(s.recent)-1] = nil
		s.recent = s.recent[:s.maxRecent]
	}
}

// refill pulls the newest entry that is not yet in the recent view (and is
// not named exclude) into a view that has a free slot, so the view stays the
// top maxRecent of all stored entries.
func (s *Store) refill(exclude string) {
	if len(s.recent) >= s.maxRecent || len(s.byName) <= len(s.recent) {
		return
	}

	inRecent := make(map[string]struct{}, len(s.recent))
	for _, e := range s.recent {
		inRecent[e.Name] = struct{}{}
	}

	var best *entry.Entry
	for name, e := range s.byName {
		if name == exclude {
			continue
		}
		if _, ok := inRecent[name]; ok {
			continue
		}
		if best == nil || entry.Newer(e, best) {
			best = e
		}
	}
	if best != nil {
		s.insertRecent(best)
	}
}
