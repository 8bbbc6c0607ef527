package dispatch

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/conneroisu/scribe/internal/entry"
	"github.com/conneroisu/scribe/internal/events"
)

// Parser turns a file on disk into an entry.
type Parser interface {
	Parse(ctx context.Context, path string) (*entry.Entry, error)
}

// EntryStore is the write side of the entry index.
type EntryStore interface {
	Upsert(ctx context.Context, e *entry.Entry) (bool, error)
	Remove(ctx context.Context, name string) (bool, error)
	Contains(name string) bool
}

// Publisher broadcasts update notifications to connected clients.
type Publisher interface {
	Publish(ev events.UpdateEvent)
}
