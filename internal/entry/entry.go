// Package entry turns Markdown source files with YAML front-matter into
// rendered, immutable blog entries.
package entry

import (
	"path/filepath"
	"strings"
	"time"
)

// Extension is the only file extension ingested as an entry.
const Extension = ".md"

// Metadata is the front-matter schema of an entry.
type Metadata struct {
	Title       string
	Author      string
	PublishDate time.Time
}

// Entry is the rendered form of one post. Entries are never mutated after
// construction; a reload replaces the whole value.
type Entry struct {
	Name         string
	Metadata     Metadata
	HTML         string
	Summary      string
	CreationDate time.Time
}

// SortKey is the instant used to order entries, newest first. CreationDate
// stands in when the entry carries no publish date.
func (e *Entry) SortKey() time.Time {
	if !e.Metadata.PublishDate.IsZero() {
		return e.Metadata.PublishDate
	}
	return e.CreationDate
}

// Newer reports whether a sorts before b in the recent view: later sort key
// first, ties broken by name ascending.
func Newer(a, b *Entry) bool {
	ka, kb := a.SortKey(), b.SortKey()
	if !ka.Equal(kb) {
		return ka.After(kb)
	}
	return a.Name < b.Name
}

// IsMarkdown reports whether name carries the Markdown extension.
func IsMarkdown(name string) bool {
	return strings.HasSuffix(filepath.Base(name), Extension)
}

// IsEligible reports whether a file should be ingested: it must be Markdown
// and must not start with an underscore (drafts).
func IsEligible(name string) bool {
	base := filepath.Base(name)
	return IsMarkdown(base) && !strings.HasPrefix(base, "_")
}

// TemplateData is the map form handed to theme templates. Front-matter is
// exposed both as metadata and, for older themes, as description.
func (e *Entry) TemplateData() map[string]interface{} {
	meta := map[string]interface{}{
		"title":        e.Metadata.Title,
		"author":       e.Metadata.Author,
		"publish_date": e.Metadata.PublishDate.Format(time.RFC3339),
	}
	return map[string]interface{}{
		"name":          e.Name,
		"metadata":      meta,
		"description":   meta,
		"html":          e.HTML,
		"summary":       e.Summary,
		"creation_date": e.CreationDate.Format(time.RFC3339),
	}
}
