package entry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scribeerrors "github.com/conneroisu/scribe/internal/errors"
)

const helloPost = `---
title: Hello
author: A
publish_date: 2024-01-01T00:00:00Z
---
# hi

First paragraph of the post.

Second paragraph.
`

func writePost(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParseHello(t *testing.T) {
	dir := t.TempDir()
	path := writePost(t, dir, "hello.md", helloPost)

	e, err := NewParser(Options{}).Parse(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "hello.md", e.Name)
	assert.Equal(t, "Hello", e.Metadata.Title)
	assert.Equal(t, "A", e.Metadata.Author)
	assert.True(t, e.Metadata.PublishDate.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Contains(t, e.HTML, "<h1>hi</h1>")
	assert.Equal(t, "First paragraph of the post.", e.Summary)
	assert.False(t, e.CreationDate.IsZero())
}

func TestParseKeepsOffset(t *testing.T) {
	src := strings.Replace(helloPost, "2024-01-01T00:00:00Z", "\"2024-03-01T10:30:00+02:00\"", 1)

	e, err := NewParser(Options{}).ParseBytes(context.Background(), "offset.md", []byte(src), time.Time{})
	require.NoError(t, err)

	_, offset := e.Metadata.PublishDate.Zone()
	assert.Equal(t, 2*60*60, offset)
	assert.True(t, e.Metadata.PublishDate.Equal(time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)))
}

func TestParseDateOnly(t *testing.T) {
	src := strings.Replace(helloPost, "2024-01-01T00:00:00Z", "2024-02-01", 1)

	e, err := NewParser(Options{}).ParseBytes(context.Background(), "d.md", []byte(src), time.Time{})
	require.NoError(t, err)
	assert.True(t, e.Metadata.PublishDate.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name     string
		source   string
		errType  scribeerrors.ErrorType
		errField string
	}{
		{
			name:    "no front-matter",
			source:  "# just markdown\n",
			errType: scribeerrors.ErrorTypeFrontMatter,
		},
		{
			name:    "broken yaml",
			source:  "---\ntitle: [unterminated\n---\nbody\n",
			errType: scribeerrors.ErrorTypeFrontMatter,
		},
		{
			name:     "missing title",
			source:   "---\nauthor: A\npublish_date: 2024-01-01T00:00:00Z\n---\nbody\n",
			errType:  scribeerrors.ErrorTypeSchema,
			errField: "title",
		},
		{
			name:     "missing author",
			source:   "---\ntitle: T\npublish_date: 2024-01-01T00:00:00Z\n---\nbody\n",
			errType:  scribeerrors.ErrorTypeSchema,
			errField: "author",
		},
		{
			name:     "bad date",
			source:   "---\ntitle: T\nauthor: A\npublish_date: yesterday\n---\nbody\n",
			errType:  scribeerrors.ErrorTypeSchema,
			errField: "publish_date",
		},
		{
			name:     "title is a list",
			source:   "---\ntitle: [a, b]\nauthor: A\npublish_date: 2024-01-01T00:00:00Z\n---\nbody\n",
			errType:  scribeerrors.ErrorTypeSchema,
			errField: "title",
		},
		{
			name:     "author is a mapping",
			source:   "---\ntitle: T\nauthor:\n  name: A\npublish_date: 2024-01-01T00:00:00Z\n---\nbody\n",
			errType:  scribeerrors.ErrorTypeSchema,
			errField: "author",
		},
		{
			name:     "null title",
			source:   "---\ntitle: ~\nauthor: A\npublish_date: 2024-01-01T00:00:00Z\n---\nbody\n",
			errType:  scribeerrors.ErrorTypeSchema,
			errField: "title",
		},
	}

	parser := NewParser(Options{})
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := parser.ParseBytes(context.Background(), "x.md", []byte(tc.source), time.Time{})
			require.Error(t, err)
			assert.Nil(t, e)
			assert.True(t, scribeerrors.IsType(err, tc.errType), "got %v", err)
			assert.True(t, scribeerrors.IsParseError(err))

			if tc.errField != "" {
				var se *scribeerrors.ScribeError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, tc.errField, se.Context["field"])
			}
		})
	}
}

func TestParseMissingFile(t *testing.T) {
	_, err := NewParser(Options{}).Parse(context.Background(), filepath.Join(t.TempDir(), "gone.md"))
	require.Error(t, err)
	assert.True(t, scribeerrors.IsType(err, scribeerrors.ErrorTypeIO))
}

func TestParseCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := writePost(t, t.TempDir(), "hello.md", helloPost)
	_, err := NewParser(Options{}).Parse(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRawHTMLIsEscapedByDefault(t *testing.T) {
	src := strings.Replace(helloPost, "# hi", "<script>alert(1)</script>", 1)

	safe, err := NewParser(Options{}).ParseBytes(context.Background(), "x.md", []byte(src), time.Time{})
	require.NoError(t, err)
	assert.NotContains(t, safe.HTML, "<script>")

	unsafe, err := NewParser(Options{UnsafeHTML: true}).ParseBytes(context.Background(), "x.md", []byte(src), time.Time{})
	require.NoError(t, err)
	assert.Contains(t, unsafe.HTML, "<script>alert(1)</script>")
}

func TestGFMTables(t *testing.T) {
	src := strings.Replace(helloPost, "# hi", "| a | b |\n|---|---|\n| 1 | 2 |", 1)

	plain, err := NewParser(Options{}).ParseBytes(context.Background(), "x.md", []byte(src), time.Time{})
	require.NoError(t, err)
	assert.NotContains(t, plain.HTML, "<table>")

	gfm, err := NewParser(Options{GFM: true}).ParseBytes(context.Background(), "x.md", []byte(src), time.Time{})
	require.NoError(t, err)
	assert.Contains(t, gfm.HTML, "<table>")
}
