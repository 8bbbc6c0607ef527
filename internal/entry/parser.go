package entry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"

	scribeerrors "github.com/conneroisu/scribe/internal/errors"
)

// SummaryLength caps Entry.Summary in runes.
const SummaryLength = 280

// dateLayouts are accepted for publish_date. Only layouts carrying an offset
// are listed first; a bare date is read as UTC midnight.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
}

// rawMetadata mirrors the YAML block. Fields are kept as nodes so a value of
// the wrong shape surfaces as a schema error rather than a YAML error.
type rawMetadata struct {
	Title       *yaml.Node `yaml:"title"`
	Author      *yaml.Node `yaml:"author"`
	PublishDate *yaml.Node `yaml:"publish_date"`
}

// yamlFormat is the "---" delimited front-matter decoded with yaml.v3.
var yamlFormat = frontmatter.NewFormat("---", "---", yaml.Unmarshal)

// Options configures Markdown rendering.
type Options struct {
	// GFM enables GitHub-flavoured extensions on top of CommonMark.
	GFM bool
	// UnsafeHTML passes raw HTML in the Markdown body through untouched.
	UnsafeHTML bool
}

// Parser reads source files into entries. It is safe for concurrent use.
type Parser struct {
	markdown goldmark.Markdown
}

// NewParser creates a parser. The zero Options give CommonMark without raw
// HTML passthrough.
func NewParser(opts Options) *Parser {
	var gmOpts []goldmark.Option
	if opts.GFM {
		gmOpts = append(gmOpts, goldmark.WithExtensions(extension.GFM))
	}
	if opts.UnsafeHTML {
		gmOpts = append(gmOpts, goldmark.WithRendererOptions(gmhtml.WithUnsafe()))
	}

	return &Parser{markdown: goldmark.New(gmOpts...)}
}

// Parse reads the file at path and returns the rendered entry. Errors are
// *errors.ScribeError of type io, front_matter, schema or markdown.
func (p *Parser) Parse(ctx context.Context, path string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, scribeerrors.NewIOError(path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, scribeerrors.NewIOError(path, err)
	}

	return p.ParseBytes(ctx, filepath.Base(path), content, creationTime(path, info))
}

// ParseBytes builds an entry from in-memory source. name becomes Entry.Name
// and created becomes Entry.CreationDate.
func (p *Parser) ParseBytes(ctx context.Context, name string, content []byte, created time.Time) (e *Entry, err error) {
	defer func() {
		// goldmark extensions are third-party code; a panic there must not
		// take down the ingest loop
		if r := recover(); r != nil {
			e = nil
			err = scribeerrors.NewMarkdownError(name, fmt.Errorf("panic: %v", r))
		}
	}()

	var raw rawMetadata
	body, err := frontmatter.MustParse(bytes.NewReader(content), &raw, yamlFormat)
	if err != nil {
		return nil, scribeerrors.NewFrontMatterError(name, err)
	}

	meta, err := raw.validate(name)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := p.markdown.Convert(body, &buf); err != nil {
		return nil, scribeerrors.NewMarkdownError(name, err)
	}
	html := buf.String()

	return &Entry{
		Name:         name,
		Metadata:     meta,
		HTML:         html,
		Summary:      Summarize(html, SummaryLength),
		CreationDate: created,
	}, nil
}

func (r rawMetadata) validate(name string) (Metadata, error) {
	var meta Metadata

	title, err := requireString(name, "title", r.Title)
	if err != nil {
		return meta, err
	}
	author, err := requireString(name, "author", r.Author)
	if err != nil {
		return meta, err
	}
	dateStr, err := requireString(name, "publish_date", r.PublishDate)
	if err != nil {
		return meta, err
	}
	date, err := parseDate(dateStr)
	if err != nil {
		return meta, scribeerrors.NewSchemaError(name, "publish_date", err.Error())
	}

	meta.Title = title
	meta.Author = author
	meta.PublishDate = date

	return meta, nil
}

func requireString(name, field string, node *yaml.Node) (string, error) {
	if node == nil || node.Tag == "!!null" {
		return "", scribeerrors.NewSchemaError(name, field, "")
	}
	if node.Kind != yaml.ScalarNode {
		return "", scribeerrors.NewSchemaError(name, field, "must be a string")
	}
	if strings.TrimSpace(node.Value) == "" {
		return "", scribeerrors.NewSchemaError(name, field, "")
	}
	return node.Value, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("not an ISO-8601 instant: " + s)
}
