package theme

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/scribe/internal/entry"
)

// page is the minimal HTML shell used when the theme cannot render.
func page(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>"+
			templ.EscapeString(title)+"</title></head><body>"); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, hotReloadScript+"</body></html>")
		return err
	})
}

func text(format string, args ...string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		escaped := make([]interface{}, len(args))
		for i, a := range args {
			escaped[i] = templ.EscapeString(a)
		}
		_, err := io.WriteString(w, fmt.Sprintf(format, escaped...))
		return err
	})
}

func raw(html string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, html)
		return err
	})
}

func join(parts ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		for _, p := range parts {
			if err := p.Render(ctx, w); err != nil {
				return err
			}
		}
		return nil
	})
}

func renderString(ctx context.Context, c templ.Component) string {
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		return "<!DOCTYPE html><html><body></body></html>"
	}
	return sb.String()
}

func fallbackHome(ctx context.Context, info BlogInfo, recent []*entry.Entry) string {
	parts := []templ.Component{text("<h1>%s</h1><ul>", info.Title)}
	for _, e := range recent {
		parts = append(parts, text("<li><a href=\"/blog/%s\">%s</a></li>", url.PathEscape(e.Name), e.Metadata.Title))
	}
	parts = append(parts, raw("</ul>"))
	return renderString(ctx, page(info.Title, join(parts...)))
}

func fallbackEntry(ctx context.Context, info BlogInfo, e *entry.Entry) string {
	body := join(
		text("<h1>%s</h1><p>%s</p>", e.Metadata.Title, e.Metadata.Author),
		raw(e.HTML),
	)
	return renderString(ctx, page(e.Metadata.Title+" - "+info.Title, body))
}

func fallbackNotFound(ctx context.Context, info BlogInfo, name string) string {
	return renderString(ctx, page(info.Title, text("<h1>Not found</h1><p>No entry named %s.</p>", name)))
}
