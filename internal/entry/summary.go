package entry

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Summarize returns the text of the first non-empty paragraph of rendered
// HTML, truncated to limit runes with an ellipsis.
func Summarize(rendered string, limit int) string {
	z := html.NewTokenizer(strings.NewReader(rendered))

	var (
		b      strings.Builder
		inPara bool
	)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return truncate(strings.TrimSpace(b.String()), limit)
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) == "p" {
				inPara = true
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "p" && inPara {
				inPara = false
				if text := strings.TrimSpace(b.String()); text != "" {
					return truncate(text, limit)
				}
				b.Reset()
			}
		case html.TextToken:
			if inPara {
				b.Write(z.Text())
			}
		}
	}
}

func truncate(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
