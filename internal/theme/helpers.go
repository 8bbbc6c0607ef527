package theme

import (
	"time"

	"github.com/aymerick/raymond"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var helpers = map[string]interface{}{
	"titlecase": titlecase,
	"date":      formatDate,
}

func titlecase(value interface{}) string {
	return cases.Title(language.English).String(raymond.Str(value))
}

// formatDate reformats an RFC 3339 timestamp with a Go layout, e.g.
// {{date blog_entry.metadata.publish_date "Jan 2, 2006"}}. Values that do not
// parse are returned unchanged.
func formatDate(value interface{}, layout string) raymond.SafeString {
	s := raymond.Str(value)
	t, err := time.Parse(time.RFC3339, s)
	if err != nil || layout == "" {
		return raymond.SafeString(raymond.Escape(s))
	}
	return raymond.SafeString(raymond.Escape(t.Format(layout)))
}
