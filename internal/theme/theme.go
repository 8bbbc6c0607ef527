// Package theme loads Handlebars themes from disk and renders blog pages
// with them.
//
// A theme is loaded into an immutable Snapshot. The Registry publishes the
// active snapshot through an atomic pointer so reloads never disturb renders
// that are already running, and a failed reload leaves the previous snapshot
// in place.
package theme

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aymerick/raymond"

	scribeerrors "github.com/conneroisu/scribe/internal/errors"
)

// Template names every theme must provide.
const (
	TemplateHome          = "home"
	TemplateBlogEntry     = "blog_entry"
	TemplateEntryNotFound = "entry_not_found"
)

// HotReloadPartial is the partial name under which the live-reload client
// snippet is registered.
const HotReloadPartial = "hot_reload_script"

// DefaultExtension is the file extension of theme templates.
const DefaultExtension = ".handlebars"

//go:embed static/hot_reload.js
var hotReloadScript string

var requiredTemplates = []string{TemplateHome, TemplateBlogEntry, TemplateEntryNotFound}

// Snapshot is a fully parsed theme. It is never modified after Load returns.
type Snapshot struct {
	dir       string
	templates map[string]*raymond.Template
	partials  []string
	loadedAt  time.Time
}

// Dir returns the directory the snapshot was loaded from.
func (s *Snapshot) Dir() string { return s.dir }

// LoadedAt returns when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Partials returns the sorted partial names available to templates.
func (s *Snapshot) Partials() []string {
	out := make([]string, len(s.partials))
	copy(out, s.partials)
	return out
}

// Has reports whether the snapshot contains the named page template.
func (s *Snapshot) Has(name string) bool {
	_, ok := s.templates[name]
	return ok
}

// Load reads the page templates and partials from dir. Every file with the
// extension ext other than the page templates is registered as a partial
// named after its base name. The embedded hot-reload snippet is registered
// unless the theme ships its own.
func Load(dir, ext string) (*Snapshot, error) {
	if ext == "" {
		ext = DefaultExtension
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	pages := make(map[string]string, len(requiredTemplates))
	for _, name := range requiredTemplates {
		path := filepath.Join(dir, name+ext)
		source, err := os.ReadFile(path)
		if err != nil {
			return nil, scribeerrors.NewTemplateLoadError(scribeerrors.ErrCodeTemplateMissing, path, err)
		}
		pages[name] = string(source)
	}

	partials, err := loadPartials(dir, ext)
	if err != nil {
		return nil, err
	}
	if _, ok := partials[HotReloadPartial]; !ok {
		partials[HotReloadPartial] = hotReloadScript
	}

	snapshot := &Snapshot{
		dir:       dir,
		templates: make(map[string]*raymond.Template, len(pages)),
		loadedAt:  time.Now(),
	}
	for name := range partials {
		snapshot.partials = append(snapshot.partials, name)
	}
	sort.Strings(snapshot.partials)

	for name, source := range pages {
		tpl, err := compile(filepath.Join(dir, name+ext), source, partials)
		if err != nil {
			return nil, err
		}
		snapshot.templates[name] = tpl
	}

	return snapshot, nil
}

func loadPartials(dir, ext string) (map[string]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, scribeerrors.NewTemplateLoadError(scribeerrors.ErrCodeTemplateMissing, dir, err)
	}

	partials := make(map[string]string)
	for _, de := range dirEntries {
		if !de.Type().IsRegular() || filepath.Ext(de.Name()) != ext {
			continue
		}
		name := strings.TrimSuffix(de.Name(), ext)
		if isPage(name) {
			continue
		}

		path := filepath.Join(dir, de.Name())
		source, err := os.ReadFile(path)
		if err != nil {
			return nil, scribeerrors.NewTemplateLoadError(scribeerrors.ErrCodeTemplateMissing, path, err)
		}
		// partials are parsed lazily at render time; parse now so a broken
		// partial fails the load instead of the page
		if _, err := raymond.Parse(string(source)); err != nil {
			return nil, scribeerrors.NewTemplateLoadError(scribeerrors.ErrCodeTemplateInvalid, path, err)
		}
		partials[name] = string(source)
	}
	return partials, nil
}

func compile(path, source string, partials map[string]string) (tpl *raymond.Template, err error) {
	// raymond reports registration conflicts by panicking
	defer func() {
		if r := recover(); r != nil {
			tpl = nil
			err = scribeerrors.NewTemplateLoadError(scribeerrors.ErrCodeTemplateInvalid, path, fmt.Errorf("%v", r))
		}
	}()

	tpl, err = raymond.Parse(source)
	if err != nil {
		return nil, scribeerrors.NewTemplateLoadError(scribeerrors.ErrCodeTemplateInvalid, path, err)
	}
	tpl.RegisterPartials(partials)
	tpl.RegisterHelpers(helpers)
	return tpl, nil
}

func isPage(name string) bool {
	for _, page := range requiredTemplates {
		if name == page {
			return true
		}
	}
	return false
}

// Render executes the named page template with ctx.
func (s *Snapshot) Render(name string, ctx map[string]interface{}) (out string, err error) {
	tpl, ok := s.templates[name]
	if !ok {
		return "", scribeerrors.NewTemplateRenderError(name, fmt.Errorf("template not loaded"))
	}

	defer func() {
		if r := recover(); r != nil {
			out = ""
			err = scribeerrors.NewTemplateRenderError(name, fmt.Errorf("panic: %v", r))
		}
	}()

	out, err = tpl.Exec(ctx)
	if err != nil {
		return "", scribeerrors.NewTemplateRenderError(name, err)
	}
	return out, nil
}
