package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(values map[string]interface{}) *viper.Viper {
	v := viper.New()
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(newViper(map[string]interface{}{
		"theme.path": "themes/plain",
	}))
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, 0, cfg.Server.Port)
	assert.Equal(t, 200, cfg.Server.MissingStatus)
	assert.Equal(t, DefaultHeartbeat, cfg.Server.Heartbeat)
	assert.Equal(t, "blog", cfg.Content.BasePath)
	assert.Equal(t, 10, cfg.Content.MaxRecent)
	assert.Equal(t, DefaultQueueSize, cfg.Content.QueueSize)
	assert.Equal(t, DefaultDebounce, cfg.Content.Debounce)
	assert.Equal(t, DefaultWriteTimeout, cfg.Content.WriteTimeout)
	assert.Equal(t, ".handlebars", cfg.Theme.Extension)
	assert.Equal(t, []string{"*.handlebars", "*.css"}, cfg.Theme.Patterns)
	assert.Equal(t, "static", cfg.Files.Path)
	assert.Equal(t, 500, cfg.Events.Backlog)
	assert.Equal(t, "Blog", cfg.Blog.Title)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		values      map[string]interface{}
		expectError bool
		check       func(t *testing.T, cfg *Config)
	}{
		{
			name: "overrides are honoured",
			values: map[string]interface{}{
				"theme.path":             "theme",
				"server.host":            "0.0.0.0",
				"server.port":            8080,
				"server.missing_status":  404,
				"content.base_path":      "posts/travel-notes",
				"content.max_recent":     2,
				"content.debounce":       "250ms",
				"theme.extension":        "hbs",
				"events.backlog":         16,
				"blog.description":       "notes",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
				assert.Equal(t, 404, cfg.Server.MissingStatus)
				assert.Equal(t, 2, cfg.Content.MaxRecent)
				assert.Equal(t, 250*time.Millisecond, cfg.Content.Debounce)
				assert.Equal(t, ".hbs", cfg.Theme.Extension)
				assert.Equal(t, []string{"*.hbs", "*.css"}, cfg.Theme.Patterns)
				assert.Equal(t, 16, cfg.Events.Backlog)
				assert.Equal(t, "Travel Notes", cfg.Blog.Title)
				assert.Equal(t, "notes", cfg.Blog.Description)
			},
		},
		{
			name:        "missing theme path",
			values:      map[string]interface{}{},
			expectError: true,
		},
		{
			name: "invalid port type",
			values: map[string]interface{}{
				"theme.path":  "theme",
				"server.port": "invalid_port",
			},
			expectError: true,
		},
		{
			name: "port out of range",
			values: map[string]interface{}{
				"theme.path":  "theme",
				"server.port": 70000,
			},
			expectError: true,
		},
		{
			name: "unsupported missing status",
			values: map[string]interface{}{
				"theme.path":            "theme",
				"server.missing_status": 500,
			},
			expectError: true,
		},
		{
			name: "negative max recent",
			values: map[string]interface{}{
				"theme.path":         "theme",
				"content.max_recent": -1,
			},
			expectError: true,
		},
		{
			name: "dangerous base path",
			values: map[string]interface{}{
				"theme.path":        "theme",
				"content.base_path": "blog; rm -rf /",
			},
			expectError: true,
		},
		{
			name: "malformed theme pattern",
			values: map[string]interface{}{
				"theme.path":     "theme",
				"theme.patterns": []string{"*.{css"},
			},
			expectError: true,
		},
		{
			name: "unknown log format",
			values: map[string]interface{}{
				"theme.path": "theme",
				"log.format": "xml",
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFrom(newViper(tt.values))
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".scribe.yml")
	content := `
server:
  port: 4000
content:
  base_path: content
  max_recent: 5
theme:
  path: themes/default
  extra_paths:
    - static/css
blog:
  title: Field Notes
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))

	v := viper.New()
	v.SetConfigFile(file)
	require.NoError(t, v.ReadInConfig())

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "content", cfg.Content.BasePath)
	assert.Equal(t, 5, cfg.Content.MaxRecent)
	assert.Equal(t, []string{"static/css"}, cfg.Theme.ExtraPaths)
	assert.Equal(t, "Field Notes", cfg.Blog.Title)
}

func TestEnvVar(t *testing.T) {
	assert.Equal(t, "SCRIBE_CONTENT_MAX_RECENT", EnvVar("content.max_recent"))
	assert.Equal(t, "SCRIBE_THEME_PATH", EnvVar("theme.path"))
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SCRIBE_THEME_PATH", "themes/env")
	t.Setenv("SCRIBE_CONTENT_MAX_RECENT", "2")
	t.Setenv("SCRIBE_CONTENT_DEBOUNCE", "300ms")
	t.Setenv("SCRIBE_CONTENT_GFM", "true")
	t.Setenv("SCRIBE_EVENTS_BACKLOG", "7")
	t.Setenv("SCRIBE_SERVER_MISSING_STATUS", "404")
	t.Setenv("SCRIBE_BLOG_TITLE", "From Env")
	t.Setenv("SCRIBE_THEME_PATTERNS", "*.hbs,*.css")

	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "themes/env", cfg.Theme.Path)
	assert.Equal(t, 2, cfg.Content.MaxRecent)
	assert.Equal(t, 300*time.Millisecond, cfg.Content.Debounce)
	assert.True(t, cfg.Content.GFM)
	assert.Equal(t, 7, cfg.Events.Backlog)
	assert.Equal(t, 404, cfg.Server.MissingStatus)
	assert.Equal(t, "From Env", cfg.Blog.Title)
	assert.Equal(t, []string{"*.hbs", "*.css"}, cfg.Theme.Patterns)
}

func TestEnvironmentPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".scribe.yml")
	require.NoError(t, os.WriteFile(file, []byte("theme:\n  path: themes/file\ncontent:\n  max_recent: 5\n"), 0644))
	t.Setenv("SCRIBE_CONTENT_MAX_RECENT", "3")
	t.Setenv("SCRIBE_THEME_PATH", "themes/env")

	v := viper.New()
	v.SetConfigFile(file)
	require.NoError(t, v.ReadInConfig())
	// stands in for a bound flag
	v.Set("theme.path", "themes/flag")

	cfg, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Content.MaxRecent, "env beats the config file")
	assert.Equal(t, "themes/flag", cfg.Theme.Path, "flags beat env")
}

// TestKeysCoverConfig keeps the env-bound key list in step with Config.
func TestKeysCoverConfig(t *testing.T) {
	var walk func(prefix string, typ reflect.Type)
	var leaves []string
	walk = func(prefix string, typ reflect.Type) {
		for i := 0; i < typ.NumField(); i++ {
			field := typ.Field(i)
			name := prefix + field.Tag.Get("mapstructure")
			if field.Type.Kind() == reflect.Struct {
				walk(name+".", field.Type)
				continue
			}
			leaves = append(leaves, name)
		}
	}
	walk("", reflect.TypeOf(Config{}))

	assert.ElementsMatch(t, leaves, keys)
}

func TestDefaultTitle(t *testing.T) {
	testCases := map[string]string{
		"blog":             "Blog",
		"./my-blog/":       "My Blog",
		"/srv/field_notes": "Field Notes",
		".":                "Blog",
	}

	for input, expected := range testCases {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, expected, DefaultTitle(input))
		})
	}
}
