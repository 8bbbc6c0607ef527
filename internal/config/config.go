// Package config provides configuration management for scribe using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration covers the HTTP listener, the content directory that is
// ingested and watched, the Handlebars theme, the static file directory, the
// reload event bus, and the blog_info block passed to every template.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/viper"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Defaults applied when a value is not configured.
const (
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 3000
	DefaultBasePath      = "blog"
	DefaultFilesPath     = "static"
	DefaultMaxRecent     = 10
	DefaultQueueSize     = 256
	DefaultDebounce      = 100 * time.Millisecond
	DefaultWriteTimeout  = 2 * time.Second
	DefaultBacklog       = 500
	DefaultHeartbeat     = 15 * time.Second
	DefaultThemeExt      = ".handlebars"
	DefaultMissingStatus = 200
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Content ContentConfig `mapstructure:"content"`
	Theme   ThemeConfig   `mapstructure:"theme"`
	Files   FilesConfig   `mapstructure:"files"`
	Events  EventsConfig  `mapstructure:"events"`
	Blog    BlogConfig    `mapstructure:"blog"`
	Log     LogConfig     `mapstructure:"log"`
}

type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	MissingStatus int           `mapstructure:"missing_status"`
	Heartbeat     time.Duration `mapstructure:"heartbeat"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type ContentConfig struct {
	BasePath     string        `mapstructure:"base_path"`
	MaxRecent    int           `mapstructure:"max_recent"`
	QueueSize    int           `mapstructure:"queue_size"`
	Debounce     time.Duration `mapstructure:"debounce"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ParseTimeout time.Duration `mapstructure:"parse_timeout"`
	GFM          bool          `mapstructure:"gfm"`
	UnsafeHTML   bool          `mapstructure:"unsafe_html"`
}

type ThemeConfig struct {
	Path       string   `mapstructure:"path"`
	Extension  string   `mapstructure:"extension"`
	ExtraPaths []string `mapstructure:"extra_paths"`
	Patterns   []string `mapstructure:"patterns"`
}

type FilesConfig struct {
	Path string `mapstructure:"path"`
}

type EventsConfig struct {
	Backlog int `mapstructure:"backlog"`
}

// BlogConfig is exposed to templates as blog_info.
type BlogConfig struct {
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads the configuration from the global viper instance, applies
// defaults and validates the result.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// EnvPrefix prefixes the environment variable of every configuration key.
const EnvPrefix = "SCRIBE"

// keys lists every configuration key. Viper's Unmarshal only consults the
// environment for keys it already knows, so each one is bound explicitly.
var keys = []string{
	"server.host",
	"server.port",
	"server.missing_status",
	"server.heartbeat",
	"content.base_path",
	"content.max_recent",
	"content.queue_size",
	"content.debounce",
	"content.write_timeout",
	"content.parse_timeout",
	"content.gfm",
	"content.unsafe_html",
	"theme.path",
	"theme.extension",
	"theme.extra_paths",
	"theme.patterns",
	"files.path",
	"events.backlog",
	"blog.title",
	"blog.description",
	"log.level",
	"log.format",
}

// EnvVar returns the environment variable that overrides key,
// e.g. content.max_recent becomes SCRIBE_CONTENT_MAX_RECENT.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func bindEnv(v *viper.Viper) error {
	for _, key := range keys {
		if err := v.BindEnv(key, EnvVar(key)); err != nil {
			return fmt.Errorf("binding %s: %w", EnvVar(key), err)
		}
	}
	return nil
}

// LoadFrom is Load against an explicit viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}
	if config.Server.MissingStatus == 0 {
		config.Server.MissingStatus = DefaultMissingStatus
	}
	if config.Server.Heartbeat == 0 {
		config.Server.Heartbeat = DefaultHeartbeat
	}

	if config.Content.BasePath == "" {
		config.Content.BasePath = DefaultBasePath
	}
	if config.Content.MaxRecent == 0 {
		config.Content.MaxRecent = DefaultMaxRecent
	}
	if config.Content.QueueSize == 0 {
		config.Content.QueueSize = DefaultQueueSize
	}
	if config.Content.Debounce == 0 {
		config.Content.Debounce = DefaultDebounce
	}
	if config.Content.WriteTimeout == 0 {
		config.Content.WriteTimeout = DefaultWriteTimeout
	}

	if config.Theme.Extension == "" {
		config.Theme.Extension = DefaultThemeExt
	}
	if !strings.HasPrefix(config.Theme.Extension, ".") {
		config.Theme.Extension = "." + config.Theme.Extension
	}
	if len(config.Theme.Patterns) == 0 {
		config.Theme.Patterns = []string{"*" + config.Theme.Extension, "*.css"}
	}

	if config.Files.Path == "" {
		config.Files.Path = DefaultFilesPath
	}
	if config.Events.Backlog == 0 {
		config.Events.Backlog = DefaultBacklog
	}

	if config.Blog.Title == "" {
		config.Blog.Title = DefaultTitle(config.Content.BasePath)
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

// DefaultTitle derives a human title from a content directory name,
// e.g. "my-travel_notes" becomes "My Travel Notes".
func DefaultTitle(basePath string) string {
	name := filepath.Base(filepath.Clean(basePath))
	if name == "." || name == string(filepath.Separator) {
		return "Blog"
	}
	name = strings.NewReplacer("-", " ", "_", " ").Replace(name)

	return cases.Title(language.English).String(name)
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := validateContentConfig(&config.Content); err != nil {
		return fmt.Errorf("content config: %w", err)
	}
	if err := validateThemeConfig(&config.Theme); err != nil {
		return fmt.Errorf("theme config: %w", err)
	}
	if err := validatePath(config.Files.Path); err != nil {
		return fmt.Errorf("files config: %w", err)
	}
	if config.Events.Backlog < 1 {
		return fmt.Errorf("events config: backlog must be at least 1, got %d", config.Events.Backlog)
	}
	if config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("log config: format must be text or json, got %q", config.Log.Format)
	}

	return nil
}

func validateServerConfig(config *ServerConfig) error {
	// 0 lets the OS pick a port, which tests rely on
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if strings.ContainsAny(config.Host, dangerousChars) {
		return fmt.Errorf("host contains dangerous characters: %q", config.Host)
	}

	if config.MissingStatus != 200 && config.MissingStatus != 404 {
		return fmt.Errorf("missing_status must be 200 or 404, got %d", config.MissingStatus)
	}
	if config.Heartbeat < 0 {
		return fmt.Errorf("heartbeat must not be negative")
	}

	return nil
}

func validateContentConfig(config *ContentConfig) error {
	if err := validatePath(config.BasePath); err != nil {
		return fmt.Errorf("base_path: %w", err)
	}
	if config.MaxRecent < 1 {
		return fmt.Errorf("max_recent must be at least 1, got %d", config.MaxRecent)
	}
	if config.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", config.QueueSize)
	}
	if config.Debounce < 0 || config.WriteTimeout < 0 || config.ParseTimeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}

	return nil
}

func validateThemeConfig(config *ThemeConfig) error {
	if config.Path == "" {
		return fmt.Errorf("path is required")
	}
	if err := validatePath(config.Path); err != nil {
		return fmt.Errorf("path: %w", err)
	}
	for _, p := range config.ExtraPaths {
		if err := validatePath(p); err != nil {
			return fmt.Errorf("extra path: %w", err)
		}
	}
	for _, p := range config.Patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid pattern %q", p)
		}
	}

	return nil
}

const dangerousChars = ";&|$`<>\"'\x00\n\r"

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	if strings.ContainsAny(path, dangerousChars) {
		return fmt.Errorf("path contains dangerous characters: %q", path)
	}

	return nil
}
