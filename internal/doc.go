// Package internal contains the core implementation packages for scribe.
//
// These packages follow Go's internal package convention and are not
// importable by external modules.
//
// # Package Organization
//
//   - config: Configuration loading, defaults and validation via viper
//   - entry: Markdown parsing with front matter and summary extraction
//   - store: The in-memory entry cache with a bounded recent list
//   - events: The update event bus with per-subscriber backlogs
//   - watcher: File system monitoring with debouncing
//   - dispatch: Maps file changes onto store updates and reload events
//   - theme: Handlebars theme loading, hot swapping and rendering
//   - server: HTTP routes, SSE and WebSocket streams, and app wiring
//   - errors: Typed errors shared by the packages above
//   - logging: Structured logging on top of log/slog
//   - version: Build metadata
//
// # Data Flow
//
// The content watcher feeds the dispatcher, which parses changed files
// and updates the store. Successful updates publish a reload event on the
// bus. The theme watcher reloads the theme registry, which publishes on
// the same bus. The server reads the store and the current theme snapshot
// on every request and forwards bus events to connected browsers.
package internal
