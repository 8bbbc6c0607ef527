// Package errors defines the structured error taxonomy used across scribe.
//
// Every failure that crosses a package boundary is a *ScribeError carrying an
// ErrorType. Callers classify failures with IsType or errors.As rather than
// matching on message text.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeIO             ErrorType = "io"
	ErrorTypeFrontMatter    ErrorType = "front_matter"
	ErrorTypeSchema         ErrorType = "schema"
	ErrorTypeMarkdown       ErrorType = "markdown"
	ErrorTypeTemplateLoad   ErrorType = "template_load"
	ErrorTypeTemplateRender ErrorType = "template_render"
	ErrorTypeWatcher        ErrorType = "watcher"
	ErrorTypeBusLagged      ErrorType = "bus_lagged"
	ErrorTypeConfig         ErrorType = "config"
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeBusy           ErrorType = "busy"
)

// Common error codes.
const (
	ErrCodeFileUnreadable   = "ERR_FILE_UNREADABLE"
	ErrCodeFrontMatter      = "ERR_FRONT_MATTER"
	ErrCodeMissingField     = "ERR_MISSING_FIELD"
	ErrCodeInvalidField     = "ERR_INVALID_FIELD"
	ErrCodeMarkdown         = "ERR_MARKDOWN"
	ErrCodeTemplateMissing  = "ERR_TEMPLATE_MISSING"
	ErrCodeTemplateInvalid  = "ERR_TEMPLATE_INVALID"
	ErrCodeTemplateRender   = "ERR_TEMPLATE_RENDER"
	ErrCodeWatcherBackend   = "ERR_WATCHER_BACKEND"
	ErrCodeSubscriberLagged = "ERR_SUBSCRIBER_LAGGED"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeInvalidPath      = "ERR_INVALID_PATH"
	ErrCodeStoreBusy        = "ERR_STORE_BUSY"
)

// ScribeError is a structured error type with context.
type ScribeError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Path    string
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *ScribeError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Path != "" {
		parts = append(parts, e.Path)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *ScribeError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *ScribeError) Is(target error) bool {
	var t *ScribeError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *ScribeError) WithContext(key string, value interface{}) *ScribeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath records the file the error refers to.
func (e *ScribeError) WithPath(path string) *ScribeError {
	e.Path = path

	return e
}

func newError(t ErrorType, code, message string, cause error) *ScribeError {
	return &ScribeError{
		Type:    t,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewIOError creates an I/O error.
func NewIOError(path string, cause error) *ScribeError {
	return newError(ErrorTypeIO, ErrCodeFileUnreadable, "file unreadable", cause).WithPath(path)
}

// NewFrontMatterError creates an error for a missing or malformed YAML block.
func NewFrontMatterError(path string, cause error) *ScribeError {
	return newError(ErrorTypeFrontMatter, ErrCodeFrontMatter, "missing or invalid front-matter", cause).WithPath(path)
}

// NewSchemaError creates an error for a front-matter field that is absent or
// has the wrong type.
func NewSchemaError(path, field, message string) *ScribeError {
	code := ErrCodeInvalidField
	if message == "" {
		code = ErrCodeMissingField
		message = "required field missing"
	}

	return newError(ErrorTypeSchema, code, fmt.Sprintf("%s: %s", field, message), nil).
		WithPath(path).
		WithContext("field", field)
}

// NewMarkdownError creates a Markdown conversion error.
func NewMarkdownError(path string, cause error) *ScribeError {
	return newError(ErrorTypeMarkdown, ErrCodeMarkdown, "markdown conversion failed", cause).WithPath(path)
}

// NewTemplateLoadError creates a theme load error.
func NewTemplateLoadError(code, path string, cause error) *ScribeError {
	return newError(ErrorTypeTemplateLoad, code, "theme template could not be loaded", cause).WithPath(path)
}

// NewTemplateRenderError creates a render-time template error.
func NewTemplateRenderError(template string, cause error) *ScribeError {
	return newError(ErrorTypeTemplateRender, ErrCodeTemplateRender, "rendering "+template+" failed", cause).
		WithContext("template", template)
}

// NewWatcherError wraps an error reported by the filesystem watcher backend.
func NewWatcherError(dir string, cause error) *ScribeError {
	return newError(ErrorTypeWatcher, ErrCodeWatcherBackend, "watcher backend error", cause).WithPath(dir)
}

// NewLaggedError reports that a subscriber missed events.
func NewLaggedError(missed int) *ScribeError {
	return newError(ErrorTypeBusLagged, ErrCodeSubscriberLagged, fmt.Sprintf("subscriber lagged by %d events", missed), nil).
		WithContext("missed", missed)
}

// NewConfigError creates a configuration error.
func NewConfigError(message string, cause error) *ScribeError {
	return newError(ErrorTypeConfig, ErrCodeConfigInvalid, message, cause)
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *ScribeError {
	return newError(ErrorTypeValidation, code, message, nil)
}

// ErrInvalidPath creates a path validation error.
func ErrInvalidPath(path string) *ScribeError {
	return NewValidationError(ErrCodeInvalidPath, "invalid path: "+path)
}

// ErrStoreBusy is returned when the entry store could not be locked in time.
var ErrStoreBusy = newError(ErrorTypeBusy, ErrCodeStoreBusy, "entry store busy", nil)

// Wrap wraps err in a ScribeError of the given type. When err already is a
// ScribeError its path and context carry over to the wrapper.
func Wrap(err error, errType ErrorType, code, message string) *ScribeError {
	if err == nil {
		return nil
	}

	wrapped := newError(errType, code, message, err)

	var se *ScribeError
	if errors.As(err, &se) {
		wrapped.Path = se.Path
		for k, v := range se.Context {
			wrapped.WithContext(k, v)
		}
	}

	return wrapped
}

// IsType reports whether err is a *ScribeError of the given type.
func IsType(err error, t ErrorType) bool {
	var se *ScribeError
	if errors.As(err, &se) {
		return se.Type == t
	}

	return false
}

// IsParseError reports whether err came from ingesting a source file.
func IsParseError(err error) bool {
	return IsType(err, ErrorTypeFrontMatter) ||
		IsType(err, ErrorTypeSchema) ||
		IsType(err, ErrorTypeMarkdown)
}

// Logger is the subset of logging.Logger the handler needs.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// ErrorHandler applies the logging policy for errors that are dropped rather
// than returned.
type ErrorHandler struct {
	logger Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err at a level chosen by its type.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var se *ScribeError
	if !errors.As(err, &se) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch se.Type {
	case ErrorTypeIO, ErrorTypeFrontMatter, ErrorTypeSchema, ErrorTypeMarkdown:
		h.logger.Warn(ctx, err, "Entry skipped", "type", se.Type, "code", se.Code, "path", se.Path)
	case ErrorTypeWatcher, ErrorTypeBusLagged, ErrorTypeBusy:
		h.logger.Warn(ctx, err, "Recoverable error", "type", se.Type, "code", se.Code)
	default:
		h.logger.Error(ctx, err, "Error occurred", "type", se.Type, "code", se.Code, "path", se.Path)
	}
}
