package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level LogLevel, format string) (*ScribeLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return NewLogger(&LoggerConfig{Level: level, Format: format, Output: buf}), buf
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected LogLevel
		wantErr  bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			level, err := ParseLevel(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, level)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(LevelWarn, "text")
	ctx := context.Background()

	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	logger.Warn(ctx, nil, "warn message")
	logger.Error(ctx, errors.New("boom"), "error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
	assert.Contains(t, out, "error=boom")
}

func TestJSONFieldsAndComponent(t *testing.T) {
	logger, buf := newBufferLogger(LevelDebug, "json")

	logger.WithComponent("store").With("max_recent", 10).Info(context.Background(), "upserted", "name", "hello.md")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "upserted", record["msg"])
	assert.Equal(t, "store", record["component"])
	assert.Equal(t, "hello.md", record["name"])
	assert.EqualValues(t, 10, record["max_recent"])
}

func TestWithDoesNotMutateParent(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo, "text")
	ctx := context.Background()

	_ = logger.With("child", true)
	logger.Info(ctx, "parent")

	assert.NotContains(t, buf.String(), "child=true")
}

func TestOddFieldsAreDropped(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo, "text")

	logger.Info(context.Background(), "odd", "key", "value", "dangling")

	line := buf.String()
	assert.Contains(t, line, "key=value")
	assert.NotContains(t, line, "dangling")
}

func TestPerfLogger(t *testing.T) {
	logger, buf := newBufferLogger(LevelDebug, "text")
	ctx := context.Background()

	StartOperation(logger, "parse").End(ctx, "path", "a.md")
	StartOperation(logger, "parse").EndWithError(ctx, errors.New("bad yaml"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Operation completed")
	assert.Contains(t, lines[0], "operation=parse")
	assert.Contains(t, lines[1], "Operation failed")
	assert.Contains(t, lines[1], "bad yaml")
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	assert.NotPanics(t, func() {
		logger.Error(context.Background(), errors.New("x"), "dropped")
	})
}
