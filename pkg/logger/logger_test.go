package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestUnstructuredLogsCheck tests the unstructuredLogs function
func TestUnstructuredLogsCheck(t *testing.T) { //nolint:paralleltest // mutates env
	tests := []struct {
		name     string
		envValue string
		expected bool
	}{
		{"Default Case", "", true},
		{"Explicitly True", "true", true},
		{"Explicitly False", "false", false},
		{"Invalid Value", "not-a-bool", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("UNSTRUCTURED_LOGS", tt.envValue)
			if got := unstructuredLogs(); got != tt.expected {
				t.Errorf("unstructuredLogs() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// setSingletonForTest temporarily replaces the singleton logger and restores
// the original when the test completes.
func setSingletonForTest(t *testing.T, l *slog.Logger) {
	t.Helper()
	prev := singleton.Load()
	singleton.Store(l)
	t.Cleanup(func() { singleton.Store(prev) })
}

// TestLogLevels tests that each log function writes to the underlying handler.
func TestLogLevels(t *testing.T) { //nolint:paralleltest // mutates singleton
	tests := []struct {
		name     string
		logFn    func()
		contains string
	}{
		{"Debug", func() { Debug("debug msg") }, "debug msg"},
		{"Debugf", func() { Debugf("debug %s", "formatted") }, "debug formatted"},
		{"Debugw", func() { Debugw("debug kv", "key", "val") }, "debug kv"},
		{"Info", func() { Info("info msg") }, "info msg"},
		{"Infof", func() { Infof("info %s", "formatted") }, "info formatted"},
		{"Infow", func() { Infow("info kv", "key", "val") }, "info kv"},
		{"Warn", func() { Warn("warn msg") }, "warn msg"},
		{"Warnf", func() { Warnf("warn %s", "formatted") }, "warn formatted"},
		{"Warnw", func() { Warnw("warn kv", "key", "val") }, "warn kv"},
		{"Error", func() { Error("error msg") }, "error msg"},
		{"Errorf", func() { Errorf("error %s", "formatted") }, "error formatted"},
		{"Errorw", func() { Errorw("error kv", "key", "val") }, "error kv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			setSingletonForTest(t, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			})))

			tt.logFn()
			assert.Contains(t, buf.String(), tt.contains)
		})
	}
}

func TestLogw_KeyValues(t *testing.T) { //nolint:paralleltest // mutates singleton
	var buf bytes.Buffer
	setSingletonForTest(t, slog.New(slog.NewJSONHandler(&buf, nil)))

	Infow("structured", "class", "session", "count", 3)

	out := buf.String()
	assert.Contains(t, out, `"class":"session"`)
	assert.Contains(t, out, `"count":3`)
}

func TestGet(t *testing.T) { //nolint:paralleltest // mutates singleton
	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	setSingletonForTest(t, l)
	require.Same(t, l, Get())
}

func TestInitialize(t *testing.T) { //nolint:paralleltest // mutates singleton and env
	prev := singleton.Load()
	t.Cleanup(func() { singleton.Store(prev) })

	tests := []struct {
		name         string
		debug        bool
		unstructured string
		wantDebugLog bool
		wantJSON     bool
	}{
		{"default level text", false, "true", false, false},
		{"debug level text", true, "true", true, false},
		{"default level json", false, "false", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("UNSTRUCTURED_LOGS", tt.unstructured)
			viper.Set("debug", tt.debug)
			t.Cleanup(func() { viper.Set("debug", false) })

			Initialize()
			l := Get()
			require.NotNil(t, l)
			assert.Equal(t, tt.wantDebugLog, l.Enabled(t.Context(), slog.LevelDebug))
		})
	}
}

func TestNewLogger_Format(t *testing.T) {
	t.Parallel()

	_, isText := newLogger(slog.LevelInfo, true).Handler().(*slog.TextHandler)
	assert.True(t, isText, "unstructured logger should use a text handler")

	_, isJSON := newLogger(slog.LevelInfo, false).Handler().(*slog.JSONHandler)
	assert.True(t, isJSON, "structured logger should use a JSON handler")
}
