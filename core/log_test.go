package core

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerDefaultsToSilent(t *testing.T) {
	SetLogger(nil)
	assert.False(t, Logger().Enabled(t.Context(), 12))
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(LogConfig{Level: "warn", Format: "text"}, &buf)
	require.NoError(t, err)

	SetLogger(l)
	t.Cleanup(func() { SetLogger(nil) })

	Logger().Info("hidden")
	Logger().Warn("frame loop stop while stopped")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), `msg="frame loop stop while stopped"`)
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(LogConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)

	l.Debug("swapchain created", "images", 3)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "DEBUG", rec["level"])
	assert.Equal(t, "swapchain created", rec["msg"])
	assert.Equal(t, float64(3), rec["images"])
}

func TestNewLoggerErrors(t *testing.T) {
	_, err := NewLogger(LogConfig{Level: "loud"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "invalid log level")

	_, err = NewLogger(LogConfig{Level: "info", Format: "xml"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unknown log format")
}
