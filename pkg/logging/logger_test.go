package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestInitLoggerJSONAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	base := InitLogger(Options{Level: "info", Format: "json", Output: &buf})
	NewComponentLogger(base, "guard").Info("guard_evaluated", "action", "proceed")

	require.Contains(t, buf.String(), `"component":"guard"`)
	require.Contains(t, buf.String(), `"msg":"guard_evaluated"`)
}

func TestInitLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := InitLogger(Options{Level: "warn", Format: "text", Output: &buf})
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
