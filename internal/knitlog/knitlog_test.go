package knitlog

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmou/knit/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestNewWritesJSONFileWhenLogDirSet(t *testing.T) {
	dir := t.TempDir()
	logger := New(config.Config{LogLevel: "info", LogFormat: "text", LogDir: dir, Quiet: true})
	logger.Info("hello", "k", "v")

	data, err := os.ReadFile(filepath.Join(dir, "knit.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestNewTextHandlerRespectsLevel(t *testing.T) {
	logger := New(config.Config{LogLevel: "error", LogFormat: "text", Quiet: true})
	logger.Debug("should be filtered")
	logger.Error("should pass")
}
