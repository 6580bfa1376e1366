package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCommand(t *testing.T) (*cobra.Command, *viper.Viper) {
	t.Helper()
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	v := viper.New()
	require.NoError(t, BindFlags(cmd, v))
	return cmd, v
}

func TestLoadAppliesBuiltinDefaults(t *testing.T) {
	cmd, v := newTestCommand(t)
	require.NoError(t, cmd.ParseFlags(nil))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "dir", cfg.StoreBackend)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Quiet)
}

func TestLoadMergesYAMLFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storeBackend: git\nlogLevel: debug\n"), 0o644))

	cmd, v := newTestCommand(t)
	v.SetConfigFile(path)
	require.NoError(t, cmd.ParseFlags(nil))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "git", cfg.StoreBackend)
	assert.Equal(t, "debug", cfg.LogLevel)
	// a field absent from the file keeps its built-in default.
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadFlagOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storeBackend: git\n"), 0o644))

	cmd, v := newTestCommand(t)
	v.SetConfigFile(path)
	require.NoError(t, cmd.ParseFlags([]string{"--store-backend=dir"}))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "dir", cfg.StoreBackend)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cmd, v := newTestCommand(t)
	v.SetConfigFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, cmd.ParseFlags(nil))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "dir", cfg.StoreBackend)
}
