package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ROOMKIT_CONFIG", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roomkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("quick_attempts: 4\nbackoff_base: 1s\n"), 0o600))
	t.Setenv("ROOMKIT_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.QuickAttempts)
	assert.Equal(t, time.Second, cfg.BackoffBase)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.FullAttempts)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("ROOMKIT_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	assert.Error(t, err)
}
