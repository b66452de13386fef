package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fileshare.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultSharedDir, cfg.Server.SharedDir)
	assert.Equal(t, DefaultMaxSessions, cfg.Server.MaxSessions)
	assert.Equal(t, 0, cfg.Server.ReadTimeoutSeconds)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	assert.False(t, cfg.Logging.JSON)
}

func TestLoadEmptyPathYieldsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
  sharedDir: "/srv/share"
  maxSessions: 32
  readTimeoutSeconds: 30
logging:
  level: debug
  json: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "/srv/share", cfg.Server.SharedDir)
	assert.Equal(t, 32, cfg.Server.MaxSessions)
	assert.Equal(t, 30, cfg.Server.ReadTimeoutSeconds)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
}

func TestLoadAppliesDefaultsToUnsetFields(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":7000"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, DefaultSharedDir, cfg.Server.SharedDir)
	assert.Equal(t, DefaultMaxSessions, cfg.Server.MaxSessions)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	t.Run("negative_max_sessions", func(t *testing.T) {
		path := writeConfig(t, "server:\n  maxSessions: -2\n")
		_, err := Load(path)
		assert.ErrorContains(t, err, "maxSessions")
	})

	t.Run("negative_read_timeout", func(t *testing.T) {
		path := writeConfig(t, "server:\n  readTimeoutSeconds: -1\n")
		_, err := Load(path)
		assert.ErrorContains(t, err, "readTimeoutSeconds")
	})

	t.Run("unknown_log_level", func(t *testing.T) {
		path := writeConfig(t, "logging:\n  level: shouty\n")
		_, err := Load(path)
		assert.ErrorContains(t, err, "log level")
	})
}
