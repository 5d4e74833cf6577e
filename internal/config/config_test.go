package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_MAX_OPEN_CONNS", "20")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("ANALYSIS_POLL_INTERVAL", "500ms")

	cfg := Load()

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.Equal(t, 500*time.Millisecond, cfg.Analysis.PollInterval)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", "")

	cfg := Load()

	assert.Equal(t, int64(5*1024*1024), cfg.Upload.MaxBytes)
	assert.Equal(t, "application/pdf", cfg.Upload.AcceptedMIME)
	assert.Equal(t, 2*time.Second, cfg.Analysis.PollInterval)
	assert.Equal(t, 5, cfg.Analyzer.MaxTopics)
	assert.Contains(t, cfg.Analyzer.IncludeDomains, "coursera.org")
}

func TestLoadYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
port: "9090"
database:
  host: yaml-host
  name: yaml-db
analysis:
  pollTimeout: 3m
analyzer:
  includeDomains: ["example.org"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("APP_CONFIG_FILE", path)
	t.Setenv("DB_NAME", "env-db")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "yaml-host", cfg.Database.Host)
	assert.Equal(t, "env-db", cfg.Database.Name, "environment wins over the file")
	assert.Equal(t, 3*time.Minute, cfg.Analysis.PollTimeout)
	assert.Equal(t, []string{"example.org"}, cfg.Analyzer.IncludeDomains)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("port: [unterminated"), 0o600))
	_, err = LoadFile(bad)
	assert.Error(t, err)
}

func TestGetEnv(t *testing.T) {
	key := "TEST_ENV_VAR"
	t.Setenv(key, "value")

	assert.Equal(t, "value", getEnv(key, "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT", "default"))
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	t.Setenv(key, "true")
	assert.True(t, getEnvBool(key, false))

	t.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	t.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_INT_VAR"

	t.Setenv(key, "123")
	assert.Equal(t, 123, getEnvInt(key, 0))

	t.Setenv(key, "invalid")
	assert.Equal(t, 10, getEnvInt(key, 10))
}

func TestGetEnvDurationAndList(t *testing.T) {
	t.Setenv("TEST_DUR", "90s")
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DUR", time.Second))

	t.Setenv("TEST_DUR", "-5s")
	assert.Equal(t, time.Second, getEnvDuration("TEST_DUR", time.Second))

	t.Setenv("TEST_LIST", " a, ,b ")
	assert.Equal(t, []string{"a", "b"}, getEnvList("TEST_LIST", nil))

	t.Setenv("TEST_LIST", " , ")
	assert.Equal(t, []string{"x"}, getEnvList("TEST_LIST", []string{"x"}))
}
