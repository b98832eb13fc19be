// ABOUTME: Tests for config loading
// ABOUTME: Duration parsing, env expansion, validation, endpoint defaults

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: "http://localhost:9090"
  stream_path: "/api/stream"
  request_timeout: "30s"
stream:
  max_retries: 7
  jitter: 0.1
  base_delay: "500ms"
  max_delay: "10s"
session:
  db_path: "/tmp/trace-assist.db"
  retention: "720h"
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9090", cfg.Backend.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Backend.RequestTimeout)
	assert.Equal(t, 7, cfg.Stream.MaxRetries)
	assert.InDelta(t, 0.1, cfg.Stream.Jitter, 0.0001)
	assert.Equal(t, 500*time.Millisecond, cfg.Stream.BaseDelay)
	assert.Equal(t, 10*time.Second, cfg.Stream.MaxDelay)
	assert.Equal(t, 720*time.Hour, cfg.Session.Retention)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_BACKEND_URL", "http://backend.example:8080")

	path := writeConfig(t, `
backend:
  base_url: "${TEST_BACKEND_URL}"
session:
  db_path: "/tmp/state.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://backend.example:8080", cfg.Backend.BaseURL)
}

func TestLoadMissingBaseURL(t *testing.T) {
	path := writeConfig(t, `
session:
  db_path: "/tmp/state.db"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestLoadMissingDBPath(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: "http://localhost:9090"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db_path")
}

func TestLoadBadDuration(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: "http://localhost:9090"
stream:
  base_delay: "not-a-duration"
session:
  db_path: "/tmp/state.db"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_delay")
}

func TestLoadJitterOutOfRange(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: "http://localhost:9090"
stream:
  jitter: 1.5
session:
  db_path: "/tmp/state.db"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jitter")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEndpointURLs(t *testing.T) {
	cfg := &Config{}
	cfg.Backend.BaseURL = "http://localhost:9090"

	assert.Equal(t, "http://localhost:9090/v1/analysis/stream", cfg.StreamURL())
	assert.Equal(t, "http://localhost:9090/v1/analysis/resume", cfg.ResumeURL())
	assert.Equal(t, "http://localhost:9090/v1/analysis/intervention", cfg.ResolveURL())

	cfg.Backend.StreamPath = "/api/stream"
	assert.Equal(t, "http://localhost:9090/api/stream", cfg.StreamURL())
}
