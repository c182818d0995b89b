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
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
listen: ":9090"
origin: https://study.example.com/
cache:
  name: sg-study-site
  version: v1.1.0
  provider: leveldb
  path: ./data/cache
precache:
  core:
    - /
    - /index.html
    - /offline.html
    - /manifest.json
  optional:
    - /pages/algebra.html
routes:
  networkFirst:
    - /api/
    - /auth/
offline: /offline.html
warmupDelay: 10s
sync:
  endpoints:
    study-data-sync: /api/sync/study-data
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	// trailing slash is stripped so paths can be appended verbatim
	assert.Equal(t, "https://study.example.com", cfg.Origin)
	assert.Equal(t, "sg-study-site-v1.1.0", cfg.GenerationID())
	assert.Equal(t, "leveldb", cfg.Cache.Provider)
	assert.Len(t, cfg.Precache.Core, 4)
	assert.Equal(t, []string{"/api/", "/auth/"}, cfg.Routes.NetworkFirst)
	assert.Equal(t, 10*time.Second, cfg.WarmupDuration())
	assert.Equal(t, "/api/sync/study-data", cfg.Sync.Endpoints["study-data-sync"])
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "origin: http://localhost:3000\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "sg-study-site-v1.0.0", cfg.GenerationID())
	assert.Equal(t, "sqlite", cfg.Cache.Provider)
	assert.Equal(t, "/offline.html", cfg.Offline)
	assert.Equal(t, 5*time.Second, cfg.WarmupDuration())
	assert.Equal(t, "/api/sync/quiz-results", cfg.Sync.Endpoints["quiz-results-sync"])
	assert.Contains(t, cfg.Routes.NetworkFirst, "/api/")
}

func TestLoadRequiresOrigin(t *testing.T) {
	path := writeConfig(t, "listen: \":8080\"\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadWarmupDelay(t *testing.T) {
	path := writeConfig(t, "origin: http://localhost:3000\nwarmupDelay: soon\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "sg-study-site-v1.0.0", cfg.GenerationID())
	assert.Equal(t, 5*time.Second, cfg.WarmupDuration())
	assert.Empty(t, cfg.Origin)
}
