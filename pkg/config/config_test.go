package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 6, cfg.Tree.MaxDepth)
	assert.Equal(t, "file", cfg.Cache.Backend)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data:
  kind: provinces
tree:
  max_depth: 9
cache:
  backend: bolt
  redis_ttl: 1h
server:
  addr: ":9090"
  read_timeout: 2s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "provinces", cfg.Data.Kind)
	assert.Equal(t, 9, cfg.Tree.MaxDepth)
	assert.Equal(t, "bolt", cfg.Cache.Backend)
	assert.Equal(t, time.Hour, cfg.Cache.RedisTTL)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
	// untouched sections keep their defaults
	assert.Equal(t, "data", cfg.Data.Dir)
	assert.Equal(t, 10*time.Second, cfg.Server.WriteTimeout)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tree: [unclosed"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("GEOLABEL_MAX_DEPTH", "8")
	t.Setenv("GEOLABEL_CACHE_BACKEND", "redis")
	t.Setenv("GEOLABEL_REDIS_TTL", "30m")
	t.Setenv("GEOLABEL_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Tree.MaxDepth)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Cache.RedisTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv("GEOLABEL_MAX_DEPTH", "deep")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadEnvFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("GEOLABEL_KIND=provinces\n"), 0o644))
	t.Setenv("GEOLABEL_KIND", "")
	os.Unsetenv("GEOLABEL_KIND")

	LoadEnvFiles(filepath.Join(t.TempDir(), "missing.env"), path)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "provinces", cfg.Data.Kind)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative depth", func(c *Config) { c.Tree.MaxDepth = -1 }},
		{"depth over limit", func(c *Config) { c.Tree.MaxDepth = 99 }},
		{"negative parallel depth", func(c *Config) { c.Tree.ParallelDepth = -1 }},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"empty kind", func(c *Config) { c.Data.Kind = "" }},
		{"file without property", func(c *Config) { c.Data.File = "regions.geojson" }},
		{"flipped bound", func(c *Config) {
			c.Tree.Bound.BottomLeft, c.Tree.Bound.TopRight = c.Tree.Bound.TopRight, c.Tree.Bound.BottomLeft
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
