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
	t.Setenv("WORKLOAD_CONFIG", "")
	t.Setenv("PORT", "")
	t.Setenv("MATCH_STRICT_GEOGRAPHY", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8000", cfg.Port)
	assert.True(t, cfg.StrictGeography)
	assert.Equal(t, 5*time.Minute, cfg.StatsCacheTTL)
}

func TestLoadTOMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workload.toml")
	content := "port = \"9100\"\nstrict_geography = false\nstats_cache_ttl = \"90s\"\nredis_url = \"redis://cache:6379/0\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("WORKLOAD_CONFIG", path)
	t.Setenv("PORT", "9200")
	t.Setenv("MATCH_STRICT_GEOGRAPHY", "")
	t.Setenv("STATS_CACHE_TTL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9200", cfg.Port)
	assert.False(t, cfg.StrictGeography)
	assert.Equal(t, 90*time.Second, cfg.StatsCacheTTL)
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
}

func TestInvalidEnvIsIgnored(t *testing.T) {
	t.Setenv("WORKLOAD_CONFIG", "")
	t.Setenv("STATS_CACHE_TTL", "soon")
	t.Setenv("MATCH_STRICT_GEOGRAPHY", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.StatsCacheTTL)
	assert.True(t, cfg.StrictGeography)
}

func TestRequireSecrets(t *testing.T) {
	cfg := DefaultConfig()
	assert.EqualError(t, cfg.RequireSecrets(), "JWT_SECRET and API_MASTER_SECRET must be set")

	cfg.JWTSecret = "jwt"
	assert.EqualError(t, cfg.RequireSecrets(), "API_MASTER_SECRET must be set")

	cfg.APIMasterSecret = "master"
	assert.NoError(t, cfg.RequireSecrets())
}
