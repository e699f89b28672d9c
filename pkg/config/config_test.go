package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.True(t, cfg.Grading.AutoSwitchEnabled)
	assert.Equal(t, 4, cfg.Ranking.ResolveConcurrency)
	assert.Equal(t, 30*time.Second, cfg.Ranking.LockTTL)
	assert.Equal(t, 10*time.Minute, cfg.Ranking.CacheTTL)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENABLE_POLICY_AUTO_SWITCH", "false")
	t.Setenv("RANK_RESOLVE_CONCURRENCY", "0")
	t.Setenv("RANK_CACHE_TTL", "not-a-duration")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Grading.AutoSwitchEnabled)
	assert.Equal(t, 4, cfg.Ranking.ResolveConcurrency)
	assert.Equal(t, 10*time.Minute, cfg.Ranking.CacheTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}
