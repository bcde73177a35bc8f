package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(env(map[string]string{"GLOBAL_SALT": "pepper"}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.CacheBackend)
	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.Equal(t, "sb", cfg.RedisKeyPrefix)
	assert.Equal(t, 500*time.Millisecond, cfg.RedisOpTimeout)
	assert.Equal(t, 24*time.Hour, cfg.RedisExpiry)
	assert.Equal(t, 5000, cfg.HashRounds)
	assert.Equal(t, time.Hour, cfg.HashedIPTTL)
	assert.Equal(t, "https://api.bilibili.com", cfg.VideoAPIBaseURL)
	assert.Equal(t, 5*time.Second, cfg.VideoAPITimeout)
	assert.Equal(t, 2, cfg.VideoAPIMaxRetries)
	assert.False(t, cfg.DisableHashCache)
	assert.False(t, cfg.DisableQueryCache)
	assert.False(t, cfg.QueryCacheCoalesce)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := load(env(map[string]string{
		"GLOBAL_SALT":          "pepper",
		"CACHE_BACKEND":        "Redis",
		"REDIS_DB":             "3",
		"REDIS_OP_TIMEOUT":     "1s",
		"DISABLE_HASH_CACHE":   "true",
		"QUERY_CACHE_COALESCE": "1",
		"HASH_ROUNDS":          "10",
	}))
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.CacheBackend)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, time.Second, cfg.RedisOpTimeout)
	assert.True(t, cfg.DisableHashCache)
	assert.True(t, cfg.QueryCacheCoalesce)
	assert.Equal(t, 10, cfg.HashRounds)
}

func TestLoadReportsEveryProblem(t *testing.T) {
	_, err := load(env(map[string]string{
		"CACHE_BACKEND":      "memcached",
		"REDIS_EXPIRY":       "forever",
		"DISABLE_HASH_CACHE": "maybe",
		"HASH_ROUNDS":        "0",
	}))
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{"CACHE_BACKEND", "REDIS_EXPIRY", "DISABLE_HASH_CACHE", "GLOBAL_SALT", "HASH_ROUNDS"} {
		assert.Contains(t, msg, want)
	}
}

func TestConfigLogFieldOmitsSecrets(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cfg, err := load(env(map[string]string{
		"GLOBAL_SALT":    "pepper",
		"REDIS_PASSWORD": "hunter2",
		"CACHE_BACKEND":  "redis",
	}))
	require.NoError(t, err)

	zap.New(core).Info("loaded config", cfg.Field())

	fields := logs.All()[0].ContextMap()["config"].(map[string]any)
	assert.Equal(t, "redis", fields["cache_backend"])
	for _, v := range fields {
		assert.NotEqual(t, "pepper", v)
		assert.NotEqual(t, "hunter2", v)
	}
}
