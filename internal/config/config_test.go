package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hire-realtime/internal/ratelimit"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8083", cfg.Server.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 3, cfg.Scoring.AttemptsPerModel)
	assert.Equal(t, 2*time.Second, cfg.Scoring.BaseDelay)
	assert.Equal(t, ratelimit.Rule{Limit: 30, Window: time.Minute}, cfg.RateLimit.SendMessage)
	assert.NotEmpty(t, cfg.Scoring.Models)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("SCORING_MODELS", "gemini-2.5-pro,gpt-4o")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("RATELIMIT_EVALUATE_LIMIT", "2")
	t.Setenv("SERVER_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("SERVER_ENVIRONMENT", "production")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"gemini-2.5-pro", "gpt-4o"}, cfg.Scoring.Models)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, 2, cfg.RateLimit.Evaluate.Limit)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.False(t, cfg.IsDevelopment())

	rules := cfg.RateLimitRules("chat:send_message", "resume:evaluate")
	assert.Equal(t, 2, rules["resume:evaluate"].Limit)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  in_memory: true\n  dsn: \"\"\namqp:\n  prefetch: 16\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Database.InMemory)
	assert.Equal(t, 16, cfg.AMQP.Prefetch)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "0")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker.concurrency")
}
