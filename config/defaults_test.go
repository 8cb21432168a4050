package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultServerConfig(), cfg.Server)
	assert.Equal(t, DefaultDatabaseConfig(), cfg.Database)
	assert.Equal(t, DefaultRedisConfig(), cfg.Redis)
	assert.Equal(t, DefaultLLMConfig(), cfg.LLM)
	assert.Equal(t, DefaultOrchestratorConfig(), cfg.Orchestrator)
	assert.Equal(t, DefaultLatencyConfig(), cfg.Latency)
	assert.Equal(t, DefaultLogConfig(), cfg.Log)
	assert.Equal(t, DefaultTelemetryConfig(), cfg.Telemetry)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultOrchestratorConfig(t *testing.T) {
	cfg := DefaultOrchestratorConfig()
	assert.Equal(t, 10, cfg.ContextWindow)
	assert.Zero(t, cfg.MaxContextTokens)
	assert.Equal(t, 45*time.Second, cfg.PersonaTimeout)
	assert.Equal(t, 8, cfg.MaxParallel)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "agora.db", cfg.DSN())
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, 5, cfg.ConnectRetries)
	assert.Equal(t, time.Second, cfg.ConnectRetryDelay)
}

func TestDefaultPersonas(t *testing.T) {
	personas := DefaultPersonas()
	assert.Len(t, personas, 3)

	seen := map[string]bool{}
	for _, p := range personas {
		assert.NotEmpty(t, p.Name)
		assert.NotEmpty(t, p.Model)
		assert.Regexp(t, `^#[0-9A-Fa-f]{6}$`, p.Color)
		assert.Equal(t, 1.0, p.Multiplier)
		assert.False(t, seen[p.Name], "duplicate persona %s", p.Name)
		seen[p.Name] = true
	}
}

func TestDefaultLatencyConfig(t *testing.T) {
	cfg := DefaultLatencyConfig()
	assert.Equal(t, "gorm", cfg.Sink)
	assert.Equal(t, 2*time.Second, cfg.WriteTimeout)
}
