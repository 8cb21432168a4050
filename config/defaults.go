// =============================================================================
// 📦 Agora 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		Database:     DefaultDatabaseConfig(),
		Redis:        DefaultRedisConfig(),
		LLM:          DefaultLLMConfig(),
		Orchestrator: DefaultOrchestratorConfig(),
		Latency:      DefaultLatencyConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
		Personas:     DefaultPersonas(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    2 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		DefaultRoom:     "main",
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:            "sqlite",
		Host:              "localhost",
		Port:              5432,
		User:              "agora",
		Name:              "agora.db",
		SSLMode:           "disable",
		MaxOpenConns:      25,
		MaxIdleConns:      5,
		ConnMaxLifetime:   5 * time.Minute,
		AutoMigrate:       true,
		ConnectRetries:    5,
		ConnectRetryDelay: time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		StatusTTL:    5 * time.Second,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		OpenAIBaseURL:     "https://api.openai.com/v1",
		AnthropicBaseURL:  "https://api.anthropic.com",
		OpenRouterBaseURL: "https://openrouter.ai/api/v1",
		DefaultModel:      "gpt-4o-mini",
		Timeout:           60 * time.Second,
		BreakerThreshold:  5,
		BreakerCooldown:   30 * time.Second,
	}
}

// DefaultOrchestratorConfig 返回默认编排配置
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		ContextWindow:    10,
		MaxContextTokens: 0,
		PersonaTimeout:   45 * time.Second,
		MaxParallel:      8,
		Temperature:      0.7,
		MaxTokens:        600,
	}
}

// DefaultLatencyConfig 返回默认延迟日志配置
func DefaultLatencyConfig() LatencyConfig {
	return LatencyConfig{
		Sink:            "gorm",
		MongoDatabase:   "agora",
		MongoCollection: "latency_logs",
		WriteTimeout:    2 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agora",
		SampleRate:   0.1,
	}
}

// DefaultPersonas 返回内置的三个种子人格
func DefaultPersonas() []PersonaSeed {
	return []PersonaSeed{
		{
			Name:        "Marcus",
			Description: "A Stoic philosopher in the tradition of Marcus Aurelius and Epictetus.",
			Prompt: "You focus on what is within the speakers' control, on virtue, and on calm acceptance " +
				"of what is not. Speak plainly and briefly.",
			Color:      "#3B82F6",
			Voice:      "onyx",
			Model:      "gpt-4o-mini",
			Multiplier: 1.0,
		},
		{
			Name:        "Simone",
			Description: "An existentialist in the tradition of Simone de Beauvoir and Sartre.",
			Prompt: "You press on freedom, responsibility and authenticity. Point out where someone is " +
				"hiding behind circumstance.",
			Color:      "#EF4444",
			Voice:      "nova",
			Model:      "claude-3-5-haiku-latest",
			Multiplier: 1.0,
		},
		{
			Name:        "Socrates",
			Description: "A Socratic questioner.",
			Prompt: "You rarely assert. You ask one sharp question that exposes an unexamined assumption " +
				"in what was just said.",
			Color:      "#10B981",
			Voice:      "echo",
			Model:      "meta-llama/llama-3.1-70b-instruct",
			Multiplier: 1.0,
		},
	}
}
