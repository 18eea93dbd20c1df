// =============================================================================
// 📦 Expoflow 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回完整的默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Embedding: DefaultEmbeddingConfig(),
		LLM:       DefaultLLMConfig(),
		Cache:     DefaultCacheConfig(),
		Session:   DefaultSessionConfig(),
		Router:    DefaultRouterConfig(),
		Auth:      DefaultAuthConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9090,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

// DefaultRedisConfig 默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		OpTimeout:    2 * time.Second,
	}
}

// DefaultDatabaseConfig 默认审计数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "expoflow",
		Password:        "",
		Name:            "expoflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultEmbeddingConfig 默认嵌入配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:   "openai",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    10 * time.Second,
	}
}

// DefaultLLMConfig 默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Model:       "gpt-4o-mini",
		Temperature: 0.3,
		MaxTokens:   1024,
		Timeout:     60 * time.Second,
	}
}

// DefaultCacheConfig 默认语义缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:             true,
		SimilarityThreshold: 0.80,
		DefaultTTL:          1 * time.Hour,
		AgentTTL: map[string]time.Duration{
			"general":    2 * time.Hour,
			"exhibitors": 1 * time.Hour,
			"visitors":   30 * time.Minute,
		},
		MaxScanCandidates: 200,
	}
}

// DefaultSessionConfig 默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TTL:                24 * time.Hour,
		MaxTurns:           20,
		ContextTurns:       6,
		ContextTokenBudget: 0,
		CleanupInterval:    10 * time.Minute,
	}
}

// DefaultRouterConfig 默认路由配置
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		ConfidenceFloor:  0.3,
		ContinuityWeight: 0.6,
		ContinuityWindow: 5 * time.Minute,
		FollowupMaxWords: 6,
	}
}

// DefaultAuthConfig 默认认证配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled:   false,
		JWTSecret: "",
		TokenTTL:  12 * time.Hour,
	}
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultTelemetryConfig 默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "expoflow",
		SampleRate:   1.0,
	}
}
