package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration for both the agent and
// the handoff server. Each binary reads only the fields it needs.
type Config struct {
	AgentPort  string
	ServerPort string
	LogLevel   string

	// RemoteEndpoint is the base URL of the handoff server the agent
	// delivers captures to, e.g. "http://localhost:9090".
	RemoteEndpoint string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// OptimizerTargetBytes is the size the optimizer shrinks toward.
	// OptimizerHardLimitBytes is the ceiling the salvage pass enforces
	// when tier rounds alone cannot get there.
	OptimizerTargetBytes    int64
	OptimizerHardLimitBytes int64

	// DirectBodyLimitBytes is the largest serialized payload sent as a
	// single POST; anything bigger goes through the chunked protocol.
	DirectBodyLimitBytes int64
	MaxChunkBytes        int

	DedupWindow      time.Duration
	QueueMaxAttempts int

	// SessionMaxAge bounds how long the server keeps a stalled chunk
	// session before evicting it.
	SessionMaxAge time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		AgentPort:        getEnv("AGENT_PORT", "8080"),
		ServerPort:       getEnv("SERVER_PORT", "9090"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		RemoteEndpoint:   getEnv("REMOTE_ENDPOINT", "http://localhost:9090"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "user"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresDB:       getEnv("POSTGRES_DB", "handoff"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvAsInt("REDIS_DB", 0),

		OptimizerTargetBytes:    int64(getEnvAsInt("OPTIMIZER_TARGET_MB", 150)) << 20,
		OptimizerHardLimitBytes: int64(getEnvAsInt("OPTIMIZER_HARD_LIMIT_MB", 200)) << 20,
		DirectBodyLimitBytes:    int64(getEnvAsInt("DIRECT_BODY_LIMIT_MB", 8)) << 20,
		MaxChunkBytes:           getEnvAsInt("MAX_CHUNK_BYTES", 4<<20),

		DedupWindow:      getEnvAsDuration("DEDUP_WINDOW_SECONDS", 60) * time.Second,
		QueueMaxAttempts: getEnvAsInt("QUEUE_MAX_ATTEMPTS", 0),
		SessionMaxAge:    getEnvAsDuration("SESSION_MAX_AGE_SECONDS", 300) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback int) time.Duration {
	return time.Duration(getEnvAsInt(key, fallback))
}
