// Package config loads application settings from the environment. Database
// server credentials are not configured here; they live in the task store's
// dbConfigs collection and are resolved per server key at lease time.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the process-level settings.
type Config struct {
	Env        string
	ServerAddr string
	RedisAddr  string
	MongoURI   string
	MongoDB    string

	// Transfer tuning
	BatchConcurrency int           // tasks run in parallel in batch mode
	BatchPause       time.Duration // loaded but not read: RunBatch pauses a fixed 10s between batches

	// Retry queue
	RetryInterval   time.Duration
	RetryMaxRetries int

	// Health monitor
	HealthInterval      time.Duration
	RecoveryCooldown    time.Duration
	MaxRecoveryAttempts int
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		Env:        os.Getenv("APP_ENV"),
		ServerAddr: envString("SERVER_ADDR", ":8080"),
		RedisAddr:  envString("REDIS_ADDR", "127.0.0.1:6379"),
		MongoURI:   envString("MONGO_URI", "mongodb://127.0.0.1:27017"),
		MongoDB:    envString("MONGO_DB", "core_app"),

		BatchConcurrency: envInt("TRANSFER_CONCURRENCY", 3),
		BatchPause:       envDuration("TRANSFER_BATCH_PAUSE", 10*time.Second),

		RetryInterval:   envDuration("RETRY_INTERVAL", 5*time.Minute),
		RetryMaxRetries: envInt("RETRY_MAX_RETRIES", 3),

		HealthInterval:      envDuration("HEALTH_INTERVAL", 5*time.Minute),
		RecoveryCooldown:    envDuration("RECOVERY_COOLDOWN", 30*time.Minute),
		MaxRecoveryAttempts: envInt("MAX_RECOVERY_ATTEMPTS", 3),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
