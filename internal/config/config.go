// internal/config/config.go
//
// Package config loads the gateway's ambient process configuration from a
// .env file, the same way the teacher's internal/config/config.go does.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the process-wide configuration loaded once at startup.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Redis    RedisConfig

	MaxBatchSize    int // spec §6: HTTP 413 past this many tags in one request
	WorkerPoolSize  int // edge-monitor dispatch workers (spec §9)
	WorkerQueueSize int // per-worker event queue depth
}

// ServerConfig configures the REST surface's HTTP listener.
type ServerConfig struct {
	Port string
}

// PostgresConfig addresses the tag-declaration tabular store.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig addresses the edge/change-event publisher.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// LoadConfig reads path as a .env file and builds a Config from its
// variables, falling back to defaults for anything unset.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Postgres: PostgresConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "gateway"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "s7gateway"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		MaxBatchSize:    getEnvAsInt("MAX_BATCH_SIZE", 100),
		WorkerPoolSize:  getEnvAsInt("WORKER_POOL_SIZE", 8),
		WorkerQueueSize: getEnvAsInt("WORKER_QUEUE_SIZE", 64),
	}, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(name string, defaultVal int) int {
	valueStr := getEnv(name, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valueStr := getEnv(name, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultVal
}
