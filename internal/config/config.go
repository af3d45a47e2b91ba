package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerHost string
	ServerPort string

	// Role store (the editor application's database). Leaving DB_HOST empty
	// disables the join-time role lookup entirely.
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Presence tuning
	CursorTimeout time.Duration
	SweepInterval time.Duration
	SendBuffer    int

	// Observability
	JaegerEndpoint string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		ServerHost: getEnv("SERVER_HOST", "localhost"),
		ServerPort: getEnv("SERVER_PORT", "3001"),

		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "docsync"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		CursorTimeout: time.Duration(getEnvInt("CURSOR_TIMEOUT_MS", 30000)) * time.Millisecond,
		SweepInterval: time.Duration(getEnvInt("CURSOR_SWEEP_INTERVAL_MS", 10000)) * time.Millisecond,
		SendBuffer:    getEnvInt("WS_SEND_BUFFER", 256),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
	}

	if cfg.CursorTimeout <= 0 {
		return nil, fmt.Errorf("CURSOR_TIMEOUT_MS must be positive")
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("CURSOR_SWEEP_INTERVAL_MS must be positive")
	}

	return cfg, nil
}

// RoleStoreEnabled reports whether a role-store connection is configured.
func (c *Config) RoleStoreEnabled() bool {
	return c.DBHost != ""
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
