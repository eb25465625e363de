// Package config provides configuration management for the trigger hub.
// It handles loading configuration from environment variables with sensible
// defaults and validates the configuration before the process starts
// serving webhook traffic.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - PUBLIC_ENDPOINT: Externally reachable base URL providers deliver to
//
// Subscription Store:
//   - STORE_TYPE: "memory", "redis", "postgres" or "sqlite" (default: memory)
//   - SQLITE_PATH: SQLite database file path (default: ./triggerhub.db)
//   - POSTGRES_URL: PostgreSQL connection string (required for postgres)
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number (default: 0)
//
// Subscription Renewal:
//   - RENEWAL_ENABLED: Run the cron-based renewal scheduler (default: true)
//   - RENEWAL_LEAD: Refresh subscriptions expiring within this window
//     (default: 12h)
//   - RENEWAL_SCHEDULE: Cron expression for renewal scans
//     (default: @every 1h)
//
// Gmail Push:
//   - GCP_PROJECT: GCP project for Pub/Sub provisioning (empty disables the
//     gmail provider's push plumbing)
//   - GMAIL_TOPIC: Pub/Sub topic ID for Gmail notifications
//     (default: triggerhub-gmail)
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"triggerhub/internal/common/errors"
)

// Config holds all configuration values for the trigger hub.
type Config struct {
	Port           string
	LogLevel       string
	PublicEndpoint string

	StoreType     string
	SQLitePath    string
	PostgresURL   string
	RedisAddress  string
	RedisPassword string
	RedisDB       int

	RenewalEnabled  bool
	RenewalLead     time.Duration
	RenewalSchedule string

	GCPProject string
	GmailTopic string
}

// Load reads configuration from the environment, consulting a .env file
// when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:            getEnv("PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		PublicEndpoint:  getEnv("PUBLIC_ENDPOINT", ""),
		StoreType:       getEnv("STORE_TYPE", "memory"),
		SQLitePath:      getEnv("SQLITE_PATH", "./triggerhub.db"),
		PostgresURL:     getEnv("POSTGRES_URL", ""),
		RedisAddress:    getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		RenewalEnabled:  getEnvBool("RENEWAL_ENABLED", true),
		RenewalLead:     getEnvDuration("RENEWAL_LEAD", 12*time.Hour),
		RenewalSchedule: getEnv("RENEWAL_SCHEDULE", "@every 1h"),
		GCPProject:      getEnv("GCP_PROJECT", ""),
		GmailTopic:      getEnv("GMAIL_TOPIC", "triggerhub-gmail"),
	}
}

// Validate checks the configuration for values that would prevent a safe
// startup.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.ConfigError("PORT must not be empty")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.ConfigError("PORT must be numeric: " + c.Port)
	}

	switch c.StoreType {
	case "memory", "redis", "sqlite":
	case "postgres":
		if c.PostgresURL == "" {
			return errors.ConfigError("POSTGRES_URL is required when STORE_TYPE=postgres")
		}
	default:
		return errors.ConfigError("unsupported STORE_TYPE: " + c.StoreType)
	}

	if c.RedisDB < 0 || c.RedisDB > 15 {
		return errors.ConfigError("REDIS_DB must be between 0 and 15")
	}

	if c.RenewalLead <= 0 {
		return errors.ConfigError("RENEWAL_LEAD must be positive")
	}
	if c.RenewalSchedule == "" {
		return errors.ConfigError("RENEWAL_SCHEDULE must not be empty")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
