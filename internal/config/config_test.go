package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:        "8080",
		LogLevel:    "info",
		StoreType:   "memory",
		RedisDB:     0,
		RenewalLead: 12 * time.Hour,
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.StoreType)
	assert.Equal(t, "localhost:6379", cfg.RedisAddress)
	assert.True(t, cfg.RenewalEnabled)
	assert.Equal(t, 12*time.Hour, cfg.RenewalLead)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_TYPE", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("RENEWAL_ENABLED", "false")
	t.Setenv("RENEWAL_LEAD", "1h")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "redis", cfg.StoreType)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.False(t, cfg.RenewalEnabled)
	assert.Equal(t, time.Hour, cfg.RenewalLead)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty port",
			mutate:  func(c *Config) { c.Port = "" },
			wantErr: "PORT",
		},
		{
			name:    "non-numeric port",
			mutate:  func(c *Config) { c.Port = "abc" },
			wantErr: "PORT",
		},
		{
			name:    "unknown store type",
			mutate:  func(c *Config) { c.StoreType = "cassandra" },
			wantErr: "STORE_TYPE",
		},
		{
			name:    "postgres without url",
			mutate:  func(c *Config) { c.StoreType = "postgres" },
			wantErr: "POSTGRES_URL",
		},
		{
			name:    "redis db out of range",
			mutate:  func(c *Config) { c.RedisDB = 42 },
			wantErr: "REDIS_DB",
		},
		{
			name:    "non-positive renewal lead",
			mutate:  func(c *Config) { c.RenewalLead = 0 },
			wantErr: "RENEWAL_LEAD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
