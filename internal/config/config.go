// Package config loads process configuration from environment variables,
// grounded on the teacher's common/config/config.go: a Load(serviceName)
// constructor building a typed Config from getEnv*/default pairs, plus a
// Validate step and a DatabaseURL derivation helper.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the executor's full process configuration.
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Providers ProviderConfig
	Clients   ClientConfig
	Security  SecurityConfig
}

// ServiceConfig holds service-identity and HTTP-listener settings.
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection and pool-tuning settings,
// consumed by internal/persistence/postgres.Config.
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int32
	MinConns    int32
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds the rate limiter's Redis connection settings. Empty
// Addr means internal/ratelimit.Limiter runs local-fallback-only.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ProviderConfig holds the model-provider endpoints internal/clients.
// ProviderRegistry dispatches to, keyed by provider name (e.g. "openai").
type ProviderConfig struct {
	Endpoints map[string]ProviderEndpointConfig
}

// ProviderEndpointConfig is one provider's base URL and default API key.
type ProviderEndpointConfig struct {
	BaseURL string
	APIKey  string
}

// ClientConfig holds the outbound HTTP client settings shared by
// internal/clients' Tool Registry, Provider Registry, and Event Publisher.
type ClientConfig struct {
	RequestTimeout  time.Duration
	EventsBaseURL   string
	InternalService string
}

// SecurityConfig holds the at-rest encryption key for environment
// variables, per internal/persistence/postgres.Store's secretbox use.
type SecurityConfig struct {
	EnvironmentEncryptionKey [32]byte
}

// Load builds a Config from the process environment.
func Load(serviceName string) (*Config, error) {
	encryptionKey, err := loadEncryptionKey()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "executor"),
			User:        getEnv("POSTGRES_USER", "executor"),
			Password:    getEnv("POSTGRES_PASSWORD", "executor"),
			MaxConns:    int32(getEnvInt("POSTGRES_MAX_CONNS", 50)),
			MinConns:    int32(getEnvInt("POSTGRES_MIN_CONNS", 10)),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Providers: ProviderConfig{
			Endpoints: map[string]ProviderEndpointConfig{
				"openai": {
					BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
					APIKey:  getEnv("OPENAI_API_KEY", ""),
				},
				"anthropic": {
					BaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1"),
					APIKey:  getEnv("ANTHROPIC_API_KEY", ""),
				},
			},
		},
		Clients: ClientConfig{
			RequestTimeout:  getEnvDuration("CLIENT_REQUEST_TIMEOUT", 30*time.Second),
			EventsBaseURL:   getEnv("SOCKET_SERVER_URL", ""),
			InternalService: getEnv("INTERNAL_SERVICE_SECRET", ""),
		},
		Security: SecurityConfig{
			EnvironmentEncryptionKey: encryptionKey,
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks the loaded configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
// internal/persistence/postgres.New consumes.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// loadEncryptionKey reads a base64-encoded 32-byte key from
// ENV_ENCRYPTION_KEY. When the variable is unset, in any environment, a
// fixed all-zero key is returned without error.
func loadEncryptionKey() ([32]byte, error) {
	var key [32]byte
	raw := os.Getenv("ENV_ENCRYPTION_KEY")
	if raw == "" {
		return key, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return key, fmt.Errorf("decode ENV_ENCRYPTION_KEY: %w", err)
	}
	if len(decoded) != 32 {
		return key, fmt.Errorf("ENV_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(decoded))
	}
	copy(key[:], decoded)
	return key, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
