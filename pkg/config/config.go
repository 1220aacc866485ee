package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/platinummonkey/warden/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis session registry configuration
	Redis RedisConfig

	// Auth configuration
	Auth AuthConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds the sqlite database configuration
type DatabaseConfig struct {
	Path string
}

// RedisConfig holds session registry connection configuration
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// AuthConfig holds authentication and lockout configuration
type AuthConfig struct {
	// JWTSecret signs issued tokens. Rotating it invalidates all
	// outstanding tokens.
	JWTSecret string

	// TokenExpiry bounds the lifetime of issued tokens.
	TokenExpiry time.Duration

	// SessionTTL bounds how long a session record lives in the registry.
	SessionTTL time.Duration

	// CookieMaxAge bounds the transport cookie, independent of the
	// shorter in-token expiry.
	CookieMaxAge time.Duration

	// MaxLoginAttempts is the failed-attempt threshold before lockout.
	MaxLoginAttempts int

	// LockoutDuration is how long an account stays locked.
	LockoutDuration time.Duration

	// BCryptCost is the bcrypt work factor for password hashing.
	BCryptCost int

	// DevMode permits an empty JWT secret and relaxed cookie flags.
	DevMode bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("WARDEN_HOST", "0.0.0.0"),
		Port:            getEnv("WARDEN_PORT", "8080"),
		ReadTimeout:     getEnvDuration("WARDEN_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WARDEN_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("WARDEN_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", 30*time.Second),
		AllowedOrigins:  splitCSV(getEnv("WARDEN_ALLOWED_ORIGINS", "*")),
	}
}

// splitCSV splits a comma-separated value, trimming whitespace
func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// loadDatabaseConfig loads database configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Path: getEnv("WARDEN_DB_PATH", "warden.db"),
	}
}

// loadRedisConfig loads session registry configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("WARDEN_REDIS_URL", "redis://localhost:6379"),
		Password:   getEnv("WARDEN_REDIS_PASSWORD", ""),
		DB:         getEnvInt("WARDEN_REDIS_DB", 0),
		MaxRetries: getEnvInt("WARDEN_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("WARDEN_REDIS_POOL_SIZE", 10),
	}
}

// loadAuthConfig loads auth configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:        getEnv("WARDEN_JWT_SECRET", ""),
		TokenExpiry:      getEnvDuration("WARDEN_TOKEN_EXPIRY", 24*time.Hour),
		SessionTTL:       getEnvDuration("WARDEN_SESSION_TTL", 24*time.Hour),
		CookieMaxAge:     getEnvDuration("WARDEN_COOKIE_MAX_AGE", 90*24*time.Hour),
		MaxLoginAttempts: getEnvInt("WARDEN_MAX_LOGIN_ATTEMPTS", 3),
		LockoutDuration:  getEnvDuration("WARDEN_LOCKOUT_DURATION", time.Hour),
		BCryptCost:       getEnvInt("WARDEN_BCRYPT_COST", bcrypt.DefaultCost),
		DevMode:          getEnvBool("WARDEN_DEV_MODE", false),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("WARDEN_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("WARDEN_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}

	if c.Auth.JWTSecret == "" && !c.Auth.DevMode {
		return fmt.Errorf("JWT secret is required outside dev mode")
	}

	if c.Auth.MaxLoginAttempts < 1 {
		return fmt.Errorf("max login attempts must be at least 1")
	}

	if c.Auth.TokenExpiry <= 0 {
		return fmt.Errorf("token expiry must be positive")
	}

	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	if c.Auth.BCryptCost < bcrypt.MinCost || c.Auth.BCryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
