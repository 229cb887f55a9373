package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/caregrid/caregrid/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Database configuration
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration
	Redis RedisConfig `yaml:"redis"`

	// Permission cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Auth configuration
	Auth AuthConfig `yaml:"auth"`

	// Tenancy policy configuration
	Tenancy TenancyConfig `yaml:"tenancy"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	ReplicaURLs string        `yaml:"replica_urls"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
}

// CacheConfig holds permission cache configuration
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	// Backend is "memory" or "redis"
	Backend string        `yaml:"backend"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
}

// AuthConfig holds token verification configuration
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// TenancyConfig holds tenant context policy configuration
type TenancyConfig struct {
	// AllowPendingSetup permits entering tenants still in pending_setup,
	// used by provisioning flows.
	AllowPendingSetup bool `yaml:"allow_pending_setup"`

	// MaxContextDepth bounds nested tenant context frames per request.
	MaxContextDepth int `yaml:"max_context_depth"`

	// MaxSupportGrantDuration caps support access grant lifetimes.
	MaxSupportGrantDuration time.Duration `yaml:"max_support_grant_duration"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel `yaml:"-"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled     bool    `yaml:"otel_enabled"`
	OTelEndpoint    string  `yaml:"otel_endpoint"`
	OTelServiceName string  `yaml:"otel_service_name"`
	OTelSampleRatio float64 `yaml:"otel_sample_ratio"`
}

// LoadConfig loads configuration from environment variables. When
// CAREGRID_CONFIG_FILE points at a YAML file, the file is applied first
// and environment variables override it.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Cache:         loadCacheConfig(),
		Auth:          loadAuthConfig(),
		Tenancy:       loadTenancyConfig(),
		Observability: loadObservabilityConfig(),
	}

	if path := getEnv("CAREGRID_CONFIG_FILE", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		// Re-apply environment so it wins over file values.
		cfg.applyEnv()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyFile overlays YAML file values onto the config
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// applyEnv re-applies environment variables over file values
func (c *Config) applyEnv() {
	if v := os.Getenv("CAREGRID_POSTGRES_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("CAREGRID_REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("CAREGRID_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("CAREGRID_PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("CAREGRID_LOG_LEVEL"); v != "" {
		c.Observability.LogLevel = parseLogLevel(v)
	}
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CAREGRID_HOST", "0.0.0.0"),
		Port:            getEnv("CAREGRID_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CAREGRID_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CAREGRID_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("CAREGRID_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CAREGRID_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("CAREGRID_HEALTH_PORT", "9090"),
	}
}

// loadDatabaseConfig loads PostgreSQL configuration from environment
func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("CAREGRID_POSTGRES_URL", ""),
		ReplicaURLs: getEnv("CAREGRID_POSTGRES_REPLICA_URLS", ""),
		MaxConns:    getEnvInt("CAREGRID_POSTGRES_MAX_CONNS", 25),
		MinConns:    getEnvInt("CAREGRID_POSTGRES_MIN_CONNS", 5),
		ConnTimeout: getEnvDuration("CAREGRID_POSTGRES_TIMEOUT", 10*time.Second),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("CAREGRID_REDIS_URL", ""),
		Password:   getEnv("CAREGRID_REDIS_PASSWORD", ""),
		DB:         getEnvInt("CAREGRID_REDIS_DB", 0),
		MaxRetries: getEnvInt("CAREGRID_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("CAREGRID_REDIS_POOL_SIZE", 10),
	}
}

// loadCacheConfig loads permission cache configuration from environment
func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: getEnvBool("CAREGRID_CACHE_ENABLED", true),
		Backend: getEnv("CAREGRID_CACHE_BACKEND", "memory"),
		Size:    getEnvInt("CAREGRID_CACHE_SIZE", 10000),
		TTL:     getEnvDuration("CAREGRID_CACHE_TTL", 5*time.Minute),
	}
}

// loadAuthConfig loads auth configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret: getEnv("CAREGRID_JWT_SECRET", ""),
		Issuer:    getEnv("CAREGRID_JWT_ISSUER", "caregrid"),
		TokenTTL:  getEnvDuration("CAREGRID_TOKEN_TTL", time.Hour),
	}
}

// loadTenancyConfig loads tenancy policy configuration from environment
func loadTenancyConfig() TenancyConfig {
	return TenancyConfig{
		AllowPendingSetup:       getEnvBool("CAREGRID_ALLOW_PENDING_SETUP", false),
		MaxContextDepth:         getEnvInt("CAREGRID_MAX_CONTEXT_DEPTH", 8),
		MaxSupportGrantDuration: getEnvDuration("CAREGRID_MAX_SUPPORT_GRANT_DURATION", 48*time.Hour),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:        parseLogLevel(getEnv("CAREGRID_LOG_LEVEL", "info")),
		MetricsEnabled:  getEnvBool("CAREGRID_METRICS_ENABLED", true),
		OTelEnabled:     getEnvBool("CAREGRID_OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("CAREGRID_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName: getEnv("CAREGRID_OTEL_SERVICE_NAME", "caregrid-api"),
		OTelSampleRatio: getEnvFloat("CAREGRID_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("redis URL is required for redis cache backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s (must be memory or redis)", c.Cache.Backend)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT secret is required")
	}

	if c.Tenancy.MaxContextDepth < 1 {
		return fmt.Errorf("max context depth must be at least 1")
	}
	if c.Tenancy.MaxSupportGrantDuration <= 0 || c.Tenancy.MaxSupportGrantDuration > 48*time.Hour {
		return fmt.Errorf("max support grant duration must be positive and at most 48h")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
