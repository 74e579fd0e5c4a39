package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	domainconfig "stackture/domain/config"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string
	ConfigFile    string

	// Storage
	DatabaseURL string

	// Workspace locking: "local" or "dynamodb"
	LockBackend string
	LockTable   string
	LockTTL     time.Duration

	// AWS configuration
	AWSRegion     string
	EventBusName  string
	EventsEnabled bool

	// Logging
	LogLevel string

	// Authentication
	JWTSecret string
	JWTIssuer string

	// Feature flags
	EnableMetrics bool
	EnableTracing bool
	EnableCORS    bool
	OTLPEndpoint  string

	// Graph rules, reloadable through the overlay file. BaseDomain is the
	// environment-only value the overlay is applied to.
	Domain     *domainconfig.DomainConfig
	BaseDomain *domainconfig.DomainConfig
}

// LoadConfig loads configuration from environment variables, then applies
// the YAML overlay named by CONFIG_FILE if there is one
func LoadConfig() (*Config, error) {
	domain := domainconfig.DefaultDomainConfig()
	domain.CascadePolicy = domainconfig.CascadePolicy(getEnv("CASCADE_POLICY", string(domain.CascadePolicy)))
	domain.DetachMode = domainconfig.DetachMode(getEnv("DETACH_MODE", string(domain.DetachMode)))

	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		ConfigFile:    getEnv("CONFIG_FILE", ""),

		DatabaseURL: getEnv("DATABASE_URL", "stackture.db"),

		LockBackend: getEnv("LOCK_BACKEND", "local"),
		LockTable:   getEnv("LOCK_TABLE", "stackture-locks"),
		LockTTL:     getEnvDuration("LOCK_TTL", 10*time.Second),

		AWSRegion:     getEnv("AWS_REGION", "us-west-2"),
		EventBusName:  getEnv("EVENT_BUS_NAME", "stackture-events"),
		EventsEnabled: getEnvBool("EVENTS_ENABLED", false),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "stackture"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		EnableTracing: getEnvBool("ENABLE_TRACING", false),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),
		OTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		Domain:     domain,
		BaseDomain: domain,
	}

	if cfg.ConfigFile != "" {
		overlay, err := LoadOverlay(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg.Domain = overlay.Apply(cfg.Domain)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if err := c.Domain.Validate(); err != nil {
		return fmt.Errorf("domain config: %w", err)
	}
	switch c.LockBackend {
	case "local":
	case "dynamodb":
		if c.LockTable == "" {
			return fmt.Errorf("LOCK_TABLE is required for the dynamodb lock backend")
		}
	default:
		return fmt.Errorf("unknown LOCK_BACKEND %q", c.LockBackend)
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}

	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.EventsEnabled && c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required")
		}
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvDuration accepts Go durations ("5s") or plain seconds ("5")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
