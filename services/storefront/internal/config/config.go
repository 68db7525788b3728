package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/rajkumarkushi/sartree-ecommerce/pkg/config"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort    int      `env:"HTTP_PORT" envDefault:"8090"`
	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`

	// Remote cart backend
	RemoteCartBaseURL    string        `env:"REMOTE_CART_BASE_URL" envDefault:"http://localhost:8091"`
	RemoteCartTimeout    time.Duration `env:"REMOTE_CART_TIMEOUT" envDefault:"10s"`
	RemoteCartMaxRetries int           `env:"REMOTE_CART_MAX_RETRIES" envDefault:"2"`

	// Local persistence
	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass    string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB      int    `env:"REDIS_DB" envDefault:"0"`

	// Cart TTL in hours (default: 7 days)
	CartTTL int `env:"CART_TTL_HOURS" envDefault:"168"`

	// Sessions
	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL" envDefault:"30m"`

	// JWT authentication
	JWTSecret string `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`

	// Kafka; empty disables cart events.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Rate limiting per device
	RateLimitRPS   int `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// Tracing
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Mock cart backend (cmd/mockcart)
	MockCartPort int `env:"MOCK_CART_PORT" envDefault:"8091"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CartTTLDuration returns CartTTL as a time.Duration.
func (c *Config) CartTTLDuration() time.Duration {
	return time.Duration(c.CartTTL) * time.Hour
}

// KafkaEnabled reports whether cart events should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.MockCartPort < 1 || c.MockCartPort > 65535 {
		return fmt.Errorf("invalid mock cart port: %d", c.MockCartPort)
	}
	u, err := url.Parse(c.RemoteCartBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid REMOTE_CART_BASE_URL: %q", c.RemoteCartBaseURL)
	}
	if c.RemoteCartTimeout <= 0 {
		return fmt.Errorf("REMOTE_CART_TIMEOUT must be positive, got %s", c.RemoteCartTimeout)
	}
	if c.RemoteCartMaxRetries < 0 {
		return fmt.Errorf("REMOTE_CART_MAX_RETRIES must not be negative, got %d", c.RemoteCartMaxRetries)
	}
	switch c.StoreBackend {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreMemory, StoreRedis, c.StoreBackend)
	}
	if c.CartTTL < 1 {
		return fmt.Errorf("CART_TTL_HOURS must be at least 1, got %d", c.CartTTL)
	}
	if c.SessionIdleTTL <= 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must be positive, got %s", c.SessionIdleTTL)
	}
	if c.RateLimitRPS < 1 || c.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit must be positive, got rps=%d burst=%d", c.RateLimitRPS, c.RateLimitBurst)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be within [0,1], got %v", c.OTELSampleRate)
	}
	if c.Environment != "development" && c.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be changed from default value in %s environment", c.Environment)
	}
	return nil
}
