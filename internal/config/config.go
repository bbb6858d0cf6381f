package config

import (
	"fmt"
	"time"

	"github.com/clearcart/promotion-engine/pkg/config"
	"github.com/clearcart/promotion-engine/pkg/database"
)

// Config holds all configuration for the promotion service.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"promotion-engine"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Storage selects the persistence backend: "postgres" or "memory".
	// Memory mode needs no external services and is for local development.
	Storage string `env:"STORAGE" envDefault:"postgres"`

	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"postgres"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"promotions"`
	PostgresSSLMode  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	PostgresMaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"25"`

	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"true"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// CampaignCacheTTL bounds how stale a cached campaign definition may be.
	CampaignCacheTTL time.Duration `env:"CAMPAIGN_CACHE_TTL" envDefault:"1m"`

	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// SettingsURL points at the platform settings endpoint serving the
	// discount constraints. Empty means static defaults only.
	SettingsURL      string        `env:"SETTINGS_URL" envDefault:""`
	SettingsCacheTTL time.Duration `env:"SETTINGS_CACHE_TTL" envDefault:"30s"`

	// Fallback discount constraints, used when no settings service is
	// configured or reachable. Amounts are in minor currency units,
	// the percent is whole (0-100). Zero disables the respective cap.
	DefaultMinOrderAmount     int64 `env:"DEFAULT_MIN_ORDER_AMOUNT" envDefault:"0"`
	DefaultMaxDiscountPercent int64 `env:"DEFAULT_MAX_DISCOUNT_PERCENT" envDefault:"0"`
	DefaultMaxDiscountAmount  int64 `env:"DEFAULT_MAX_DISCOUNT_AMOUNT" envDefault:"0"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid STORAGE %q, must be postgres or memory", c.Storage)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP_PORT %d", c.HTTPPort)
	}
	if c.DefaultMaxDiscountPercent < 0 || c.DefaultMaxDiscountPercent > 100 {
		return fmt.Errorf("DEFAULT_MAX_DISCOUNT_PERCENT must be between 0 and 100, got %d", c.DefaultMaxDiscountPercent)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_ENABLED requires at least one broker")
	}
	return nil
}

// PostgresConfig builds the database pool configuration.
func (c *Config) PostgresConfig() database.PostgresConfig {
	return database.PostgresConfig{
		Host:     c.PostgresHost,
		Port:     c.PostgresPort,
		User:     c.PostgresUser,
		Password: c.PostgresPassword,
		DBName:   c.PostgresDB,
		SSLMode:  c.PostgresSSLMode,
		MaxConns: c.PostgresMaxConns,
	}
}

// RedisConfig builds the Redis client configuration.
func (c *Config) RedisConfig() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}
