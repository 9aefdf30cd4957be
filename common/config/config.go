package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Queue     QueueConfig
	Telemetry TelemetryConfig
	Shopify   ShopifyConfig
	Audit     AuditConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string

	// Per-organization API budget, 0 disables the limiter
	APIRateLimitPerMinute int64
	ShutdownTimeout       time.Duration
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig holds cache settings
type CacheConfig struct {
	Enabled    bool
	Backend    string // "memory" or "redis"
	DefaultTTL time.Duration
}

// QueueConfig holds event queue settings
type QueueConfig struct {
	Type          string // "memory" or "redis"
	ConsumerGroup string
	StreamBlock   time.Duration
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof   bool
	PprofPort     int
	EnableMetrics bool
	MetricsPort   int
}

// ShopifyConfig controls order history fetching
type ShopifyConfig struct {
	APIVersion string
	PageSize   int

	// Delay between consecutive page requests for one customer
	PageDelay time.Duration

	// Hard cap on pages fetched for one lookup
	MaxPages int

	Timeout time.Duration

	// Shared per-shop budget across workers, 0 disables the Redis limiter
	ShopQuotaPerMinute int64
}

// AuditConfig controls audit orchestration
type AuditConfig struct {
	Concurrency  int
	LockTTL      time.Duration
	ReauditTopic string
	DefaultLimit int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),

			APIRateLimitPerMinute: int64(getEnvInt("API_RATE_LIMIT_PER_MINUTE", 0)),
			ShutdownTimeout:       getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "boxops"),
			User:        getEnv("POSTGRES_USER", "boxops"),
			Password:    getEnv("POSTGRES_PASSWORD", "boxops"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			Backend:    getEnv("CACHE_BACKEND", "memory"),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute),
		},
		Queue: QueueConfig{
			Type:          getEnv("QUEUE_TYPE", "memory"),
			ConsumerGroup: getEnv("QUEUE_CONSUMER_GROUP", "audit_workers"),
			StreamBlock:   getEnvDuration("QUEUE_STREAM_BLOCK", 5*time.Second),
		},
		Telemetry: TelemetryConfig{
			EnablePprof:   getEnvBool("ENABLE_PPROF", false),
			PprofPort:     getEnvInt("PPROF_PORT", 6060),
			EnableMetrics: getEnvBool("ENABLE_METRICS", true),
			MetricsPort:   getEnvInt("METRICS_PORT", 9090),
		},
		Shopify: ShopifyConfig{
			APIVersion:         getEnv("SHOPIFY_API_VERSION", "2024-01"),
			PageSize:           getEnvInt("SHOPIFY_PAGE_SIZE", 250),
			PageDelay:          getEnvDuration("SHOPIFY_PAGE_DELAY", 500*time.Millisecond),
			MaxPages:           getEnvInt("SHOPIFY_MAX_PAGES", 50),
			Timeout:            getEnvDuration("SHOPIFY_TIMEOUT", 30*time.Second),
			ShopQuotaPerMinute: int64(getEnvInt("SHOPIFY_SHOP_QUOTA_PER_MINUTE", 0)),
		},
		Audit: AuditConfig{
			Concurrency:  getEnvInt("AUDIT_CONCURRENCY", 4),
			LockTTL:      getEnvDuration("AUDIT_LOCK_TTL", 2*time.Minute),
			ReauditTopic: getEnv("AUDIT_REAUDIT_TOPIC", "billing.payment_succeeded"),
			DefaultLimit: getEnvInt("AUDIT_DEFAULT_LIMIT", 100),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
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

	switch c.Queue.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown queue type: %s", c.Queue.Type)
	}

	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache backend: %s", c.Cache.Backend)
	}

	if c.Shopify.PageSize < 1 || c.Shopify.PageSize > 250 {
		return fmt.Errorf("shopify page size must be between 1 and 250, got %d", c.Shopify.PageSize)
	}

	if c.Shopify.MaxPages < 1 {
		return fmt.Errorf("shopify max pages must be positive")
	}

	if c.Audit.Concurrency < 1 {
		return fmt.Errorf("audit concurrency must be positive")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
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

// RedisAddr returns host:port for the Redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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
