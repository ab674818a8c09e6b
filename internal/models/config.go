package models

import "time"

// Config represents the application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Upload   UploadConfig
	Site     SiteSettings
	Limits   LimitsConfig
	Catalog  CatalogConfig
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// AuthConfig holds the shared secret used to verify identity tokens
type AuthConfig struct {
	JWTSecret string
}

// RedisConfig holds the optional Redis connection used for the change feed
// relay and the admin allow-list cache
type RedisConfig struct {
	Enabled       bool
	Addr          string
	Password      string
	DB            int
	FeedChannel   string
	AdminCacheTTL time.Duration
}

// RabbitMQConfig holds the optional broker used for lifecycle events
type RabbitMQConfig struct {
	Enabled bool
	URL     string
	Queue   string
	LogFile string
}

// UploadConfig holds the image hosting settings for payment proofs
type UploadConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// LimitsConfig caps the size of bounded reads
type LimitsConfig struct {
	AuditRecent      int
	NotificationFeed int // capped at 20 by the notification service
}

// CatalogConfig points at the coin seed file
type CatalogConfig struct {
	CoinsFile string
}
