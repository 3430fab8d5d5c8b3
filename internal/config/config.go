// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Upload     UploadConfig
	Retention  RetentionConfig
	Storage    StorageConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
	Logging    LoggingConfig
	Pagination PaginationConfig
	Schema     SchemaConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing a response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// RunMigrations applies embedded migrations on startup (default: true)
	RunMigrations bool `env:"DB_RUN_MIGRATIONS" default:"true"`
}

// UploadConfig holds CSV upload processing settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"52428800"`

	// MaxConcurrent is the maximum number of parallel uploads (default: 5)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for an upload slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single upload operation (default: 5m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"5m"`
}

// RetentionConfig holds per-owner retention and orphan sweeping settings.
type RetentionConfig struct {
	// MaxDatasets is how many datasets each owner keeps (default: 5)
	MaxDatasets int `env:"RETENTION_MAX_DATASETS" default:"5"`

	// SweepInterval is how often orphaned blobs are retried (default: 10m)
	SweepInterval time.Duration `env:"RETENTION_SWEEP_INTERVAL" default:"10m"`

	// SweepBatchSize is orphans retried per pass (default: 100)
	SweepBatchSize int `env:"RETENTION_SWEEP_BATCH_SIZE" default:"100"`
}

// StorageConfig selects where raw upload bytes are kept.
type StorageConfig struct {
	// Backend is "local" or "s3" (default: local)
	Backend string `env:"STORAGE_BACKEND" default:"local"`

	// LocalDir is the root directory for the local backend (default: ./data/uploads)
	LocalDir string `env:"STORAGE_LOCAL_DIR" default:"./data/uploads"`

	S3 S3Config
}

// S3Config holds settings for an S3-compatible object store.
type S3Config struct {
	Bucket          string `env:"S3_BUCKET"`
	Region          string `env:"S3_REGION" envAlt:"AWS_REGION" default:"us-east-1"`
	Endpoint        string `env:"S3_ENDPOINT"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	Prefix          string `env:"S3_PREFIX"`

	// UsePathStyle is needed for MinIO and most non-AWS endpoints (default: false)
	UsePathStyle bool `env:"S3_USE_PATH_STYLE" default:"false"`
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerSecond is the sustained request rate per client (default: 5)
	RequestsPerSecond float64 `env:"RATE_LIMIT_RPS" default:"5"`

	// Burst is the token bucket size per client (default: 20)
	Burst int `env:"RATE_LIMIT_BURST" default:"20"`

	// UploadsPerMinute is the upload rate per client (default: 10)
	UploadsPerMinute int `env:"RATE_LIMIT_UPLOADS_PER_MINUTE" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// APIKeys is a comma-separated list of owner:key pairs
	APIKeys []string `env:"API_KEYS"`

	// RequireAPIKey rejects unauthenticated requests to /api (default: true)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"true"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// AllowedOrigins is a comma-separated list of CORS origins
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text, json or tint (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// PaginationConfig holds row window defaults.
type PaginationConfig struct {
	// DefaultLimit is used when a request has no limit (default: 200)
	DefaultLimit int `env:"PAGINATION_DEFAULT_LIMIT" default:"200"`
}

// SchemaConfig holds column resolution settings.
type SchemaConfig struct {
	// AliasFile is an optional YAML file extending the built-in header aliases
	AliasFile string `env:"SCHEMA_ALIAS_FILE"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
