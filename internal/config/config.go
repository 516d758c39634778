// Package config defines all configuration structures for the rxlens
// prescription pipeline.  No I/O or parsing logic lives here — only plain
// data types and validation.
package config

import (
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.  An empty AllowedOrigins list
// allows any origin.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the confirmed
// medication record store.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// RedisConfig holds Redis connection parameters for the durable result-cache
// tier.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds Kafka producer parameters for pipeline events.
type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	ProducerRetries int           `mapstructure:"producer_retries"`
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	Async           bool          `mapstructure:"async"`
}

// MinIOConfig holds the object-storage parameters for archived prescription
// photos.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// CacheConfig holds result-cache tunables.  TTL covers both the in-process
// tier and the Redis tier; JitterFraction spreads expiry to avoid stampedes.
type CacheConfig struct {
	TTL            time.Duration `mapstructure:"ttl"`
	JitterFraction float64       `mapstructure:"jitter_fraction"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	MaxEntries     int           `mapstructure:"max_entries"`
}

// ExtractionConfig holds tiered extraction-chain parameters.
type ExtractionConfig struct {
	// Vision backend (tier 1).
	VisionBaseURL string        `mapstructure:"vision_base_url"`
	VisionAPIKey  string        `mapstructure:"vision_api_key"`
	VisionModel   string        `mapstructure:"vision_model"`
	VisionTimeout time.Duration `mapstructure:"vision_timeout"`

	// OCR engine (tier 2).
	OCRBaseURL string        `mapstructure:"ocr_base_url"`
	OCRTimeout time.Duration `mapstructure:"ocr_timeout"`

	// MinTextLength is the minimum number of characters OCR must produce
	// before the regex tier is attempted.
	MinTextLength int `mapstructure:"min_text_length"`
}

// TerminologyConfig holds drug terminology service parameters.
type TerminologyConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	MaxSuggestions int           `mapstructure:"max_suggestions"`
}

// InteractionsConfig holds the drug-interaction service parameters.
type InteractionsConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// NudgeConfig holds the text-generation backend parameters for patient cards.
type NudgeConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Temperature float64       `mapstructure:"temperature"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `mapstructure:"format"` // "json" | "console"
	Output string `mapstructure:"output"`
}

// MetricsConfig holds Prometheus exposition parameters.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure for the pipeline.  Every
// infrastructure component and service reads its settings from the relevant
// sub-struct.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	MinIO        MinIOConfig        `mapstructure:"minio"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Extraction   ExtractionConfig   `mapstructure:"extraction"`
	Terminology  TerminologyConfig  `mapstructure:"terminology"`
	Interactions InteractionsConfig `mapstructure:"interactions"`
	Nudge        NudgeConfig        `mapstructure:"nudge"`
	Log          LogConfig          `mapstructure:"log"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start the application.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	// Database
	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("config: database.max_conns must be ≥ 1, got %d", c.Database.MaxConns)
	}

	// Redis
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be ≥ 0, got %d", c.Redis.DB)
	}

	// Kafka
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}

	// Cache
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config: cache.ttl must be positive, got %v", c.Cache.TTL)
	}
	if c.Cache.JitterFraction < 0 || c.Cache.JitterFraction >= 1 {
		return fmt.Errorf("config: cache.jitter_fraction %v is out of range [0, 1)", c.Cache.JitterFraction)
	}

	// Extraction
	if c.Extraction.VisionBaseURL == "" {
		return fmt.Errorf("config: extraction.vision_base_url is required")
	}
	if c.Extraction.MinTextLength < 1 {
		return fmt.Errorf("config: extraction.min_text_length must be ≥ 1, got %d", c.Extraction.MinTextLength)
	}

	// Terminology
	if c.Terminology.BaseURL == "" {
		return fmt.Errorf("config: terminology.base_url is required")
	}
	if c.Terminology.RatePerSecond <= 0 {
		return fmt.Errorf("config: terminology.rate_per_second must be positive, got %v", c.Terminology.RatePerSecond)
	}

	// Interactions
	if c.Interactions.BaseURL == "" {
		return fmt.Errorf("config: interactions.base_url is required")
	}

	// Nudge
	if c.Nudge.BaseURL == "" {
		return fmt.Errorf("config: nudge.base_url is required")
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
