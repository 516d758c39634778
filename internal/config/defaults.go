package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort = 8080
	DefaultServerMode = "debug"

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "rxlens"
	DefaultDBMaxConns = 25

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "rxlens:"

	DefaultKafkaBroker = "localhost:9092"

	DefaultMinIOEndpoint = "localhost:9000"
	DefaultMinIOBucket   = "rx-photos"

	// DefaultCacheTTL bounds result staleness: a re-scan of the same photo is
	// recomputed after this window so updated interaction data is picked up.
	DefaultCacheTTL            = 30 * time.Minute
	DefaultCacheJitterFraction = 0.1
	DefaultCacheSweepInterval  = time.Minute
	DefaultCacheMaxEntries     = 4096

	DefaultVisionTimeout = 45 * time.Second
	DefaultOCRTimeout    = 20 * time.Second

	// DefaultMinTextLength is the fewest characters an OCR pass must yield
	// before regex extraction is worth attempting.
	DefaultMinTextLength = 5

	DefaultTerminologyTimeout = 5 * time.Second
	DefaultTerminologyRate    = 5.0
	DefaultMaxSuggestions     = 3

	DefaultInteractionsTimeout = 5 * time.Second

	DefaultNudgeTimeout    = 30 * time.Second
	DefaultNudgeMaxRetries = 2

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
	DefaultLogOutput = "stdout"

	DefaultMetricsPath = "/metrics"
)

// ApplyDefaults fills every zero-value field in cfg with the platform default.
// Fields that have already been set by the caller (non-zero values) are left
// unchanged so that explicit configuration always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 16 << 20 // prescription photos
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.ProducerRetries == 0 {
		cfg.Kafka.ProducerRetries = 3
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = 100 * time.Millisecond
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = 10 * time.Second
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// ── Cache ─────────────────────────────────────────────────────────────────
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = DefaultCacheTTL
	}
	if cfg.Cache.JitterFraction == 0 {
		cfg.Cache.JitterFraction = DefaultCacheJitterFraction
	}
	if cfg.Cache.SweepInterval == 0 {
		cfg.Cache.SweepInterval = DefaultCacheSweepInterval
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = DefaultCacheMaxEntries
	}

	// ── Extraction ────────────────────────────────────────────────────────────
	if cfg.Extraction.VisionTimeout == 0 {
		cfg.Extraction.VisionTimeout = DefaultVisionTimeout
	}
	if cfg.Extraction.OCRTimeout == 0 {
		cfg.Extraction.OCRTimeout = DefaultOCRTimeout
	}
	if cfg.Extraction.MinTextLength == 0 {
		cfg.Extraction.MinTextLength = DefaultMinTextLength
	}

	// ── Terminology ───────────────────────────────────────────────────────────
	if cfg.Terminology.Timeout == 0 {
		cfg.Terminology.Timeout = DefaultTerminologyTimeout
	}
	if cfg.Terminology.RatePerSecond == 0 {
		cfg.Terminology.RatePerSecond = DefaultTerminologyRate
	}
	if cfg.Terminology.MaxSuggestions == 0 {
		cfg.Terminology.MaxSuggestions = DefaultMaxSuggestions
	}

	// ── Interactions ──────────────────────────────────────────────────────────
	if cfg.Interactions.Timeout == 0 {
		cfg.Interactions.Timeout = DefaultInteractionsTimeout
	}

	// ── Nudge ─────────────────────────────────────────────────────────────────
	if cfg.Nudge.Timeout == 0 {
		cfg.Nudge.Timeout = DefaultNudgeTimeout
	}
	if cfg.Nudge.MaxRetries == 0 {
		cfg.Nudge.MaxRetries = DefaultNudgeMaxRetries
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = DefaultLogOutput
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
}
