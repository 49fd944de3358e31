// Package config provides configuration management for Memtrail.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for Memtrail.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Recall is the retrieval and reranking configuration.
	Recall RecallConfig `mapstructure:"recall"`

	// Sanitize is the PII-sanitization boundary configuration.
	Sanitize SanitizeConfig `mapstructure:"sanitize"`

	// Context is the conversation-context trimming configuration.
	Context ContextConfig `mapstructure:"context"`

	// Cache is the write-behind session cache configuration.
	Cache CacheConfig `mapstructure:"cache"`

	// Storage is the persistence configuration.
	Storage StorageConfig `mapstructure:"storage"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"oneof=development staging production"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// RecallConfig holds retrieval and reranking settings. These are tuning knobs
// and may be re-applied at runtime through the config watcher.
type RecallConfig struct {
	// Alpha weights semantic similarity against keyword relevance in the
	// composite rerank score. Must weight semantic over keyword.
	Alpha float64 `mapstructure:"alpha" validate:"gt=0.5,lte=1"`

	// HalfLife is the freshness-decay half-life used by the reranker.
	HalfLife time.Duration `mapstructure:"half_life"`

	// DefaultTopK is the result count used when the caller passes zero.
	DefaultTopK int `mapstructure:"default_top_k" validate:"min=1"`

	// QueryTimeout bounds a single hybrid query against the vector index.
	// On timeout recall fails soft to an empty result.
	QueryTimeout time.Duration `mapstructure:"query_timeout"`

	// VectorDimension is the embedding dimension of the in-process index.
	VectorDimension int `mapstructure:"vector_dimension" validate:"min=1"`

	// BM25 holds the keyword-scoring parameters.
	BM25 BM25Config `mapstructure:"bm25"`
}

// BM25Config holds BM25 keyword scoring parameters.
type BM25Config struct {
	// K1 controls term frequency saturation.
	K1 float64 `mapstructure:"k1" validate:"min=0"`

	// B controls document length normalization.
	B float64 `mapstructure:"b" validate:"min=0,max=1"`
}

// SanitizeConfig holds settings for the external PII-sanitization call.
type SanitizeConfig struct {
	// Timeout bounds a single sanitize call. On timeout the record is
	// treated as not yet safe to publish.
	Timeout time.Duration `mapstructure:"timeout"`

	// RatePerSecond limits calls to the sanitization collaborator.
	RatePerSecond float64 `mapstructure:"rate_per_second" validate:"min=0"`

	// Burst is the rate limiter burst size.
	Burst int `mapstructure:"burst" validate:"min=1"`
}

// ContextConfig holds conversation trimming settings.
type ContextConfig struct {
	// Metric selects the budget unit (messages, tokens).
	Metric string `mapstructure:"metric" validate:"oneof=messages tokens"`

	// DefaultBudget is the budget used when the caller passes zero.
	DefaultBudget int `mapstructure:"default_budget" validate:"min=1"`
}

// CacheConfig holds write-behind session cache settings.
type CacheConfig struct {
	// Capacity is the maximum number of sessions held in memory.
	Capacity int `mapstructure:"capacity" validate:"min=1"`

	// Workers is the size of the background flush worker pool.
	Workers int `mapstructure:"workers" validate:"min=1"`

	// RetryBudget is the number of durable-write attempts per turn before
	// the failure is surfaced to the observability channel.
	RetryBudget int `mapstructure:"retry_budget" validate:"min=1"`

	// RetryBackoff is the base delay between durable-write retries. The
	// delay doubles on each attempt.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// Type is the session-log backend (memory, badger, redis).
	Type string `mapstructure:"type" validate:"oneof=memory badger redis"`

	// Badger is the BadgerDB configuration.
	Badger BadgerConfig `mapstructure:"badger"`

	// Redis is the Redis configuration.
	Redis RedisConfig `mapstructure:"redis"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	// Path is the database directory path.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the maximum size of value log files in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the metrics server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Endpoint is the OTLP collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Timeout bounds span export calls.
	Timeout time.Duration `mapstructure:"timeout"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Env: %s, Storage: %s}",
		c.App.Name, c.App.Environment, c.Storage.Type)
}
