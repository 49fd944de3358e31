package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "memtrail",
			Version:     "dev",
			Environment: "development",
			Debug:       false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Recall: RecallConfig{
			Alpha:           0.7,
			HalfLife:        14 * 24 * time.Hour,
			DefaultTopK:     10,
			QueryTimeout:    2 * time.Second,
			VectorDimension: 768,
			BM25: BM25Config{
				K1: 1.5,
				B:  0.75,
			},
		},
		Sanitize: SanitizeConfig{
			Timeout:       5 * time.Second,
			RatePerSecond: 10,
			Burst:         5,
		},
		Context: ContextConfig{
			Metric:        "tokens",
			DefaultBudget: 8192,
		},
		Cache: CacheConfig{
			Capacity:     1000,
			Workers:      4,
			RetryBudget:  5,
			RetryBackoff: 100 * time.Millisecond,
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path:             "./data/memtrail",
				SyncWrites:       true,
				ValueLogFileSize: 1073741824, // 1GB
			},
			Redis: RedisConfig{
				Address:  "localhost:6379",
				Password: "",
				DB:       0,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9091,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Endpoint:   "localhost:4317",
			Timeout:    10 * time.Second,
			SampleRate: 0.1,
		},
	}
}
