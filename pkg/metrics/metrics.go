// Package metrics provides Prometheus metrics instrumentation for Memtrail.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager manages all Prometheus metrics for Memtrail. It satisfies the
// session cache's Metrics interface.
type Manager struct {
	registry *prometheus.Registry
	enabled  bool

	// Recall metrics
	recallDuration *prometheus.HistogramVec
	recallResults  prometheus.Histogram
	recallDegraded prometheus.Counter

	// Record metrics
	recordWrites     *prometheus.CounterVec
	publishOutcomes  *prometheus.CounterVec
	sanitizeDuration prometheus.Histogram

	// Cache metrics
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	cacheEvictions prometheus.Counter
	flushRetries   prometheus.Counter
	flushDropped   prometheus.Counter

	// Trimmer metrics
	trimOverflows prometheus.Counter
}

// Config holds metrics configuration.
type Config struct {
	Enabled bool
	Port    int
	Path    string

	RecallDurationBuckets   []float64
	SanitizeDurationBuckets []float64
}

// DefaultConfig returns default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		Port:                    9091,
		Path:                    "/metrics",
		RecallDurationBuckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		SanitizeDurationBuckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}
}

// NewManager creates a new metrics manager.
func NewManager(cfg Config) *Manager {
	if !cfg.Enabled {
		return &Manager{enabled: false}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Manager{
		registry: registry,
		enabled:  true,
	}

	m.recallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "memtrail_recall_duration_seconds",
		Help:    "Duration of recall queries by outcome.",
		Buckets: cfg.RecallDurationBuckets,
	}, []string{"outcome"})
	m.recallResults = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "memtrail_recall_results",
		Help:    "Number of records returned per recall query.",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	})
	m.recallDegraded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memtrail_recall_degraded_total",
		Help: "Recall queries that returned empty due to upstream failure or timeout.",
	})

	m.recordWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "memtrail_record_writes_total",
		Help: "Memory record writes by kind (private, shared).",
	}, []string{"kind"})
	m.publishOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "memtrail_publish_total",
		Help: "Sanitize-and-publish outcomes (published, skipped, failed).",
	}, []string{"outcome"})
	m.sanitizeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "memtrail_sanitize_duration_seconds",
		Help:    "Duration of sanitizer calls.",
		Buckets: cfg.SanitizeDurationBuckets,
	})

	m.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memtrail_session_cache_hits_total",
		Help: "Session cache hits.",
	})
	m.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memtrail_session_cache_misses_total",
		Help: "Session cache misses.",
	})
	m.cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memtrail_session_cache_evictions_total",
		Help: "Sessions evicted from the cache.",
	})
	m.flushRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memtrail_flush_retries_total",
		Help: "Write-behind flush attempts that failed and were retried.",
	})
	m.flushDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memtrail_flush_dropped_total",
		Help: "Write-behind flushes dropped after exhausting the retry budget.",
	})

	m.trimOverflows = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "memtrail_trim_overflows_total",
		Help: "Trim calls where protected turns alone exceeded the budget.",
	})

	registry.MustRegister(
		m.recallDuration, m.recallResults, m.recallDegraded,
		m.recordWrites, m.publishOutcomes, m.sanitizeDuration,
		m.cacheHits, m.cacheMisses, m.cacheEvictions,
		m.flushRetries, m.flushDropped,
		m.trimOverflows,
	)
	return m
}

// NoOpManager returns a no-op metrics manager for when metrics are disabled.
func NoOpManager() *Manager {
	return &Manager{enabled: false}
}

// Enabled returns whether metrics collection is enabled.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// ObserveRecall records one recall query.
func (m *Manager) ObserveRecall(outcome string, d time.Duration, results int) {
	if !m.enabled {
		return
	}
	m.recallDuration.WithLabelValues(outcome).Observe(d.Seconds())
	m.recallResults.Observe(float64(results))
	if outcome == "degraded" {
		m.recallDegraded.Inc()
	}
}

// RecordWrite counts a record write.
func (m *Manager) RecordWrite(kind string) {
	if !m.enabled {
		return
	}
	m.recordWrites.WithLabelValues(kind).Inc()
}

// PublishOutcome counts a sanitize-and-publish outcome.
func (m *Manager) PublishOutcome(outcome string) {
	if !m.enabled {
		return
	}
	m.publishOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveSanitize records one sanitizer call.
func (m *Manager) ObserveSanitize(d time.Duration) {
	if !m.enabled {
		return
	}
	m.sanitizeDuration.Observe(d.Seconds())
}

// TrimOverflow counts a trim that could not fit the protected turns.
func (m *Manager) TrimOverflow() {
	if !m.enabled {
		return
	}
	m.trimOverflows.Inc()
}

func (m *Manager) CacheHit() {
	if m.enabled {
		m.cacheHits.Inc()
	}
}

func (m *Manager) CacheMiss() {
	if m.enabled {
		m.cacheMisses.Inc()
	}
}

func (m *Manager) CacheEviction() {
	if m.enabled {
		m.cacheEvictions.Inc()
	}
}

func (m *Manager) FlushRetry() {
	if m.enabled {
		m.flushRetries.Inc()
	}
}

func (m *Manager) FlushDropped() {
	if m.enabled {
		m.flushDropped.Inc()
	}
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Manager) Handler() http.Handler {
	if !m.enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server on the configured port.
func (m *Manager) StartServer(ctx context.Context, port int, path string) error {
	if !m.enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	return server.ListenAndServe()
}
