package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/memtrail/memtrail/config"
	"github.com/memtrail/memtrail/pkg/logger"
	"github.com/memtrail/memtrail/pkg/memory"
	"github.com/memtrail/memtrail/pkg/metrics"
	"github.com/memtrail/memtrail/pkg/recall"
	"github.com/memtrail/memtrail/pkg/service"
	"github.com/memtrail/memtrail/pkg/sessioncache"
	"github.com/memtrail/memtrail/pkg/sessionstore"
	"github.com/memtrail/memtrail/pkg/social"
	"github.com/memtrail/memtrail/pkg/telemetry/tracing"
	"github.com/memtrail/memtrail/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	appName   = flag.String("app-name", "", "Override app name")
	logLevel  = flag.String("log-level", "", "Override log level")
	debugMode = flag.Bool("debug", false, "Enable debug mode")
)

func main() {
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}
	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath, buildOverrides())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug || *debugMode {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)

	log.Info("Starting Memtrail",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("Configuration loaded", "config", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Tracing
	tracingShutdown, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Version)
	if err != nil {
		log.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Badger backs the social graph and the record store in every mode.
	badgerOpts := badger.DefaultOptions(cfg.Storage.Badger.Path)
	badgerOpts.SyncWrites = cfg.Storage.Badger.SyncWrites
	if cfg.Storage.Badger.ValueLogFileSize > 0 {
		badgerOpts.ValueLogFileSize = cfg.Storage.Badger.ValueLogFileSize
	}
	badgerOpts.Logger = nil
	db, err := badger.Open(badgerOpts)
	if err != nil {
		log.Error("Failed to open Badger database", "error", err, "path", cfg.Storage.Badger.Path)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing Badger database", "error", err)
		}
	}()

	// Social graph
	graph := social.NewGraph(social.NewBadgerEdgeStore(db))
	if err := graph.Load(ctx); err != nil {
		log.Error("Failed to load social graph", "error", err)
		os.Exit(1)
	}

	// Recall index and record store
	index := recall.NewHybridIndex(
		recall.NewHashEmbedder(cfg.Recall.VectorDimension),
		cfg.Recall.BM25.K1, cfg.Recall.BM25.B,
	)
	sanitizer := memory.NewRateLimitedSanitizer(
		memory.RedactingSanitizer{},
		cfg.Sanitize.RatePerSecond, cfg.Sanitize.Burst,
	)
	records := memory.NewStore(db, index, sanitizer, graph, cfg.Sanitize.Timeout, log)

	indexed, err := records.Reindex(ctx)
	if err != nil {
		log.Error("Failed to rebuild recall index", "error", err)
		os.Exit(1)
	}
	log.Info("Recall index rebuilt", "records", indexed)

	recallClient := recall.NewClient(graph, index, recall.Tuning{
		Alpha:        cfg.Recall.Alpha,
		HalfLife:     cfg.Recall.HalfLife,
		DefaultTopK:  cfg.Recall.DefaultTopK,
		QueryTimeout: cfg.Recall.QueryTimeout,
	}, log)

	// Metrics
	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Enabled = cfg.Metrics.Enabled
	metricsCfg.Port = cfg.Metrics.Port
	metricsCfg.Path = cfg.Metrics.Path
	metricsManager := metrics.NewManager(metricsCfg)
	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	// Session log backend and write-behind cache
	sessions, err := openSessionStore(ctx, cfg, db, log)
	if err != nil {
		log.Error("Failed to open session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			log.Error("Error closing session store", "error", err)
		}
	}()

	cache := sessioncache.New(sessions, sessioncache.Options{
		Capacity:     cfg.Cache.Capacity,
		Workers:      cfg.Cache.Workers,
		RetryBudget:  cfg.Cache.RetryBudget,
		RetryBackoff: cfg.Cache.RetryBackoff,
	}, log, metricsManager)

	svc := service.New(service.Options{
		Graph:         graph,
		Records:       records,
		Recall:        recallClient,
		Cache:         cache,
		Metrics:       metricsManager,
		Logger:        log,
		ContextMetric: cfg.Context.Metric,
		ContextBudget: cfg.Context.DefaultBudget,
	})

	// Live re-tuning: follow the config file without a restart.
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, config.NewLoader())
		if err != nil {
			log.Warn("Config watcher unavailable", "error", err)
		} else {
			watcher.OnChange(func(next *config.Config) {
				log.Info("Configuration file changed, re-applying tuning")
				svc.ApplyConfig(next)
				log.SetLevel(logger.ParseLevel(next.Log.Level))
			})
			go func() {
				if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
					log.Error("Config watcher stopped", "error", err)
				}
			}()
			defer watcher.Stop()
		}
	}

	log.Info("Memtrail is running",
		"storage", cfg.Storage.Type,
		"metrics_port", cfg.Metrics.Port,
	)
	log.Info("Press Ctrl+C to stop")

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info("Flushing session cache")
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during service shutdown", "error", err)
	}
	if err := tracingShutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracing", "error", err)
	}

	log.Info("Memtrail stopped gracefully")
}

// openSessionStore picks the durable session-log backend.
func openSessionStore(ctx context.Context, cfg *config.Config, db *badger.DB, log logger.Logger) (sessionstore.Store, error) {
	switch cfg.Storage.Type {
	case "badger":
		log.Info("Using Badger session store", "path", cfg.Storage.Badger.Path)
		return sessionstore.NewBadgerStore(db), nil
	case "redis":
		log.Info("Using Redis session store", "address", cfg.Storage.Redis.Address)
		return sessionstore.NewRedisStore(ctx, sessionstore.RedisOptions{
			Address:  cfg.Storage.Redis.Address,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
	case "memory":
		log.Info("Using in-memory session store")
		return sessionstore.NewMemoryStore(), nil
	default:
		log.Warn("Unknown storage type, using in-memory session store", "type", cfg.Storage.Type)
		return sessionstore.NewMemoryStore(), nil
	}
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})
	if *appName != "" {
		overrides["app.name"] = *appName
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *debugMode {
		overrides["app.debug"] = true
	}
	return overrides
}

func printVersion() {
	fmt.Printf("Memtrail - Personalized Memory Subsystem\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
}

func printHelp() {
	fmt.Printf("Memtrail - Personalized memory subsystem for conversational agents\n\n")
	fmt.Printf("Usage: memtrail [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  memtrail                                  # Run with default config\n")
	fmt.Printf("  memtrail -config config.yaml              # Use specific config file\n")
	fmt.Printf("  memtrail -log-level debug                 # Override specific options\n")
	fmt.Printf("  memtrail -version                         # Print version info\n")
}
