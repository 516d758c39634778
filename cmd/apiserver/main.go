// API server entry point for the rxlens prescription pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dosewise/rxlens/internal/cache"
	"github.com/dosewise/rxlens/internal/config"
	"github.com/dosewise/rxlens/internal/extraction"
	"github.com/dosewise/rxlens/internal/infrastructure/database/postgres"
	redisinfra "github.com/dosewise/rxlens/internal/infrastructure/database/redis"
	"github.com/dosewise/rxlens/internal/infrastructure/events"
	"github.com/dosewise/rxlens/internal/infrastructure/monitoring/logging"
	"github.com/dosewise/rxlens/internal/infrastructure/monitoring/metrics"
	"github.com/dosewise/rxlens/internal/infrastructure/storage"
	"github.com/dosewise/rxlens/internal/interactions"
	httpserver "github.com/dosewise/rxlens/internal/interfaces/http"
	"github.com/dosewise/rxlens/internal/interfaces/http/handlers"
	"github.com/dosewise/rxlens/internal/nudge"
	"github.com/dosewise/rxlens/internal/pipeline"
	"github.com/dosewise/rxlens/internal/readability"
	"github.com/dosewise/rxlens/internal/safety"
	"github.com/dosewise/rxlens/internal/terminology"
	"github.com/dosewise/rxlens/internal/validation"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: []string{cfg.Log.Output},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	logger.Info("starting rxlens api server",
		logging.String("version", version),
		logging.Int("port", cfg.Server.Port))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *configPath, logger); err != nil {
		logger.Fatal("server exited", logging.Err(err))
	}
}

func run(ctx context.Context, cfg *config.Config, configPath string, logger logging.Logger) error {
	// Result cache: in-process tier always, Redis tier when reachable.
	memory := cache.NewMemory(cfg.Cache.MaxEntries, cache.RealClock())
	go memory.RunSweeper(ctx, cfg.Cache.SweepInterval)

	var checkers []handlers.HealthChecker
	var durable cache.Store
	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, running with in-process cache only", logging.Err(err))
	} else {
		defer redisClient.Close()
		if durable, err = cache.NewRedis(redisClient, cfg.Redis.KeyPrefix); err != nil {
			return err
		}
		checkers = append(checkers, handlers.CheckerFunc{
			Component: "redis",
			Fn:        func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	tiered, err := cache.NewTiered(memory, durable, cfg.Cache.TTL, cfg.Cache.JitterFraction, logger)
	if err != nil {
		return err
	}
	config.Watch(configPath, func(next *config.Config) {
		if next.Cache.TTL != cfg.Cache.TTL {
			if err := tiered.SetTTL(next.Cache.TTL); err == nil {
				logger.Info("cache ttl reloaded", logging.Duration("ttl", next.Cache.TTL))
			}
		}
	})

	// Medication record store.
	if err := postgres.Migrate(cfg.Database); err != nil {
		return err
	}
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	repo, err := postgres.NewMedicationRepository(pool)
	if err != nil {
		return err
	}
	audits, err := postgres.NewAuditRepository(pool)
	if err != nil {
		return err
	}
	checkers = append(checkers, handlers.CheckerFunc{
		Component: "postgres",
		Fn:        func(ctx context.Context) error { return pool.Ping(ctx) },
	})

	// Event stream and photo archive are best-effort collaborators.
	producer := events.NewKafkaProducer(cfg.Kafka, logger)
	defer producer.Close()

	var photos pipeline.PhotoArchive
	if store, err := storage.NewMinIOStore(ctx, cfg.MinIO, logger); err != nil {
		logger.Warn("photo archive unavailable", logging.Err(err))
	} else {
		photos = store
	}

	// Extraction chain and downstream services.  The nudge backend doubles
	// as the text-only model that structures OCR text.
	backend := nudge.NewBackend(cfg.Nudge, logger)
	ocr := extraction.NewOCRStrategy(cfg.Extraction, logger)
	textModel, err := extraction.NewTextModelStrategy(ocr, backend, logger)
	if err != nil {
		return err
	}
	dictionary, err := extraction.NewDictionaryStrategy(ocr, logger)
	if err != nil {
		return err
	}
	chain, err := extraction.NewChain(logger,
		extraction.NewVisionStrategy(cfg.Extraction, logger),
		textModel, ocr, dictionary)
	if err != nil {
		return err
	}
	validator, err := validation.NewValidator(terminology.NewClient(cfg.Terminology, logger), logger)
	if err != nil {
		return err
	}
	aggregator, err := safety.NewAggregator(interactions.NewClient(cfg.Interactions, logger), logger)
	if err != nil {
		return err
	}
	generator, err := nudge.NewGenerator(backend,
		readability.NewValidator(), cfg.Nudge.MaxRetries, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)
	generator.SetFallbackHook(collector.ObserveCardFallback)

	pipe, err := pipeline.New(pipeline.Deps{
		Extractor: chain,
		Validator: validator,
		Safety:    aggregator,
		Cards:     generator,
		Cache:     tiered,
		Photos:    photos,
		Events:    producer,
		Records:   repo,
		Audits:    audits,
		Metrics:   collector,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	prescriptionHandler, err := handlers.NewPrescriptionHandler(pipe, logger)
	if err != nil {
		return err
	}
	recordsHandler, err := handlers.NewRecordsHandler(repo)
	if err != nil {
		return err
	}

	routerCfg := httpserver.RouterConfig{
		PrescriptionHandler: prescriptionHandler,
		RecordsHandler:      recordsHandler,
		HealthHandler:       handlers.NewHealthHandler(version, checkers...),
		Logger:              logger,
		Mode:                cfg.Server.Mode,
		MaxBodySize:         cfg.Server.MaxBodySize,
		AllowedOrigins:      cfg.Server.AllowedOrigins,
	}
	if cfg.Metrics.Enabled {
		routerCfg.MetricsReg = reg
		routerCfg.MetricsPath = cfg.Metrics.Path
	}

	srv := httpserver.NewServer(cfg.Server, httpserver.NewRouter(routerCfg), logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return srv.Stop(context.Background())
}
