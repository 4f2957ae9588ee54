package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"sensor-ingest/cache"
	"sensor-ingest/confs"
	"sensor-ingest/db"
	"sensor-ingest/etl"
	"sensor-ingest/handlers"
	"sensor-ingest/metric"
	"sensor-ingest/queue"
	"sensor-ingest/repositories"
	"sensor-ingest/server"
	"sensor-ingest/services"
	"sensor-ingest/usecases"
	"sensor-ingest/validation"
	"sensor-ingest/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// load config
	cfg, err := confs.LoadConfig(".")
	if err != nil {
		slog.Error("error loading config", "error", err)
		os.Exit(1)
	}
	log := newLogger(cfg.Log)
	slog.SetDefault(log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("sensor-ingest stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *confs.Config, log *slog.Logger) error {
	// connect to database Postgres
	database, err := db.Connect(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer database.Close()

	client, err := cache.NewClient(ctx, cfg.Redis)
	if err != nil {
		// Redis can come up later; cache writes fail until then.
		log.Warn("redis not reachable at startup", "addr", cfg.Redis.Addr, "error", err)
	}
	defer client.Close()
	redisCache := cache.NewRedisCache(client, cfg.Cache, cfg.RankingKind(), log)

	metrics := metric.NewCollector()
	alerts := ws.NewManager(log)
	defer alerts.CloseAll()

	validator := validation.New(cfg.ValidationMode(), metrics, log)
	transformer := etl.NewTransformer(etl.Config{
		Mode:             cfg.ValidationMode(),
		RSSIBounds:       validation.Range{Min: cfg.Signal.RSSIMin, Max: cfg.Signal.RSSIMax},
		SNRBounds:        validation.Range{Min: cfg.Signal.SNRMin, Max: cfg.Signal.SNRMax},
		MaxBaseNullRatio: cfg.Validation.MaxBaseNullRatio,
	}, log)
	persister := services.NewPersister(repositories.NewReadingPgRepository(database), redisCache, alerts, metrics, log)
	ingest := usecases.NewIngestUseCase(validator, transformer, persister, metrics, log)
	consumer := queue.NewConsumer(cfg.RabbitMQ, ingest, metrics, log)

	devices := usecases.NewDeviceUseCase(
		repositories.NewDevicePgRepository(database),
		repositories.NewAlertPgRepository(database),
		redisCache,
	)
	srv := server.NewServer(server.Deps{
		Addr:    cfg.Server.Addr,
		Metrics: metrics,
		Devices: devices,
		Alerts:  alerts,
		Checks: map[string]handlers.Pinger{
			"database": database,
			"redis":    redisCache,
		},
		Log: log,
	})
	reporter := services.NewStatsReporter(metrics, cfg.Stats.Interval, log)

	log.Info("sensor-ingest starting",
		"queues", cfg.RabbitMQ.Queues(),
		"validation_mode", cfg.ValidationMode(),
		"ranking_kind", cfg.RankingKind(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reporter.Run(gctx)
		return nil
	})
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return consumer.Run(gctx) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newLogger(cfg confs.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
