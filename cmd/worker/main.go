package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suPer8Hu/market-research/internal/app"
	"github.com/suPer8Hu/market-research/internal/config"
	"github.com/suPer8Hu/market-research/internal/jobs"
	"github.com/suPer8Hu/market-research/internal/logger"
	"github.com/suPer8Hu/market-research/internal/store/rabbitmq"
	"github.com/suPer8Hu/market-research/internal/telemetry"
)

func main() {
	envFile := flag.String("env", ".env", "path to an optional .env file")
	maxRetries := flag.Int("max-retries", 3, "redeliveries of a task whose store writes failed")
	flag.Parse()

	if err := run(*envFile, *maxRetries); err != nil {
		slog.Error("worker exited", "err", err)
		os.Exit(1)
	}
}

func run(envFile string, maxRetries int) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	log := logger.New(logger.Config{Level: logger.ParseLevel(cfg.LogLevel), Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTelEnabled {
		shutdown, err := telemetry.Setup(ctx, os.Stderr, time.Minute)
		if err != nil {
			return err
		}
		defer func() { _ = shutdown(context.Background()) }()
	}
	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return err
	}

	store, closeStore, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	reg := app.NewRegistry(cfg)
	// the worker only executes; it never dispatches
	runner := jobs.NewRunner(store, app.NewResearcher(cfg, reg), nil,
		jobs.WithTimeout(cfg.ResearchTimeout),
		jobs.WithMetrics(metrics),
		jobs.WithLogger(log),
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         cfg.RabbitURL,
		Queue:       cfg.RabbitQueue,
		Concurrency: cfg.WorkerConcurrency,
		MaxRetries:  maxRetries,
	}, log)
	if err != nil {
		return err
	}
	defer consumer.Close()

	go jobs.RunEvictor(ctx, store, cfg.JobTTL, cfg.JobEvictInterval, log)

	return consumer.Run(ctx, runner.Execute)
}
