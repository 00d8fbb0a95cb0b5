package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/suPer8Hu/market-research/internal/app"
	"github.com/suPer8Hu/market-research/internal/config"
	"github.com/suPer8Hu/market-research/internal/export"
	"github.com/suPer8Hu/market-research/internal/httpapi"
	"github.com/suPer8Hu/market-research/internal/httpapi/handlers"
	"github.com/suPer8Hu/market-research/internal/jobs"
	"github.com/suPer8Hu/market-research/internal/logger"
	"github.com/suPer8Hu/market-research/internal/store/rabbitmq"
	"github.com/suPer8Hu/market-research/internal/telemetry"
	"github.com/suPer8Hu/market-research/internal/worker"
)

var version = "dev"

func main() {
	envFile := flag.String("env", ".env", "path to an optional .env file")
	flag.Parse()

	if err := run(*envFile); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
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
	runner := jobs.NewRunner(store, app.NewResearcher(cfg, reg), nil,
		jobs.WithTimeout(cfg.ResearchTimeout),
		jobs.WithMetrics(metrics),
		jobs.WithLogger(log),
	)

	// background work outlives individual requests but not the process
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	var pool *worker.Pool
	switch cfg.Dispatcher {
	case "rabbitmq":
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			return err
		}
		defer pub.Close()
		runner.SetDispatcher(pub)
	default:
		pool = worker.NewPool(cfg.WorkerConcurrency, cfg.WorkerQueueSize, log)
		pool.Start(workCtx, runner.Execute)
		runner.SetDispatcher(pool)
	}

	go jobs.RunEvictor(workCtx, store, cfg.JobTTL, cfg.JobEvictInterval, log)

	svc := jobs.NewService(store, runner)
	h := handlers.NewHandler(runner, svc, export.NewAdapter(svc), version, log)
	router := httpapi.NewRouter(h, httpapi.RouterConfig{
		JWTSecret:   cfg.AuthJWTSecret,
		CORSOrigins: cfg.CORSOrigins,
		Log:         log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, "research-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", "addr", cfg.HTTPAddr, "store", cfg.JobStore, "dispatcher", cfg.Dispatcher, "provider", cfg.AIProvider, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "err", err)
	}

	// in-flight research is interrupted and recorded as failed
	cancelWork()
	if pool != nil {
		pool.Shutdown()
	}
	return nil
}
