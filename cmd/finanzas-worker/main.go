package main

import (
	"context"
	"errors"
	"os"
	"time"

	"finanzas/internal/cli"
	applog "finanzas/internal/log"
	"finanzas/internal/services"
	"finanzas/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()
	logger = logger.WithComponent(applog.ComponentWorker)

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	app, err := cli.BuildApp(context.Background(), cfg, logger, cli.AppOptions{Publish: true, Export: true})
	if err != nil {
		logger.Error("Failed to initialize application", applog.FieldError, err)
		os.Exit(1)
	}
	if app.AMQP == nil {
		app.Close()
		logger.Error("AMQP connection could not be established")
		os.Exit(1)
	}
	app.Caches.StartCleanup(10 * time.Minute)

	refreshCfg := services.DefaultRefreshProcessorConfig()
	if cfg.RefreshInterval > 0 {
		refreshCfg.RefreshInterval = cfg.RefreshInterval
	}
	processor := services.NewRefreshProcessor(app.Dashboard, app.Repo, refreshCfg)
	recompute := worker.NewRecomputeWorker(app.Dashboard, app.Backend.Invalidator)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Warn("Refresh processor stop error", applog.FieldError, err)
		}
		if err := app.Close(); err != nil {
			logger.Warn("Resource cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Starting finanzas-worker", "queue", cfg.AMQPQueue, "backend", cfg.DataBackend)

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start refresh processor", applog.FieldError, err)
	}

	go func() {
		if err := app.AMQP.ConsumeInputChanged(ctx, recompute.HandleInputChanged); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
