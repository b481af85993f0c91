package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"finanzas/internal/cli"
	apphttp "finanzas/internal/http"
	applog "finanzas/internal/log"
	"finanzas/internal/services"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()

	app, err := cli.BuildApp(context.Background(), cfg, logger, cli.AppOptions{Publish: true, Export: true})
	if err != nil {
		logger.Error("Failed to initialize application", applog.FieldError, err)
		os.Exit(1)
	}
	app.Caches.StartCleanup(10 * time.Minute)

	refreshCfg := services.DefaultRefreshProcessorConfig()
	if cfg.RefreshInterval > 0 {
		refreshCfg.RefreshInterval = cfg.RefreshInterval
	}
	processor := services.NewRefreshProcessor(app.Dashboard, app.Repo, refreshCfg)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Dashboard:    app.Dashboard,
		Reminders:    app.Reminders,
		Rates:        app.Rates,
		Converter:    app.Converter,
		Transactions: app.Backend.Backend,
		Ready: map[string]apphttp.ReadinessCheck{
			"sqlite": app.Repo.Ping,
		},
		Logger:       logger.WithComponent(applog.ComponentHTTP),
		RateLimitRPM: cfg.RateLimitRPM,
	})

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := processor.Stop(ctx); err != nil {
			logger.Warn("Refresh processor stop error", applog.FieldError, err)
		}
		if err := app.Close(); err != nil {
			logger.Warn("Resource cleanup error", applog.FieldError, err)
		}
	})

	// The processor recomputes once on start.
	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start refresh processor", applog.FieldError, err)
	}

	logger.Info("Starting finanzas server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"display_currency", app.Dashboard.DisplayCurrency())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
