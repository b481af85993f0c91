package cli

import (
	"context"
	"errors"
	"fmt"

	"finanzas/internal/amqp"
	"finanzas/internal/backend"
	"finanzas/internal/cache"
	"finanzas/internal/config"
	applog "finanzas/internal/log"
	"finanzas/internal/rates"
	"finanzas/internal/services"
	gsheet "finanzas/internal/sheets/google"
	"finanzas/internal/storage"
)

// App holds the wired components shared by every binary.
type App struct {
	Config    *config.Config
	Logger    *applog.Logger
	Backend   *backend.BackendResult
	Rates     *rates.Cache
	Converter *rates.Converter
	Dashboard *services.Dashboard
	Reminders *services.Reminders
	Repo      *storage.SQLiteRepository
	AMQP      *amqp.Client
	Exporter  *gsheet.Exporter
	Caches    *cache.Manager
}

// AppOptions selects the optional integrations a binary wants.
type AppOptions struct {
	// Publish announces applied summaries on AMQP when AMQP_URL is set.
	Publish bool
	// Export appends applied summaries to Google Sheets when configured.
	Export bool
}

// BuildApp wires backend, rates, storage and the dashboard from cfg.
// Optional integrations that fail to start are logged and skipped.
func BuildApp(ctx context.Context, cfg *config.Config, logger *applog.Logger, opts AppOptions) (*App, error) {
	app := &App{Config: cfg, Logger: logger, Caches: cache.NewManager()}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create backend: %w", err)
	}
	app.Backend = res

	app.Rates = rates.NewCache(
		rates.NewHTTPProvider(cfg.RatesBaseURL, cfg.RatesTimeout),
		rates.WithTTL(cfg.RatesTTL),
		rates.WithLogger(logger))
	app.Caches.Register("rates", app.Rates.Cleaner())
	app.Converter = rates.NewConverter(app.Rates, logger)

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	app.Repo = repo

	dashOpts := []services.DashboardOption{
		services.WithPreferences(repo),
		services.WithSnapshots(repo),
		services.WithDashboardLogger(logger),
	}

	if opts.Publish && cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.WarnContext(ctx, "AMQP unavailable, summaries will not be published", applog.FieldError, err)
		} else {
			app.AMQP = client
			dashOpts = append(dashOpts, services.WithPublisher(client))
		}
	}

	if opts.Export && cfg.ExportEnabled() {
		exp, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSummarySheet,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.WarnContext(ctx, "Google Sheets export disabled", applog.FieldError, err)
		} else {
			app.Exporter = exp
			dashOpts = append(dashOpts, services.WithExporter(exp))
			logger.InfoContext(ctx, "Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
		}
	}

	aggregator := services.NewAggregator(app.Converter, logger)
	app.Dashboard = services.NewDashboard(res.Backend, aggregator, services.DashboardConfig{
		HistoryLimit:    cfg.HistoryLimit,
		DisplayCurrency: cfg.DisplayCurrency,
	}, dashOpts...)
	if err := app.Dashboard.LoadPreferences(ctx); err != nil {
		logger.WarnContext(ctx, "Could not restore display currency", applog.FieldError, err)
	}

	app.Reminders = services.NewReminders(res.Backend, app.Converter, logger)
	return app, nil
}

// Close releases every resource the app opened.
func (a *App) Close() error {
	var errs []error
	a.Caches.Stop()
	if a.AMQP != nil {
		errs = append(errs, a.AMQP.Close())
	}
	if a.Repo != nil {
		errs = append(errs, a.Repo.Close())
	}
	if a.Backend != nil && a.Backend.Cleanup != nil {
		errs = append(errs, a.Backend.Cleanup())
	}
	return errors.Join(errs...)
}
