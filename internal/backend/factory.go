package backend

import (
	"context"
	"fmt"

	"finanzas/internal/finance/api"
	"finanzas/internal/finance/memory"
	applog "finanzas/internal/log"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Default(applog.ComponentBackend)
	}
	return &DefaultFactory{logger: logger.WithComponent(applog.ComponentBackend)}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case APIBackend:
		return f.createAPIBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createAPIBackend(ctx context.Context, config Config) (*BackendResult, error) {
	client, err := api.NewClient(api.Config{
		BaseURL: config.APIBaseURL,
		Token:   config.APIToken,
		Timeout: config.APITimeout,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize API client: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized API backend",
		"base_url", config.APIBaseURL,
		"authenticated", config.APIToken != "")

	return &BackendResult{
		Backend:     client,
		Invalidator: client,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store, err := memory.NewFromFiles(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory backend: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized memory backend", "data_directory", dataDir)

	return &BackendResult{Backend: store}, nil
}
