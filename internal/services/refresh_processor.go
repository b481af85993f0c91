package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	applog "finanzas/internal/log"
)

// RefreshProcessorConfig holds configuration for the refresh processor
type RefreshProcessorConfig struct {
	// CheckInterval is how often the month boundary is checked (default: 1m)
	CheckInterval time.Duration

	// RefreshInterval forces a recompute even without input changes (default: 15m)
	RefreshInterval time.Duration

	// CleanupInterval is how often old snapshots are pruned (default: 24h)
	CleanupInterval time.Duration

	// Retention is how long snapshots are kept (default: 400 days)
	Retention time.Duration
}

func DefaultRefreshProcessorConfig() RefreshProcessorConfig {
	return RefreshProcessorConfig{
		CheckInterval:   time.Minute,
		RefreshInterval: 15 * time.Minute,
		CleanupInterval: 24 * time.Hour,
		Retention:       400 * 24 * time.Hour,
	}
}

// SnapshotPruner removes snapshots older than a cutoff.
type SnapshotPruner interface {
	PruneSnapshots(ctx context.Context, before time.Time) (int64, error)
}

// RefreshProcessor keeps the dashboard current in long-running processes:
// it recomputes on month change and periodically, and prunes old snapshots.
type RefreshProcessor struct {
	dashboard *Dashboard
	pruner    SnapshotPruner
	config    RefreshProcessorConfig
	logger    *applog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewRefreshProcessor(dashboard *Dashboard, pruner SnapshotPruner, config RefreshProcessorConfig) *RefreshProcessor {
	return &RefreshProcessor{
		dashboard: dashboard,
		pruner:    pruner,
		config:    config,
		logger:    applog.Default(applog.ComponentWorker),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *RefreshProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("refresh processor is already running")
	}
	if p.dashboard == nil {
		p.mu.Unlock()
		return fmt.Errorf("refresh processor has no dashboard")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	p.logger.InfoContext(ctx, "Refresh processor started",
		"check_interval", p.config.CheckInterval,
		"refresh_interval", p.config.RefreshInterval)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *RefreshProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		p.logger.InfoContext(ctx, "Refresh processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Refresh processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *RefreshProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *RefreshProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	checkTicker := time.NewTicker(p.config.CheckInterval)
	defer checkTicker.Stop()
	refreshTicker := time.NewTicker(p.config.RefreshInterval)
	defer refreshTicker.Stop()
	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	p.refresh(ctx, ReasonStartup)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case now := <-checkTicker.C:
			p.dashboard.CheckMonth(ctx, now)
		case <-refreshTicker.C:
			p.refresh(ctx, ReasonPeriodic)
		case now := <-cleanupTicker.C:
			p.cleanup(ctx, now)
		}
	}
}

func (p *RefreshProcessor) refresh(ctx context.Context, reason string) {
	if _, err := p.dashboard.Recompute(ctx, reason); err != nil {
		p.logger.WarnContext(ctx, "Periodic recompute failed", applog.FieldReason, reason, applog.FieldError, err)
	}
}

func (p *RefreshProcessor) cleanup(ctx context.Context, now time.Time) {
	if p.pruner == nil {
		return
	}
	n, err := p.pruner.PruneSnapshots(ctx, now.Add(-p.config.Retention))
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to prune snapshots", applog.FieldError, err)
		return
	}
	if n > 0 {
		p.logger.InfoContext(ctx, "Pruned snapshots", applog.FieldCount, n)
	}
}
