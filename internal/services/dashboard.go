package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"finanzas/internal/core"
	"finanzas/internal/finance"
	applog "finanzas/internal/log"
)

// Recompute reasons. The first four mirror the input.changed event kinds.
const (
	ReasonHistoryLoaded   = "history_loaded"
	ReasonWalletsLoaded   = "wallets_loaded"
	ReasonCurrencyChanged = "currency_changed"
	ReasonMonthChanged    = "month_changed"
	ReasonStartup         = "startup"
	ReasonManual          = "manual"
	ReasonPeriodic        = "periodic"
)

const DefaultHistoryLimit = 200

type (
	// Preferences persists the user's display currency.
	Preferences interface {
		DisplayCurrency(ctx context.Context) (string, bool, error)
		SetDisplayCurrency(ctx context.Context, code string) error
	}

	// SnapshotStore keeps applied summaries for the month-over-month trend.
	SnapshotStore interface {
		SaveSnapshot(ctx context.Context, seq int64, reason string, s core.MonthlySummary) error
		LatestSnapshot(ctx context.Context, year, month int, currency string) (core.MonthlySummary, bool, error)
	}

	// SummaryPublisher announces applied summaries, e.g. over AMQP.
	SummaryPublisher interface {
		PublishSummaryUpdated(ctx context.Context, seq int64, reason string, s core.MonthlySummary) error
	}

	// SummaryExporter writes applied summaries to an external sheet.
	SummaryExporter interface {
		ExportSummary(ctx context.Context, s core.MonthlySummary) error
	}
)

// Trend compares the current net balance with the previous month's last
// recorded one in the same currency.
type Trend struct {
	PreviousNet decimal.Decimal `json:"previousNet"`
	Change      decimal.Decimal `json:"change"`
}

// State is the applied dashboard state.
type State struct {
	Seq     int64               `json:"seq"`
	Reason  string              `json:"reason"`
	Summary core.MonthlySummary `json:"summary"`
	Trend   *Trend              `json:"trend,omitempty"`
}

var ErrNotComputed = errors.New("summary not computed yet")

type DashboardConfig struct {
	HistoryLimit    int
	DisplayCurrency string
	Now             func() time.Time
}

type DashboardOption func(*Dashboard)

func WithPreferences(p Preferences) DashboardOption {
	return func(d *Dashboard) { d.prefs = p }
}

func WithSnapshots(s SnapshotStore) DashboardOption {
	return func(d *Dashboard) { d.snapshots = s }
}

func WithPublisher(p SummaryPublisher) DashboardOption {
	return func(d *Dashboard) { d.publisher = p }
}

func WithExporter(e SummaryExporter) DashboardOption {
	return func(d *Dashboard) { d.exporter = e }
}

func WithDashboardLogger(l *applog.Logger) DashboardOption {
	return func(d *Dashboard) { d.logger = l.WithComponent(applog.ComponentDashboard) }
}

// Dashboard loads inputs from the finance backend and keeps the latest
// summary. Every pass takes a sequence number when it starts and its result
// is applied only if no later pass has been applied already.
type Dashboard struct {
	backend    finance.Backend
	aggregator *Aggregator
	config     DashboardConfig

	prefs     Preferences
	snapshots SnapshotStore
	publisher SummaryPublisher
	exporter  SummaryExporter
	logger    *applog.Logger

	next atomic.Int64

	mu       sync.RWMutex
	currency string
	state    State
	month    time.Month
	year     int

	// effectsMu orders side effects by sequence; effectsSeq is the last
	// pass whose side effects started.
	effectsMu  sync.Mutex
	effectsSeq int64
}

func NewDashboard(backend finance.Backend, aggregator *Aggregator, config DashboardConfig, opts ...DashboardOption) *Dashboard {
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = DefaultHistoryLimit
	}
	if config.DisplayCurrency == "" {
		config.DisplayCurrency = core.BaseCurrency
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	d := &Dashboard{
		backend:    backend,
		aggregator: aggregator,
		config:     config,
		currency:   config.DisplayCurrency,
		logger:     applog.Default(applog.ComponentDashboard),
	}
	for _, opt := range opts {
		opt(d)
	}
	now := config.Now()
	d.year, d.month = now.Year(), now.Month()
	return d
}

// LoadPreferences restores the persisted display currency, if any.
func (d *Dashboard) LoadPreferences(ctx context.Context) error {
	if d.prefs == nil {
		return nil
	}
	code, ok, err := d.prefs.DisplayCurrency(ctx)
	if err != nil {
		return fmt.Errorf("load display currency: %w", err)
	}
	if ok && core.ValidCurrency(code) {
		d.mu.Lock()
		d.currency = code
		d.mu.Unlock()
	}
	return nil
}

func (d *Dashboard) DisplayCurrency() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.currency
}

// Current returns the latest applied state.
func (d *Dashboard) Current() (State, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.state.Seq == 0 {
		return State{}, ErrNotComputed
	}
	return d.state, nil
}

// SetDisplayCurrency persists the new currency and recomputes.
func (d *Dashboard) SetDisplayCurrency(ctx context.Context, code string) (State, error) {
	code = core.NormalizeCurrency(code)
	if !core.ValidCurrency(code) {
		return State{}, core.ErrInvalidCurrency
	}
	if d.prefs != nil {
		if err := d.prefs.SetDisplayCurrency(ctx, code); err != nil {
			return State{}, fmt.Errorf("save display currency: %w", err)
		}
	}
	d.mu.Lock()
	d.currency = code
	d.mu.Unlock()
	return d.Recompute(ctx, ReasonCurrencyChanged)
}

type inputs struct {
	transactions []core.Transaction
	wallets      []core.Wallet
	goals        []core.Goal
	categories   []core.Category
}

func (d *Dashboard) load(ctx context.Context) (inputs, error) {
	var in inputs
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, err := d.backend.ListTransactions(gctx, d.config.HistoryLimit)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		in.transactions = txs
		return nil
	})
	g.Go(func() error {
		ws, err := d.backend.ListWallets(gctx)
		if err != nil {
			return fmt.Errorf("list wallets: %w", err)
		}
		in.wallets = ws
		return nil
	})
	g.Go(func() error {
		goals, err := d.backend.ListGoals(gctx)
		if err != nil {
			return fmt.Errorf("list goals: %w", err)
		}
		in.goals = goals
		return nil
	})
	g.Go(func() error {
		cats, err := d.backend.ListCategories(gctx)
		if err != nil {
			// Categories only label the breakdown.
			d.logger.WarnContext(gctx, "Failed to list categories", applog.FieldError, err)
			return nil
		}
		in.categories = cats
		return nil
	})
	if err := g.Wait(); err != nil {
		return inputs{}, err
	}
	return in, nil
}

// Recompute runs one aggregation pass. Stale passes are discarded and the
// returned state is whatever is applied afterwards. Load failures keep the
// previous summary.
func (d *Dashboard) Recompute(ctx context.Context, reason string) (State, error) {
	seq := d.next.Add(1)
	currency := d.DisplayCurrency()
	now := d.config.Now()

	in, err := d.load(ctx)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to load dashboard inputs",
			applog.FieldSequence, seq,
			applog.FieldReason, reason,
			applog.FieldError, err)
		return d.currentOrEmpty(), fmt.Errorf("recompute: %w", err)
	}

	var goal *core.Goal
	if g, ok := core.SelectMonthlyGoal(in.goals); ok {
		goal = &g
	}
	summary := d.aggregator.Compute(ctx, Input{
		Transactions:    in.transactions,
		Wallets:         in.wallets,
		Categories:      in.categories,
		DisplayCurrency: currency,
		Goal:            goal,
		Now:             now,
	})

	next := State{Seq: seq, Reason: reason, Summary: summary, Trend: d.trend(ctx, summary)}
	if !d.apply(next) {
		d.logger.DebugContext(ctx, "Discarding stale summary",
			applog.FieldSequence, seq,
			applog.FieldReason, reason)
		return d.currentOrEmpty(), nil
	}

	d.logger.InfoContext(ctx, "Summary applied",
		applog.FieldSequence, seq,
		applog.FieldReason, reason,
		applog.FieldCurrency, summary.Currency,
		applog.FieldCount, summary.Transactions)
	d.afterApply(ctx, next)
	return next, nil
}

func (d *Dashboard) apply(next State) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if next.Seq <= d.state.Seq {
		return false
	}
	d.state = next
	return true
}

func (d *Dashboard) currentOrEmpty() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Dashboard) trend(ctx context.Context, s core.MonthlySummary) *Trend {
	if d.snapshots == nil {
		return nil
	}
	prev := time.Date(s.Year, time.Month(s.Month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	last, ok, err := d.snapshots.LatestSnapshot(ctx, prev.Year(), int(prev.Month()), s.Currency)
	if err != nil {
		d.logger.WarnContext(ctx, "Failed to read previous snapshot", applog.FieldError, err)
		return nil
	}
	if !ok {
		return nil
	}
	return &Trend{PreviousNet: last.NetBalance, Change: s.NetBalance.Sub(last.NetBalance)}
}

// afterApply runs the best-effort side effects of an applied summary. Passes
// run them one at a time in sequence order; a pass that has been superseded
// stops before its next step so the newer summary is the last one written.
func (d *Dashboard) afterApply(ctx context.Context, st State) {
	d.effectsMu.Lock()
	defer d.effectsMu.Unlock()
	if st.Seq <= d.effectsSeq {
		return
	}
	d.effectsSeq = st.Seq

	if d.snapshots != nil && !d.superseded(ctx, st.Seq) {
		if err := d.snapshots.SaveSnapshot(ctx, st.Seq, st.Reason, st.Summary); err != nil {
			d.logger.ErrorContext(ctx, "Failed to save snapshot", applog.FieldSequence, st.Seq, applog.FieldError, err)
		}
	}
	if d.publisher != nil && !d.superseded(ctx, st.Seq) {
		if err := d.publisher.PublishSummaryUpdated(ctx, st.Seq, st.Reason, st.Summary); err != nil {
			d.logger.ErrorContext(ctx, "Failed to publish summary", applog.FieldSequence, st.Seq, applog.FieldError, err)
		}
	}
	if d.exporter != nil && !d.superseded(ctx, st.Seq) {
		if err := d.exporter.ExportSummary(ctx, st.Summary); err != nil {
			d.logger.ErrorContext(ctx, "Failed to export summary", applog.FieldSequence, st.Seq, applog.FieldError, err)
		}
	}
}

// superseded reports whether a pass later than seq has been applied.
func (d *Dashboard) superseded(ctx context.Context, seq int64) bool {
	if cur := d.currentOrEmpty().Seq; cur > seq {
		d.logger.DebugContext(ctx, "Skipping side effects of superseded summary",
			applog.FieldSequence, seq,
			"applied_sequence", cur)
		return true
	}
	return false
}

// CheckMonth recomputes when now falls in a different month than the last
// check. It reports whether a recompute was triggered.
func (d *Dashboard) CheckMonth(ctx context.Context, now time.Time) bool {
	d.mu.Lock()
	changed := now.Year() != d.year || now.Month() != d.month
	d.year, d.month = now.Year(), now.Month()
	d.mu.Unlock()
	if !changed {
		return false
	}
	if _, err := d.Recompute(ctx, ReasonMonthChanged); err != nil {
		d.logger.WarnContext(ctx, "Month change recompute failed", applog.FieldError, err)
	}
	return true
}

// WatchMonth calls CheckMonth on every tick until ctx is done or tick closes.
func (d *Dashboard) WatchMonth(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case now, ok := <-tick:
			if !ok {
				return
			}
			d.CheckMonth(ctx, now)
		}
	}
}
