package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
	"finanzas/internal/rates"
)

type staticSource struct {
	table core.RateTable
	err   error
	calls atomic.Int32
}

func (s *staticSource) Rates(context.Context, string) (core.RateTable, error) {
	s.calls.Add(1)
	if s.err != nil {
		return core.RateTable{}, s.err
	}
	return s.table, nil
}

func copTable(rs map[string]string) core.RateTable {
	t := core.RateTable{Base: core.BaseCurrency, Rates: map[string]decimal.Decimal{core.BaseCurrency: decimal.NewFromInt(1)}, FetchedAt: time.Now()}
	for code, r := range rs {
		t.Rates[code] = decimal.RequireFromString(r)
	}
	return t
}

func newConverter(src rates.Source) *rates.Converter {
	return rates.NewConverter(src, nil)
}

var errRatesDown = errors.New("rates down")

type fakeBackend struct {
	mu           sync.Mutex
	transactions []core.Transaction
	wallets      []core.Wallet
	goals        []core.Goal
	categories   []core.Category
	reminders    []core.Reminder
	err          error

	// block, when set, holds the first ListTransactions call until released.
	block   chan struct{}
	entered chan struct{}
	calls   atomic.Int32
}

func (b *fakeBackend) ListTransactions(ctx context.Context, _ int) ([]core.Transaction, error) {
	if b.calls.Add(1) == 1 && b.block != nil {
		close(b.entered)
		select {
		case <-b.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	return append([]core.Transaction(nil), b.transactions...), nil
}

func (b *fakeBackend) ListWallets(context.Context) ([]core.Wallet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wallets, nil
}

func (b *fakeBackend) ListGoals(context.Context) ([]core.Goal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.goals, nil
}

func (b *fakeBackend) ListCategories(context.Context) ([]core.Category, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.categories, nil
}

func (b *fakeBackend) ListReminders(context.Context) ([]core.Reminder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	return b.reminders, nil
}

type memPrefs struct {
	mu   sync.Mutex
	code string
}

func (p *memPrefs) DisplayCurrency(context.Context) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code, p.code != "", nil
}

func (p *memPrefs) SetDisplayCurrency(_ context.Context, code string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.code = code
	return nil
}

type memSnapshots struct {
	mu    sync.Mutex
	saved []core.MonthlySummary
	seqs  []int64

	// block, when set, holds the first SaveSnapshot call until released.
	block   chan struct{}
	entered chan struct{}
	calls   atomic.Int32
}

func (s *memSnapshots) SaveSnapshot(_ context.Context, seq int64, _ string, sum core.MonthlySummary) error {
	if s.calls.Add(1) == 1 && s.block != nil {
		close(s.entered)
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, sum)
	s.seqs = append(s.seqs, seq)
	return nil
}

func (s *memSnapshots) LatestSnapshot(_ context.Context, year, month int, currency string) (core.MonthlySummary, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.saved) - 1; i >= 0; i-- {
		sum := s.saved[i]
		if sum.Year == year && sum.Month == month && sum.Currency == currency {
			return sum, true, nil
		}
	}
	return core.MonthlySummary{}, false, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	seqs []int64
}

func (p *recordingPublisher) PublishSummaryUpdated(_ context.Context, seq int64, _ string, _ core.MonthlySummary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seqs = append(p.seqs, seq)
	return nil
}

type failingExporter struct{ calls atomic.Int32 }

func (e *failingExporter) ExportSummary(context.Context, core.MonthlySummary) error {
	e.calls.Add(1)
	return errors.New("sheets unavailable")
}
