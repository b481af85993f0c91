// Package services provides business logic and orchestration services.
package services

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/rates"
)

// CurrencyConverter is the conversion dependency of the aggregator.
type CurrencyConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (rates.Conversion, error)
}

// Input is everything one aggregation pass needs.
type Input struct {
	Transactions    []core.Transaction
	Wallets         []core.Wallet
	Categories      []core.Category
	DisplayCurrency string
	Goal            *core.Goal
	Now             time.Time
}

var hundred = decimal.NewFromInt(100)

// Aggregator computes month-to-date totals and savings-goal progress in a
// single display currency.
type Aggregator struct {
	converter CurrencyConverter
	logger    *applog.Logger
}

func NewAggregator(converter CurrencyConverter, logger *applog.Logger) *Aggregator {
	if logger == nil {
		logger = applog.Default(applog.ComponentDashboard)
	}
	return &Aggregator{converter: converter, logger: logger.WithComponent(applog.ComponentDashboard)}
}

// Compute never fails. When the converter returns an error the whole batch
// is recomputed from raw amounts and the result is marked Degraded.
func (a *Aggregator) Compute(ctx context.Context, in Input) core.MonthlySummary {
	display := in.DisplayCurrency
	if display == "" {
		display = core.BaseCurrency
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	summary, err := a.compute(ctx, in, display, now, a.convert)
	if err == nil {
		return summary
	}

	fields := applog.NewFields().
		WithPeriod(now.Year(), int(now.Month())).
		WithOperation(applog.OpAggregate).
		WithError(err)
	fields[applog.FieldCurrency] = display
	a.logger.ErrorContext(ctx, "Conversion failed, falling back to unconverted totals", fields.ToSlice()...)

	summary, _ = a.compute(ctx, in, display, now, passthrough)
	summary.Degraded = true
	return summary
}

type convertFunc func(ctx context.Context, amount decimal.Decimal, from, to string) (rates.Conversion, error)

func (a *Aggregator) convert(ctx context.Context, amount decimal.Decimal, from, to string) (rates.Conversion, error) {
	return a.converter.Convert(ctx, amount, from, to)
}

func passthrough(_ context.Context, amount decimal.Decimal, _, _ string) (rates.Conversion, error) {
	return rates.Conversion{Amount: amount}, nil
}

func (a *Aggregator) compute(ctx context.Context, in Input, display string, now time.Time, convert convertFunc) (core.MonthlySummary, error) {
	summary := core.MonthlySummary{
		Year:          now.Year(),
		Month:         int(now.Month()),
		Currency:      display,
		TotalIncome:   decimal.Zero,
		TotalExpenses: decimal.Zero,
		ComputedAt:    now,
	}

	wallets := make(map[string]core.Wallet, len(in.Wallets))
	for _, w := range in.Wallets {
		wallets[w.ID] = w
	}
	categoryNames := make(map[string]string, len(in.Categories))
	for _, c := range in.Categories {
		categoryNames[c.ID] = c.Name
	}
	byCategory := make(map[string]decimal.Decimal)

	for _, t := range in.Transactions {
		if !t.InMonth(now) {
			continue
		}
		if t.Kind != core.Income && t.Kind != core.Expense {
			continue
		}
		conv, err := convert(ctx, t.Amount, transactionCurrency(t, wallets), display)
		if err != nil {
			return core.MonthlySummary{}, err
		}
		summary.Approximate = summary.Approximate || conv.Approximate
		summary.Transactions++
		if t.Kind == core.Income {
			summary.TotalIncome = summary.TotalIncome.Add(conv.Amount)
			continue
		}
		summary.TotalExpenses = summary.TotalExpenses.Add(conv.Amount)
		byCategory[t.CategoryID] = byCategory[t.CategoryID].Add(conv.Amount)
	}
	summary.NetBalance = summary.TotalIncome.Sub(summary.TotalExpenses)
	summary.ByCategory = sortedCategories(byCategory, categoryNames)

	if in.Goal != nil {
		progress, approx, err := goalProgress(ctx, *in.Goal, summary.NetBalance, display, convert)
		if err != nil {
			return core.MonthlySummary{}, err
		}
		summary.Goal = &progress
		summary.Approximate = summary.Approximate || approx
	}
	return summary, nil
}

// transactionCurrency resolves through the wallet list, then the embedded
// wallet, then COP.
func transactionCurrency(t core.Transaction, wallets map[string]core.Wallet) string {
	if w, ok := wallets[t.WalletID]; ok && w.Currency != "" {
		return w.Currency
	}
	if t.Wallet != nil && t.Wallet.Currency != "" {
		return t.Wallet.Currency
	}
	return core.BaseCurrency
}

func goalProgress(ctx context.Context, g core.Goal, net decimal.Decimal, display string, convert convertFunc) (core.GoalProgress, bool, error) {
	target, err := convert(ctx, g.TargetAmount, core.BaseCurrency, display)
	if err != nil {
		return core.GoalProgress{}, false, err
	}
	current, err := convert(ctx, g.CurrentAmount, core.BaseCurrency, display)
	if err != nil {
		return core.GoalProgress{}, false, err
	}

	p := core.GoalProgress{
		GoalID:          g.ID,
		Name:            g.Name,
		Target:          target.Amount,
		Current:         current.Amount,
		Remaining:       target.Amount.Sub(net),
		PercentComplete: decimal.Zero,
		Exceeded:        net.GreaterThan(target.Amount),
	}
	if target.Amount.IsPositive() {
		pct := net.Div(target.Amount).Mul(hundred)
		switch {
		case pct.IsNegative():
			pct = decimal.Zero
		case pct.GreaterThan(hundred):
			pct = hundred
		}
		p.PercentComplete = pct
	}
	return p, target.Approximate || current.Approximate, nil
}

func sortedCategories(totals map[string]decimal.Decimal, names map[string]string) []core.CategoryAmount {
	if len(totals) == 0 {
		return nil
	}
	out := make([]core.CategoryAmount, 0, len(totals))
	for id, amount := range totals {
		name := names[id]
		if name == "" {
			name = id
		}
		out = append(out, core.CategoryAmount{CategoryID: id, Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}
		return out[i].CategoryID < out[j].CategoryID
	})
	return out
}
