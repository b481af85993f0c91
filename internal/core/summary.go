package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateTable maps currency codes to their value relative to Base.
type RateTable struct {
	Base      string                     `json:"base"`
	Rates     map[string]decimal.Decimal `json:"rates"`
	FetchedAt time.Time                  `json:"fetchedAt"`
	// Fallback is set on the static table served when the provider is down.
	Fallback bool `json:"fallback"`
}

// Rate returns the rate for code, treating a missing or zero rate as absent.
func (t RateTable) Rate(code string) (decimal.Decimal, bool) {
	r, ok := t.Rates[code]
	if !ok || r.IsZero() {
		return decimal.Zero, false
	}
	return r, true
}

// FreshAt reports whether the table may still be reused at now.
func (t RateTable) FreshAt(now time.Time, ttl time.Duration) bool {
	return !t.FetchedAt.IsZero() && now.Sub(t.FetchedAt) < ttl
}

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	CategoryID string          `json:"categoryId"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
}

// GoalProgress is the monthly savings goal expressed in the display currency.
type GoalProgress struct {
	GoalID          string          `json:"goalId"`
	Name            string          `json:"name"`
	Target          decimal.Decimal `json:"target"`
	Current         decimal.Decimal `json:"current"`
	Remaining       decimal.Decimal `json:"remaining"` // may be negative once exceeded
	PercentComplete decimal.Decimal `json:"percentComplete"`
	Exceeded        bool            `json:"exceeded"`
}

// DisplayRemaining is Remaining floored at zero.
func (g GoalProgress) DisplayRemaining() decimal.Decimal {
	if g.Remaining.IsNegative() {
		return decimal.Zero
	}
	return g.Remaining
}

// MonthlySummary is the month-to-date dashboard figure set in one currency.
type MonthlySummary struct {
	Year          int              `json:"year"`
	Month         int              `json:"month"` // 1-12
	Currency      string           `json:"currency"`
	TotalIncome   decimal.Decimal  `json:"totalIncome"`
	TotalExpenses decimal.Decimal  `json:"totalExpenses"`
	NetBalance    decimal.Decimal  `json:"netBalance"`
	ByCategory    []CategoryAmount `json:"byCategory,omitempty"`
	Goal          *GoalProgress    `json:"goal,omitempty"`
	Transactions  int              `json:"transactions"`
	// Approximate is set when at least one amount passed through unconverted
	// because its rate was missing.
	Approximate bool `json:"approximate"`
	// Degraded is set when conversion failed and raw amounts were summed.
	Degraded   bool      `json:"degraded"`
	ComputedAt time.Time `json:"computedAt"`
}
