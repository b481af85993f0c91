package rates

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
)

// Conversion is a converted amount. Approximate is set when the needed rate
// was missing and the amount passed through unchanged.
type Conversion struct {
	Amount      decimal.Decimal
	Approximate bool
}

// Converter converts amounts between currencies by bridging through COP.
type Converter struct {
	source Source
	logger *applog.Logger
}

func NewConverter(source Source, logger *applog.Logger) *Converter {
	if logger == nil {
		logger = applog.Default(applog.ComponentRates)
	}
	return &Converter{source: source, logger: logger.WithComponent(applog.ComponentRates)}
}

// Convert converts amount from one currency to another. Identical codes
// short-circuit without touching the rate source. A missing or zero rate
// yields the original amount (fail-open). No rounding is applied.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (Conversion, error) {
	if from == to {
		return Conversion{Amount: amount}, nil
	}

	table, err := c.source.Rates(ctx, core.BaseCurrency)
	if err != nil {
		return Conversion{}, fmt.Errorf("load rates: %w", err)
	}

	converted, ok := Apply(table, amount, from, to)
	if !ok {
		c.logger.DebugContext(ctx, "Missing rate, amount left unconverted",
			applog.FieldFrom, from,
			applog.FieldTo, to)
		return Conversion{Amount: amount, Approximate: true}, nil
	}
	return Conversion{Amount: converted}, nil
}

// Apply converts using a COP-based table. The second result is false when a
// needed rate is missing or zero.
func Apply(table core.RateTable, amount decimal.Decimal, from, to string) (decimal.Decimal, bool) {
	if from == to {
		return amount, true
	}
	switch {
	case to == core.BaseCurrency:
		r, ok := table.Rate(from)
		if !ok {
			return amount, false
		}
		return amount.Div(r), true
	case from == core.BaseCurrency:
		r, ok := table.Rate(to)
		if !ok {
			return amount, false
		}
		return amount.Mul(r), true
	default:
		rf, okFrom := table.Rate(from)
		rt, okTo := table.Rate(to)
		if !okFrom || !okTo {
			return amount, false
		}
		return amount.Div(rf).Mul(rt), true
	}
}
