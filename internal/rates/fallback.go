package rates

import (
	"time"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
)

// fallbackRates are approximate COP-based rates served while the provider
// is unreachable.
var fallbackRates = map[string]string{
	"COP": "1",
	"USD": "0.00024",
	"EUR": "0.00022",
	"MXN": "0.004",
	"ARS": "0.21",
}

// FallbackTable returns the static table re-based on base. Unknown bases get
// the COP table as is.
func FallbackTable(base string, now time.Time) core.RateTable {
	rates := make(map[string]decimal.Decimal, len(fallbackRates))
	for code, r := range fallbackRates {
		rates[code] = decimal.RequireFromString(r)
	}

	tableBase := core.BaseCurrency
	if pivot, ok := rates[base]; ok && base != core.BaseCurrency {
		for code, r := range rates {
			rates[code] = r.Div(pivot)
		}
		tableBase = base
	}

	return core.RateTable{
		Base:      tableBase,
		Rates:     rates,
		FetchedAt: now,
		Fallback:  true,
	}
}
