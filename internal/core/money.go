// Package core provides money parsing and handling utilities.
//
// Amounts are carried as decimal.Decimal end to end. Rounding only happens
// when an amount is formatted for display.
package core

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// zeroDecimalCurrencies are displayed without minor units.
var zeroDecimalCurrencies = map[string]bool{
	"COP": true,
	"CLP": true,
	"JPY": true,
	"KRW": true,
}

// ParseAmount converts a user-typed decimal string to a non-negative amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs are
// rejected since the transaction kind carries the direction.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("-1")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// DisplayPlaces returns the number of fractional digits shown for a currency.
func DisplayPlaces(currency string) int32 {
	if zeroDecimalCurrencies[currency] {
		return 0
	}
	return 2
}

// FormatAmount rounds an amount for display and prefixes the currency code
// (e.g. "USD 12.34", "COP 400000").
func FormatAmount(d decimal.Decimal, currency string) string {
	return currency + " " + d.StringFixed(DisplayPlaces(currency))
}
