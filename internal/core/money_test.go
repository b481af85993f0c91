package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{".5", "0.5", true},
		{"0", "0", true},
		{" 2.50 ", "2.5", true},
		{"-1", "", false},
		{"+1", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(decimal.RequireFromString("399999.6"), "COP"); got != "COP 400000" {
		t.Fatalf("got %q", got)
	}
	if got := FormatAmount(decimal.RequireFromString("12.345"), "USD"); got != "USD 12.35" {
		t.Fatalf("got %q", got)
	}
}

func TestRateTable(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tbl := RateTable{
		Base:      "COP",
		Rates:     map[string]decimal.Decimal{"USD": decimal.RequireFromString("0.00025"), "XXX": decimal.Zero},
		FetchedAt: now,
	}
	if _, ok := tbl.Rate("USD"); !ok {
		t.Fatalf("USD should be present")
	}
	if _, ok := tbl.Rate("XXX"); ok {
		t.Fatalf("zero rate must be treated as missing")
	}
	if _, ok := tbl.Rate("EUR"); ok {
		t.Fatalf("EUR should be missing")
	}
	if !tbl.FreshAt(now.Add(59*time.Minute), time.Hour) {
		t.Fatalf("table should be fresh before an hour")
	}
	if tbl.FreshAt(now.Add(time.Hour), time.Hour) {
		t.Fatalf("table must expire at exactly one hour")
	}
	if (RateTable{}).FreshAt(now, time.Hour) {
		t.Fatalf("zero table is never fresh")
	}
}

func TestGoalProgressDisplayRemaining(t *testing.T) {
	g := GoalProgress{Remaining: decimal.NewFromInt(-5)}
	if !g.DisplayRemaining().IsZero() {
		t.Fatalf("negative remaining should display as zero")
	}
	g.Remaining = decimal.NewFromInt(7)
	if !g.DisplayRemaining().Equal(decimal.NewFromInt(7)) {
		t.Fatalf("positive remaining should pass through")
	}
}
