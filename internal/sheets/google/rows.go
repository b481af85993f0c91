package google

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
)

// summaryRow lays out a summary in header order. Amounts are rounded to the
// currency's display places.
func summaryRow(s core.MonthlySummary) []any {
	amount := func(d decimal.Decimal) string { return d.StringFixed(core.DisplayPlaces(s.Currency)) }
	goalTarget, goalRemaining, goalPct := "", "", ""
	if s.Goal != nil {
		goalTarget = amount(s.Goal.Target)
		goalRemaining = amount(s.Goal.DisplayRemaining())
		goalPct = s.Goal.PercentComplete.StringFixed(1)
	}
	return []any{
		s.ComputedAt.UTC().Format(time.RFC3339),
		fmt.Sprintf("%04d-%02d", s.Year, s.Month),
		s.Currency,
		amount(s.TotalIncome),
		amount(s.TotalExpenses),
		amount(s.NetBalance),
		goalTarget,
		goalRemaining,
		goalPct,
		boolCell(s.Approximate),
		boolCell(s.Degraded),
	}
}

func boolCell(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// rowKey identifies a row by everything except its timestamp.
func rowKey(row []string) string {
	if len(row) < 2 {
		return ""
	}
	return strings.Join(row[1:], "|")
}

// inspectRows reports whether the first row is the header and returns the
// key of the last data row.
func inspectRows(values [][]any) (headerOK bool, lastKey string) {
	if len(values) == 0 {
		return false, ""
	}
	first := toStrings(values[0])
	headerOK = len(first) > 0 && strings.EqualFold(strings.TrimSpace(first[0]), fmt.Sprint(header[0]))
	if len(values) == 1 && headerOK {
		return headerOK, ""
	}
	last := toStrings(values[len(values)-1])
	return headerOK, rowKey(normalize(last))
}

// normalize pads a row read back from the sheet, which drops trailing empty
// cells, to the header width.
func normalize(row []string) []string {
	for len(row) < len(header) {
		row = append(row, "")
	}
	for i := range row {
		row[i] = strings.TrimSpace(row[i])
	}
	return row
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = fmt.Sprint(v)
	}
	return out
}
