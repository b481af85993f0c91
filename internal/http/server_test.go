package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/rates"
	"finanzas/internal/services"
)

var errBackendDown = errors.New("backend down")

type fakeDashboard struct {
	currency string
	state    services.State
	failLoad bool
	calls    int
}

func (d *fakeDashboard) Current() (services.State, error) {
	if d.state.Seq == 0 {
		return services.State{}, services.ErrNotComputed
	}
	return d.state, nil
}

func (d *fakeDashboard) Recompute(_ context.Context, reason string) (services.State, error) {
	d.calls++
	if d.failLoad {
		return d.state, errBackendDown
	}
	d.state = services.State{
		Seq:    d.state.Seq + 1,
		Reason: reason,
		Summary: core.MonthlySummary{
			Year: 2025, Month: 10, Currency: d.currency,
			TotalIncome: decimal.NewFromInt(100), NetBalance: decimal.NewFromInt(100),
		},
	}
	return d.state, nil
}

func (d *fakeDashboard) SetDisplayCurrency(ctx context.Context, code string) (services.State, error) {
	code = core.NormalizeCurrency(code)
	if !core.ValidCurrency(code) {
		return services.State{}, core.ErrInvalidCurrency
	}
	d.currency = code
	return d.Recompute(ctx, services.ReasonCurrencyChanged)
}

func (d *fakeDashboard) DisplayCurrency() string { return d.currency }

type staticRates struct{ table core.RateTable }

func (s staticRates) Rates(context.Context, string) (core.RateTable, error) { return s.table, nil }

type fakeReminders struct {
	gotHorizon time.Duration
	gotDisplay string
}

func (f *fakeReminders) Upcoming(_ context.Context, now time.Time, horizon time.Duration, display string) ([]core.ReminderOccurrence, error) {
	f.gotHorizon, f.gotDisplay = horizon, display
	return []core.ReminderOccurrence{{
		Reminder: core.Reminder{ID: "r1", Name: "<i>Internet</i>"},
		DueDate:  core.Date{Time: now.AddDate(0, 0, 2)},
		Amount:   decimal.NewFromInt(80000),
		Currency: display,
		DaysLeft: 2,
	}}, nil
}

type fakeTransactions struct{ txs []core.Transaction }

func (f fakeTransactions) ListTransactions(_ context.Context, _ int) ([]core.Transaction, error) {
	out := make([]core.Transaction, len(f.txs))
	copy(out, f.txs)
	return out, nil
}

func newTestServer(t *testing.T, dash *fakeDashboard, ready map[string]ReadinessCheck) (*Server, *fakeReminders) {
	t.Helper()
	src := staticRates{table: core.RateTable{
		Base:  "COP",
		Rates: map[string]decimal.Decimal{"COP": decimal.NewFromInt(1), "USD": decimal.RequireFromString("0.00025")},
	}}
	rem := &fakeReminders{}
	logger := applog.New(applog.Config{Output: &bytes.Buffer{}})
	srv := NewServer(":0", Deps{
		Dashboard: dash,
		Reminders: rem,
		Rates:     src,
		Converter: rates.NewConverter(src, logger),
		Transactions: fakeTransactions{txs: []core.Transaction{
			{ID: "t1", Description: "old", Date: core.NewDate(2025, 10, 1)},
			{ID: "t2", Description: "<script>x()</script>Dinner", Date: core.NewDate(2025, 10, 9)},
		}},
		Ready:        ready,
		Logger:       logger,
		RateLimitRPM: 60,
		Now:          func() time.Time { return time.Date(2025, 10, 15, 12, 0, 0, 0, time.UTC) },
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, rem
}

func do(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, r)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t, &fakeDashboard{currency: "COP"}, map[string]ReadinessCheck{
		"sqlite": func(context.Context) error { return nil },
	})
	if rec := do(srv, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rec.Code)
	}
	rec := do(srv, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status=%d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("X-Request-ID") == "" {
		t.Errorf("missing middleware headers: %v", rec.Header())
	}

	failing, _ := newTestServer(t, &fakeDashboard{currency: "COP"}, map[string]ReadinessCheck{
		"sqlite": func(context.Context) error { return errors.New("locked") },
	})
	rec = do(failing, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "locked") {
		t.Errorf("readyz failing check: %d %s", rec.Code, rec.Body.String())
	}
}

func TestGetSummaryComputesOnFirstUse(t *testing.T) {
	dash := &fakeDashboard{currency: "COP"}
	srv, _ := newTestServer(t, dash, nil)

	rec := do(srv, http.MethodGet, "/api/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	st := decode[services.State](t, rec)
	if st.Seq != 1 || st.Summary.Currency != "COP" || !st.Summary.TotalIncome.Equal(decimal.NewFromInt(100)) {
		t.Errorf("unexpected state %+v", st)
	}

	do(srv, http.MethodGet, "/api/summary", "")
	if dash.calls != 1 {
		t.Errorf("second GET should serve the applied state, recomputes=%d", dash.calls)
	}
}

func TestSummaryBackendFailure(t *testing.T) {
	dash := &fakeDashboard{currency: "COP", failLoad: true}
	srv, _ := newTestServer(t, dash, nil)

	if rec := do(srv, http.MethodGet, "/api/summary", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before any summary, got %d", rec.Code)
	}

	dash.failLoad = false
	do(srv, http.MethodPost, "/api/summary/recompute", "")
	dash.failLoad = true

	rec := do(srv, http.MethodPost, "/api/summary/recompute", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	body := decode[struct {
		Error string         `json:"error"`
		State services.State `json:"state"`
	}](t, rec)
	if body.State.Seq != 1 {
		t.Errorf("previous state should be returned, got %+v", body.State)
	}
}

func TestSetDisplayCurrency(t *testing.T) {
	dash := &fakeDashboard{currency: "COP"}
	srv, _ := newTestServer(t, dash, nil)

	rec := do(srv, http.MethodPut, "/api/preferences/currency", `{"currency":"usd"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	st := decode[services.State](t, rec)
	if st.Summary.Currency != "USD" || st.Reason != services.ReasonCurrencyChanged {
		t.Errorf("unexpected state %+v", st)
	}

	rec = do(srv, http.MethodGet, "/api/preferences/currency", "")
	if got := decode[map[string]string](t, rec)["currency"]; got != "USD" {
		t.Errorf("currency = %q", got)
	}

	for _, body := range []string{`{"currency":"dollars"}`, `{}`} {
		if rec := do(srv, http.MethodPut, "/api/preferences/currency", body); rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("body %s: expected 422, got %d", body, rec.Code)
		}
	}
	if rec := do(srv, http.MethodPut, "/api/preferences/currency", `{"currency":`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON: expected 400, got %d", rec.Code)
	}
}

func TestRatesAndConvert(t *testing.T) {
	srv, _ := newTestServer(t, &fakeDashboard{currency: "COP"}, nil)

	rec := do(srv, http.MethodGet, "/api/rates", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"USD":"0.00025"`) {
		t.Errorf("rates: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(srv, http.MethodGet, "/api/rates?base=xx", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("invalid base: %d", rec.Code)
	}

	rec = do(srv, http.MethodGet, "/api/convert?amount=100&from=USD", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("convert: %d %s", rec.Code, rec.Body.String())
	}
	conv := decode[conversionResponse](t, rec)
	if conv.To != "COP" || conv.Result != "400000" || conv.Display != "COP 400000" || conv.Approximate {
		t.Errorf("unexpected conversion %+v", conv)
	}

	conv = decode[conversionResponse](t, do(srv, http.MethodGet, "/api/convert?amount=5&from=JPY&to=COP", ""))
	if !conv.Approximate || conv.Result != "5" {
		t.Errorf("missing rate should pass through, got %+v", conv)
	}

	for _, target := range []string{"/api/convert?amount=-1&from=USD", "/api/convert?amount=1", "/api/convert?amount=1&from=USD&to=X"} {
		if rec := do(srv, http.MethodGet, target, ""); rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: expected 422, got %d", target, rec.Code)
		}
	}
}

func TestReminders(t *testing.T) {
	srv, rem := newTestServer(t, &fakeDashboard{currency: "EUR"}, nil)

	rec := do(srv, http.MethodGet, "/api/reminders?days=14", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if rem.gotHorizon != 14*24*time.Hour || rem.gotDisplay != "EUR" {
		t.Errorf("horizon=%v display=%s", rem.gotHorizon, rem.gotDisplay)
	}
	if strings.Contains(rec.Body.String(), "<i>") {
		t.Errorf("reminder name not sanitized: %s", rec.Body.String())
	}

	do(srv, http.MethodGet, "/api/reminders", "")
	if rem.gotHorizon != services.DefaultReminderHorizon {
		t.Errorf("default horizon = %v", rem.gotHorizon)
	}
	if rec := do(srv, http.MethodGet, "/api/reminders?days=0", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("days=0: expected 400, got %d", rec.Code)
	}
}

func TestTransactionsSanitizedNewestFirst(t *testing.T) {
	srv, _ := newTestServer(t, &fakeDashboard{currency: "COP"}, nil)

	rec := do(srv, http.MethodGet, "/api/transactions?limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	txs := decode[[]core.Transaction](t, rec)
	if len(txs) != 1 || txs[0].ID != "t2" || txs[0].Description != "Dinner" {
		t.Errorf("unexpected transactions %+v", txs)
	}
}

func TestProbeBlockedAndUnknownRoute(t *testing.T) {
	srv, _ := newTestServer(t, &fakeDashboard{currency: "COP"}, nil)

	if rec := do(srv, http.MethodGet, "/.git/config", ""); rec.Code != http.StatusNotFound {
		t.Errorf("probe: %d", rec.Code)
	}
	rec := do(srv, http.MethodGet, "/api/nope", "")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), `"error"`) {
		t.Errorf("unknown route: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(srv, http.MethodDelete, "/api/summary", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method: %d", rec.Code)
	}
}

func TestMutationsAreRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, &fakeDashboard{currency: "COP"}, nil)

	limited := false
	for i := 0; i < 30; i++ {
		if rec := do(srv, http.MethodPost, "/api/summary/recompute", ""); rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("expected POST burst to be limited")
	}
	if rec := do(srv, http.MethodGet, "/api/summary", ""); rec.Code != http.StatusOK {
		t.Errorf("GET should not be limited, got %d", rec.Code)
	}
}
