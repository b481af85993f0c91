package http

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"finanzas/internal/core"
	applog "finanzas/internal/log"
	"finanzas/internal/middleware/security"
	"finanzas/internal/services"
)

const (
	defaultTransactionLimit = 20
	maxTransactionLimit     = 200
	readyTimeout            = 2 * time.Second
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(s.deps.Ready))
	for name := range s.deps.Ready {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	ready := true
	for _, name := range names {
		if err := s.deps.Ready[name](ctx); err != nil {
			ready = false
			checks[name] = err.Error()
			applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed", "check", name, applog.FieldError, err)
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	NewJSONResponse().Status(status).Body(map[string]any{"ready": ready, "checks": checks}).Write(w)
}

// handleGetSummary returns the applied state, computing it on first use.
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Dashboard.Current()
	if errors.Is(err, services.ErrNotComputed) {
		st, err = s.deps.Dashboard.Recompute(r.Context(), services.ReasonManual)
	}
	if err != nil {
		s.writeRecomputeError(w, r, st, err)
		return
	}
	NewJSONResponse().Body(st).Write(w)
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Dashboard.Recompute(r.Context(), services.ReasonManual)
	if err != nil {
		s.writeRecomputeError(w, r, st, err)
		return
	}
	NewJSONResponse().Body(st).Write(w)
}

// writeRecomputeError reports a failed load. The last applied state, if
// any, is returned alongside so clients can keep showing it.
func (s *Server) writeRecomputeError(w http.ResponseWriter, r *http.Request, st services.State, err error) {
	applog.LogError(r.Context(), "Dashboard recompute failed", err, applog.ComponentHTTP, applog.OpRecompute, nil)
	if st.Seq == 0 {
		ServiceUnavailableError("summary unavailable: finance backend unreachable").Write(w)
		return
	}
	BadGatewayError("finance backend unreachable, showing last summary", st).Write(w)
}

func (s *Server) handleGetCurrency(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"currency": s.deps.Dashboard.DisplayCurrency()}).Write(w)
}

func (s *Server) handleSetCurrency(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	code := p.Get("currency")
	if code == "" {
		UnprocessableEntityError("currency is required").Write(w)
		return
	}

	st, err := s.deps.Dashboard.SetDisplayCurrency(r.Context(), code)
	switch {
	case errors.Is(err, core.ErrInvalidCurrency):
		UnprocessableEntityError("invalid currency code").Write(w)
	case err != nil && st.Seq == 0:
		applog.LogError(r.Context(), "Set display currency failed", err, applog.ComponentHTTP, applog.OpRecompute, nil)
		InternalServerError("could not change display currency").Write(w)
	case err != nil:
		s.writeRecomputeError(w, r, st, err)
	default:
		NewJSONResponse().Body(st).Write(w)
	}
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	base, err := ParseCurrencyParam(r.URL.Query().Get("base"), core.BaseCurrency)
	if err != nil {
		UnprocessableEntityError("invalid base currency").Write(w)
		return
	}
	table, err := s.deps.Rates.Rates(r.Context(), base)
	if err != nil {
		applog.LogError(r.Context(), "Rates lookup failed", err, applog.ComponentHTTP, applog.OpFetch,
			applog.NewFields().WithConversion(base, ""))
		InternalServerError("rates unavailable").Write(w)
		return
	}
	NewJSONResponse().Body(table).Write(w)
}

type conversionResponse struct {
	Amount      string `json:"amount"`
	From        string `json:"from"`
	To          string `json:"to"`
	Result      string `json:"result"`
	Display     string `json:"display"`
	Approximate bool   `json:"approximate"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := core.ParseAmount(q.Get("amount"))
	if err != nil {
		UnprocessableEntityError("invalid amount").Write(w)
		return
	}
	from, err := ParseCurrencyParam(q.Get("from"), "")
	if err != nil {
		UnprocessableEntityError("invalid source currency").Write(w)
		return
	}
	to, err := ParseCurrencyParam(q.Get("to"), s.deps.Dashboard.DisplayCurrency())
	if err != nil {
		UnprocessableEntityError("invalid target currency").Write(w)
		return
	}

	conv, err := s.deps.Converter.Convert(r.Context(), amount, from, to)
	if err != nil {
		applog.LogError(r.Context(), "Conversion failed", err, applog.ComponentHTTP, applog.OpConvert,
			applog.NewFields().WithConversion(from, to))
		InternalServerError("conversion failed").Write(w)
		return
	}
	NewJSONResponse().Body(conversionResponse{
		Amount:      amount.String(),
		From:        from,
		To:          to,
		Result:      conv.Amount.String(),
		Display:     core.FormatAmount(conv.Amount, to),
		Approximate: conv.Approximate,
	}).Write(w)
}

func (s *Server) handleReminders(w http.ResponseWriter, r *http.Request) {
	days, err := ParseIntParam(r.URL.Query(), "days", int(services.DefaultReminderHorizon/(24*time.Hour)), 1, 366)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	display := s.deps.Dashboard.DisplayCurrency()
	list, err := s.deps.Reminders.Upcoming(r.Context(), s.deps.Now(), time.Duration(days)*24*time.Hour, display)
	if err != nil {
		applog.LogError(r.Context(), "Reminders lookup failed", err, applog.ComponentHTTP, applog.OpList, nil)
		BadGatewayError("finance backend unreachable", nil).Write(w)
		return
	}
	for i := range list {
		list[i].Reminder.Name = security.SanitizeText(list[i].Reminder.Name)
	}
	if list == nil {
		list = []core.ReminderOccurrence{}
	}
	NewJSONResponse().Body(map[string]any{"currency": display, "days": days, "reminders": list}).Write(w)
}

// handleTransactions lists recent transactions with descriptions stripped
// of markup, for clients that render them verbatim.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := ParseIntParam(r.URL.Query(), "limit", defaultTransactionLimit, 1, maxTransactionLimit)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	txs, err := s.deps.Transactions.ListTransactions(r.Context(), limit)
	if err != nil {
		applog.LogError(r.Context(), "Transactions lookup failed", err, applog.ComponentHTTP, applog.OpList, nil)
		BadGatewayError("finance backend unreachable", nil).Write(w)
		return
	}
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Date.After(txs[j].Date.Time) })
	if len(txs) > limit {
		txs = txs[:limit]
	}
	for i := range txs {
		txs[i].Description = security.SanitizeText(txs[i].Description)
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	NewJSONResponse().Body(txs).Write(w)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"requests":  s.tracer.GetMetrics(),
		"rateLimit": s.limiter.GetMetrics(),
		"security":  s.detector.GetMetrics(),
	}).Write(w)
}
