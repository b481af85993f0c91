package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"finanzas/internal/core"
	"finanzas/internal/finance"
	applog "finanzas/internal/log"
	"finanzas/internal/middleware/ratelimit"
	"finanzas/internal/middleware/security"
	"finanzas/internal/middleware/trace"
	"finanzas/internal/rates"
	"finanzas/internal/services"
)

type (
	// Dashboard is the part of services.Dashboard the API exposes.
	Dashboard interface {
		Current() (services.State, error)
		Recompute(ctx context.Context, reason string) (services.State, error)
		SetDisplayCurrency(ctx context.Context, code string) (services.State, error)
		DisplayCurrency() string
	}

	ReminderService interface {
		Upcoming(ctx context.Context, now time.Time, horizon time.Duration, display string) ([]core.ReminderOccurrence, error)
	}

	// ReadinessCheck reports whether a dependency is usable.
	ReadinessCheck func(ctx context.Context) error
)

// Deps are the collaborators the server routes to.
type Deps struct {
	Dashboard    Dashboard
	Reminders    ReminderService
	Rates        rates.Source
	Converter    services.CurrencyConverter
	Transactions finance.TransactionLister
	Ready        map[string]ReadinessCheck
	Logger       *applog.Logger

	// RateLimitRPM throttles mutating requests per client; 0 uses the default.
	RateLimitRPM int
	// Now is used for reminder horizons (default time.Now).
	Now func() time.Time
}

type Server struct {
	http.Server
	deps     Deps
	logger   *applog.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.Default(applog.ComponentHTTP)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	s := &Server{
		Server: http.Server{
			Addr:           addr,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 16,
		},
		deps:     deps,
		logger:   deps.Logger.WithComponent(applog.ComponentHTTP),
		detector: security.NewDetector(),
	}
	s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitRPM})
	s.tracer = trace.NewMiddleware(s.logger, s.detector.ExtractClientIP)
	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.tracer.Middleware)
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited, http.MethodGet, http.MethodHead))

		r.Get("/summary", s.handleGetSummary)
		r.Post("/summary/recompute", s.handleRecompute)
		r.Get("/preferences/currency", s.handleGetCurrency)
		r.Put("/preferences/currency", s.handleSetCurrency)
		r.Get("/rates", s.handleRates)
		r.Get("/convert", s.handleConvert)
		r.Get("/reminders", s.handleReminders)
		r.Get("/transactions", s.handleTransactions)
		r.Get("/metrics", s.handleMetrics)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})
	return r
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
