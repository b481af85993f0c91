package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestLimiterAllowBurstThenRefill(t *testing.T) {
	c := &clock{t: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)}
	rl := newLimiter(Config{RequestsPerMinute: 60, Burst: 3}, c.now)

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d should pass within burst", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Fatal("fourth request should be limited")
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatal("other clients keep their own bucket")
	}

	c.t = c.t.Add(time.Second)
	if !rl.Allow("1.2.3.4") {
		t.Fatal("one token should refill after a second")
	}

	if got := rl.GetMetrics(); got.TotalHits != 1 || got.ClientCount != 2 {
		t.Errorf("unexpected metrics %+v", got)
	}
}

func TestLimiterCleanup(t *testing.T) {
	c := &clock{t: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)}
	rl := newLimiter(Config{RequestsPerMinute: 10, IdleTTL: time.Minute}, c.now)

	rl.Allow("a")
	c.t = c.t.Add(30 * time.Second)
	rl.Allow("b")
	c.t = c.t.Add(45 * time.Second)

	if n := rl.cleanupStaleEntries(); n != 1 {
		t.Fatalf("expected 1 stale client removed, got %d", n)
	}
	if rl.ActiveClients() != 1 {
		t.Errorf("expected 1 client left, got %d", rl.ActiveClients())
	}
}

func TestMiddleware(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerMinute: 60, Burst: 1})
	defer rl.Stop()

	h := rl.Middleware(func(*http.Request) string { return "ip" }, nil, http.MethodGet)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	do := func(method string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/", nil))
		return rec
	}

	if rec := do(http.MethodPost); rec.Code != http.StatusNoContent {
		t.Fatalf("first POST got %d", rec.Code)
	}
	rec := do(http.MethodPost)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second POST got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("unexpected Retry-After %q", rec.Header().Get("Retry-After"))
	}
	if rec := do(http.MethodGet); rec.Code != http.StatusNoContent {
		t.Errorf("GET should be exempt, got %d", rec.Code)
	}
}
