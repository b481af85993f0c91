// Package rates fetches, caches and applies currency exchange rates.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finanzas/internal/core"
)

// Source hands out rate tables. Cache is the production implementation;
// tests substitute deterministic fakes.
type Source interface {
	Rates(ctx context.Context, base string) (core.RateTable, error)
}

// Provider performs the actual call to an external rate service.
type Provider interface {
	Fetch(ctx context.Context, base string) (core.RateTable, error)
}

var (
	ErrEmptyTable = errors.New("rate provider returned no rates")
	ErrBadStatus  = errors.New("rate provider returned non-success status")
)

// HTTPProvider talks to a "{baseURL}/latest/{base}" style endpoint that
// answers with a JSON body carrying a "rates" object.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

type latestResponse struct {
	Base  string                     `json:"base"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// NewHTTPProvider creates a provider with its own client and timeout.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// WithHTTPClient swaps the underlying client (used with httptest servers).
func (p *HTTPProvider) WithHTTPClient(c *http.Client) *HTTPProvider {
	p.client = c
	return p
}

func (p *HTTPProvider) Fetch(ctx context.Context, base string) (core.RateTable, error) {
	endpoint := p.baseURL + "/latest/" + url.PathEscape(base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return core.RateTable{}, fmt.Errorf("build rates request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return core.RateTable{}, fmt.Errorf("fetch rates for %s: %w", base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return core.RateTable{}, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return core.RateTable{}, fmt.Errorf("decode rates response: %w", err)
	}
	if len(body.Rates) == 0 {
		return core.RateTable{}, ErrEmptyTable
	}
	if _, ok := body.Rates[base]; !ok {
		body.Rates[base] = decimal.NewFromInt(1)
	}

	return core.RateTable{
		Base:      base,
		Rates:     body.Rates,
		FetchedAt: p.now(),
	}, nil
}
