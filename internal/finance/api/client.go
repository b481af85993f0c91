// Package api is the HTTP adapter for the remote finance backend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"finanzas/internal/core"
	"finanzas/internal/finance"
	applog "finanzas/internal/log"
)

// APIError is returned for any non-2xx backend response.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

const (
	walletsKey    = "wallets"
	categoriesKey = "categories"
)

// Client reads wallets, transactions, goals, categories and reminders.
// Wallet and category lists change rarely and are cached for listTTL.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	lists   *gocache.Cache
	logger  *applog.Logger
}

// Config holds the backend connection settings.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	ListTTL time.Duration
}

var _ finance.Backend = (*Client)(nil)

func NewClient(cfg Config, logger *applog.Logger) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = time.Minute
	}
	if logger == nil {
		logger = applog.Default(applog.ComponentBackend)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    newHTTPClient(cfg.Timeout),
		lists:   gocache.New(cfg.ListTTL, 2*cfg.ListTTL),
		logger:  logger.WithComponent(applog.ComponentBackend),
	}, nil
}

// newHTTPClient returns a pooled client tuned for a single backend host.
func newHTTPClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

func (c *Client) ListTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out []core.Transaction
	if err := c.get(ctx, "/transactions/history", q, &out); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func (c *Client) ListWallets(ctx context.Context) ([]core.Wallet, error) {
	if v, ok := c.lists.Get(walletsKey); ok {
		return v.([]core.Wallet), nil
	}
	var out []core.Wallet
	if err := c.get(ctx, "/wallets", nil, &out); err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	c.lists.SetDefault(walletsKey, out)
	return out, nil
}

func (c *Client) ListGoals(ctx context.Context) ([]core.Goal, error) {
	var out []core.Goal
	if err := c.get(ctx, "/goals/user", nil, &out); err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	return out, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	if v, ok := c.lists.Get(categoriesKey); ok {
		return v.([]core.Category), nil
	}
	var out []core.Category
	if err := c.get(ctx, "/categories", nil, &out); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	c.lists.SetDefault(categoriesKey, out)
	return out, nil
}

func (c *Client) ListReminders(ctx context.Context) ([]core.Reminder, error) {
	var out []core.Reminder
	if err := c.get(ctx, "/reminders", nil, &out); err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return out, nil
}

// InvalidateLists drops cached wallets and categories, e.g. after the
// backend announced a change.
func (c *Client) InvalidateLists() {
	c.lists.Delete(walletsKey)
	c.lists.Delete(categoriesKey)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, into any) error {
	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "Backend request completed",
		applog.FieldPath, path,
		applog.FieldStatusCode, resp.StatusCode,
		applog.FieldDuration, time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Method: http.MethodGet, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
