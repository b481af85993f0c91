package rates

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"finanzas/internal/cache"
	"finanzas/internal/core"
	applog "finanzas/internal/log"
)

// DefaultTTL is how long a fetched table may be reused.
const DefaultTTL = time.Hour

// Cache is a time-bounded cache of rate tables keyed by base currency.
// A miss performs exactly one provider call; concurrent misses for the same
// base share it. Failed fetches are answered with the fallback table, which
// is never stored.
type Cache struct {
	provider Provider
	tables   *cache.LRUCache[core.RateTable]
	group    singleflight.Group
	ttl      time.Duration
	now      func() time.Time
	logger   *applog.Logger
	fetches  atomic.Int64
}

type CacheOption func(*Cache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

func WithLogger(l *applog.Logger) CacheOption {
	return func(c *Cache) { c.logger = l.WithComponent(applog.ComponentRates) }
}

var _ Source = (*Cache)(nil)

func NewCache(p Provider, opts ...CacheOption) *Cache {
	c := &Cache{
		provider: p,
		ttl:      DefaultTTL,
		now:      time.Now,
		logger:   applog.Default(applog.ComponentRates),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tables = cache.NewLRUCache[core.RateTable](16, c.ttl, cache.WithClock(c.now))
	return c
}

// Rates returns a table for base. It never fails: provider errors degrade
// to the static fallback table.
func (c *Cache) Rates(ctx context.Context, base string) (core.RateTable, error) {
	if t, ok := c.tables.Get(base); ok {
		return t, nil
	}

	v, _, _ := c.group.Do(base, func() (any, error) {
		// Another flight may have filled the slot while we queued.
		if t, ok := c.tables.Get(base); ok {
			return t, nil
		}

		c.fetches.Add(1)
		t, err := c.provider.Fetch(ctx, base)
		if err != nil {
			c.logger.WarnContext(ctx, "Rate fetch failed, serving fallback table",
				applog.FieldBase, base,
				applog.FieldError, err)
			return FallbackTable(base, c.now()), nil
		}

		t.FetchedAt = c.now()
		c.tables.Set(base, t)
		c.logger.InfoContext(ctx, "Rate table refreshed",
			applog.FieldBase, base,
			applog.FieldCount, len(t.Rates))
		return t, nil
	})

	return v.(core.RateTable), nil
}

// Invalidate drops the cached table for base.
func (c *Cache) Invalidate(base string) {
	c.tables.Delete(base)
}

// Fetches returns how many provider calls the cache has made.
func (c *Cache) Fetches() int64 {
	return c.fetches.Load()
}

// Cleaner exposes the underlying store to a cache.Manager.
func (c *Cache) Cleaner() cache.Cleaner {
	return c.tables
}
