package cache

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLRUCacheTTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](4, time.Hour, WithClock(clock.now))

	c.Set("COP", "table")
	clock.advance(59 * time.Minute)
	if v, ok := c.Get("COP"); !ok || v != "table" {
		t.Fatalf("expected hit before ttl, got %q %v", v, ok)
	}

	clock.advance(time.Minute)
	if _, ok := c.Get("COP"); ok {
		t.Fatalf("expected miss at ttl")
	}
	if c.Size() != 0 {
		t.Fatalf("expired entry should be removed on read, size=%d", c.Size())
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a becomes most recent
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatalf("least recently used entry should be evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("a should survive eviction")
	}
	if c.Size() != 2 {
		t.Fatalf("size=%d, want 2", c.Size())
	}
}

func TestLRUCacheOverwriteResetsAge(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](2, time.Hour, WithClock(clock.now))
	c.Set("k", 1)
	clock.advance(50 * time.Minute)
	c.Set("k", 2)
	clock.advance(50 * time.Minute)
	if v, ok := c.Get("k"); !ok || v != 2 {
		t.Fatalf("overwrite should refresh age, got %d %v", v, ok)
	}
}

func TestManagerCleanNow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](10, time.Minute, WithClock(clock.now))
	c.Set("a", 1)
	c.Set("b", 2)
	clock.advance(2 * time.Minute)
	c.Set("c", 3)

	m := NewManager()
	m.Register("test", c)
	removed := m.CleanNow()
	if removed["test"] != 2 {
		t.Fatalf("expected 2 removed, got %v", removed)
	}
	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop() // idempotent
}
