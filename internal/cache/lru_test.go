package cache

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time          { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newClock() *fakeClock { return &fakeClock{t: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)} }

func TestLRUCacheExpiresAtTTL(t *testing.T) {
	clk := newClock()
	c := NewLRUCache[string](10, 30*time.Second)
	c.SetClock(clk.Now)

	c.Set("a", "x")
	clk.Advance(29 * time.Second)
	if v, ok := c.Get("a"); !ok || v != "x" {
		t.Fatalf("Get before TTL = %q, %v", v, ok)
	}
	clk.Advance(time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatal("entry should be expired once the TTL has elapsed")
	}
	if c.Size() != 0 {
		t.Fatalf("expired entry not removed, size = %d", c.Size())
	}
}

func TestLRUCacheSetWithTTL(t *testing.T) {
	clk := newClock()
	c := NewLRUCache[int](10, time.Hour)
	c.SetClock(clk.Now)

	c.SetWithTTL("short", 1, time.Second)
	c.Set("long", 2)
	clk.Advance(2 * time.Second)

	if _, ok := c.Get("short"); ok {
		t.Error("short entry should be expired")
	}
	if v, ok := c.Get("long"); !ok || v != 2 {
		t.Errorf("long entry = %d, %v", v, ok)
	}

	c.SetWithTTL("long", 3, 0)
	if _, ok := c.Get("long"); ok {
		t.Error("zero TTL should remove the entry")
	}
}

func TestLRUCacheEvictsOldest(t *testing.T) {
	c := NewLRUCache[int](2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // a becomes most recent
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should still be cached", k)
		}
	}
}

func TestLRUCacheCleanExpiredAndClear(t *testing.T) {
	clk := newClock()
	c := NewLRUCache[int](10, time.Minute)
	c.SetClock(clk.Now)

	c.Set("a", 1)
	c.SetWithTTL("b", 2, time.Hour)
	clk.Advance(2 * time.Minute)

	if n := c.CleanExpired(); n != 1 {
		t.Fatalf("CleanExpired = %d, want 1", n)
	}
	if c.Size() != 1 {
		t.Fatalf("size = %d, want 1", c.Size())
	}
	c.Clear()
	if c.Size() != 0 {
		t.Fatalf("size after Clear = %d", c.Size())
	}
}
