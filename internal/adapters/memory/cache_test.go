package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samirrijal/geofield/internal/core/ports"
)

func TestCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewCache()

	buf := []byte("v1")
	if err := c.Set(ctx, "k", buf, 0); err != nil {
		t.Fatal(err)
	}
	buf[0] = 'x'
	got, err := c.Get(ctx, "k")
	if err != nil || string(got) != "v1" {
		t.Fatalf("expected stored copy v1, got %q %v", got, err)
	}

	_ = c.Delete(ctx, "k")
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ports.ErrCacheMiss) {
		t.Errorf("expected miss after delete, got %v", err)
	}
}

func TestCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	c := NewCache()
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "short", []byte("a"), 10)
	_ = c.Set(ctx, "long", []byte("b"), 100)
	_ = c.Set(ctx, "forever", []byte("c"), 0)

	now = now.Add(10 * time.Second)
	if _, err := c.Get(ctx, "short"); !errors.Is(err, ports.ErrCacheMiss) {
		t.Errorf("expected short to expire at its ttl, got %v", err)
	}
	if _, err := c.Get(ctx, "long"); err != nil {
		t.Errorf("long expired early: %v", err)
	}

	now = now.Add(time.Hour)
	if n := c.Sweep(); n != 1 {
		t.Errorf("expected sweep to remove 1 entry, got %d", n)
	}
	if c.Len() != 1 {
		t.Errorf("expected only the non-expiring entry, got %d", c.Len())
	}
}
