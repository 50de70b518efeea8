package cache

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pitabwire/crmdesk/internal/observability"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache() (*Cache, *clock) {
	clk := &clock{t: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	return New(30*time.Second, WithClock(clk.now)), clk
}

func TestKeyFor(t *testing.T) {
	tests := []struct {
		endpoint, want string
	}{
		{"/clients", "clients"},
		{"clients", "clients"},
		{"/clients/5", "clients/5"},
		{"/clients?q=acme", "clients?q=acme"},
		{"//deals", "/deals"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := KeyFor(tt.endpoint); got != tt.want {
			t.Errorf("KeyFor(%q) = %q, want %q", tt.endpoint, got, tt.want)
		}
	}
}

func TestFamilyOf(t *testing.T) {
	tests := map[string]string{
		"clients":        "clients",
		"clients/5":      "clients",
		"clients?q=acme": "clients",
		"deals/7/notes":  "deals",
		"reports":        "reports",
	}
	for key, want := range tests {
		if got := FamilyOf(key); got != want {
			t.Errorf("FamilyOf(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestCache_hitWithinTTL(t *testing.T) {
	c, clk := newTestCache()
	c.Put("clients", []byte(`[{"id":1}]`))

	clk.advance(29 * time.Second)
	got, ok := c.Get("clients")
	if !ok {
		t.Fatal("Get() miss within TTL")
	}
	if string(got) != `[{"id":1}]` {
		t.Errorf("payload = %s", got)
	}
}

func TestCache_staleAfterTTL(t *testing.T) {
	c, clk := newTestCache()
	c.Put("deals", []byte(`[]`))

	clk.advance(30 * time.Second)
	if _, ok := c.Get("deals"); ok {
		t.Error("Get() should miss once the entry is TTL old")
	}
	// Stale entries are kept until overwritten or cleared.
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCache_putCopiesPayload(t *testing.T) {
	c, _ := newTestCache()
	payload := []byte(`{"a":1}`)
	c.Put("clients/1", payload)
	payload[2] = 'X'

	got, _ := c.Get("clients/1")
	if string(got) != `{"a":1}` {
		t.Errorf("payload mutated through caller slice: %s", got)
	}
}

func TestCache_clear(t *testing.T) {
	seed := func(c *Cache) {
		c.Put("clients", []byte(`[]`))
		c.Put("clients/5", []byte(`{}`))
		c.Put("clients?q=a", []byte(`[]`))
		c.Put("deals", []byte(`[]`))
		c.Put("users", []byte(`[]`))
	}

	t.Run("empty key resets everything", func(t *testing.T) {
		c, _ := newTestCache()
		seed(c)
		c.Clear("")
		if c.Len() != 0 {
			t.Errorf("Len() = %d, want 0", c.Len())
		}
		if _, ok := c.families[FamilyUsers]; !ok {
			t.Error("known families should exist after reset")
		}
	})

	t.Run("family key resets the family", func(t *testing.T) {
		c, _ := newTestCache()
		seed(c)
		c.Clear("clients")
		for _, key := range []string{"clients", "clients/5", "clients?q=a"} {
			if _, ok := c.Get(key); ok {
				t.Errorf("%s should be cleared", key)
			}
		}
		if _, ok := c.Get("deals"); !ok {
			t.Error("deals should survive")
		}
	})

	t.Run("leading separator is ignored", func(t *testing.T) {
		c, _ := newTestCache()
		seed(c)
		c.Clear("/deals")
		if _, ok := c.Get("deals"); ok {
			t.Error("deals should be cleared")
		}
	})

	t.Run("other key resets only that entry", func(t *testing.T) {
		c, _ := newTestCache()
		seed(c)
		c.Clear("clients/5")
		if _, ok := c.Get("clients/5"); ok {
			t.Error("clients/5 should be cleared")
		}
		if _, ok := c.Get("clients"); !ok {
			t.Error("clients should survive")
		}
	})
}

func TestCache_recordsMetrics(t *testing.T) {
	m := observability.InitMetrics(prometheus.NewRegistry())
	c := New(time.Minute, WithMetrics(m))

	c.Get("clients")
	c.Put("clients", []byte(`[]`))
	c.Get("clients")
	c.Get("clients/3")

	if v := testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("clients")); v != 1 {
		t.Errorf("hits = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("clients")); v != 2 {
		t.Errorf("misses = %v, want 2", v)
	}
}

func TestNew_defaultTTL(t *testing.T) {
	if got := New(0).TTL(); got != DefaultTTL {
		t.Errorf("TTL() = %v, want %v", got, DefaultTTL)
	}
}
