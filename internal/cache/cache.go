// Package cache holds CRM API responses in memory for a short time so that
// repeated reads inside one session do not hit the network.
package cache

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pitabwire/crmdesk/internal/observability"
)

// Known resource families. Every key belongs to the family named by its
// first path segment.
const (
	FamilyClients = "clients"
	FamilyDeals   = "deals"
	FamilyUsers   = "users"
)

// DefaultTTL is the freshness window of a cached response.
const DefaultTTL = 30 * time.Second

// Entry is a cached response body and the time it was fetched.
type Entry struct {
	Payload   json.RawMessage
	FetchedAt time.Time
}

// Cache is a TTL response cache partitioned by resource family. Stale
// entries are treated as absent but are never evicted proactively; they are
// overwritten by the next successful fetch or removed by Clear.
type Cache struct {
	ttl     time.Duration
	now     func() time.Time
	metrics *observability.Metrics

	mu       sync.RWMutex
	families map[string]map[string]Entry
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics records hits and misses per family.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates an empty cache. A non-positive ttl falls back to DefaultTTL.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl: ttl,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.families = emptyFamilies()
	return c
}

func emptyFamilies() map[string]map[string]Entry {
	return map[string]map[string]Entry{
		FamilyClients: {},
		FamilyDeals:   {},
		FamilyUsers:   {},
	}
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// KeyFor derives the cache key of an endpoint: the full path and query with
// one leading separator removed. "/clients?q=a" and "clients?q=a" share a key.
func KeyFor(endpoint string) string {
	return strings.TrimPrefix(endpoint, "/")
}

// FamilyOf returns the first path segment of key.
func FamilyOf(key string) string {
	if i := strings.IndexAny(key, "/?"); i >= 0 {
		return key[:i]
	}
	return key
}

// Get returns the payload stored under key if it is younger than the TTL.
func (c *Cache) Get(key string) (json.RawMessage, bool) {
	family := FamilyOf(key)

	c.mu.RLock()
	entry, ok := c.families[family][key]
	c.mu.RUnlock()

	if !ok || c.now().Sub(entry.FetchedAt) >= c.ttl {
		c.metrics.RecordCacheMiss(family)
		return nil, false
	}
	c.metrics.RecordCacheHit(family)
	return entry.Payload, true
}

// Put stores payload under key, stamped with the current time.
func (c *Cache) Put(key string, payload json.RawMessage) {
	family := FamilyOf(key)
	stored := make(json.RawMessage, len(payload))
	copy(stored, payload)

	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.families[family]
	if !ok {
		bucket = make(map[string]Entry)
		c.families[family] = bucket
	}
	bucket[key] = Entry{Payload: stored, FetchedAt: c.now()}
}

// Clear invalidates cached responses. An empty key resets the cache to its
// three empty families. A family key ("clients") drops every entry of that
// family, sub-paths and query variants included. Any other key drops only
// that entry.
func (c *Cache) Clear(key string) {
	key = KeyFor(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if key == "" {
		c.families = emptyFamilies()
		return
	}

	family := FamilyOf(key)
	if family == key {
		c.families[family] = make(map[string]Entry)
		return
	}
	delete(c.families[family], key)
}

// Len returns the number of stored entries, fresh or stale.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, bucket := range c.families {
		n += len(bucket)
	}
	return n
}
