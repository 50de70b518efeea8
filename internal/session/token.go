package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore persists the session flag. Only its presence matters: it is
// written when a session opens and read and removed at logout.
type TokenStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
}

// FormatTokenKey builds the storage key of a session flag, for example
// "crm_token:5f1c...".
func FormatTokenKey(name, sessionID string) string {
	return fmt.Sprintf("%s:%s", name, sessionID)
}

// --- MemoryTokenStore ---

// MemoryTokenStore is an in-memory TokenStore with TTL support. Suitable
// for testing and single-instance deployments.
type MemoryTokenStore struct {
	mu      sync.RWMutex
	now     func() time.Time
	entries map[string]memEntry
}

type memEntry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryTokenStore creates an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{
		now:     time.Now,
		entries: make(map[string]memEntry),
	}
}

// Get returns the flag stored under key.
func (s *MemoryTokenStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	entry, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return "", false, nil
	}
	return entry.value, true, nil
}

// Set stores a flag. A zero ttl never expires.
func (s *MemoryTokenStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	entry := memEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

// Remove deletes a flag. Removing an absent key is not an error.
func (s *MemoryTokenStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries, including expired ones. For testing.
func (s *MemoryTokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// HealthCheck implements observability.HealthChecker.
func (s *MemoryTokenStore) HealthCheck(context.Context) error { return nil }

// --- RedisTokenStore ---

// RedisTokenStore keeps session flags in Redis so they survive restarts and
// are shared between instances.
type RedisTokenStore struct {
	client redis.Cmdable
}

// NewRedisTokenStore creates a Redis-backed store.
func NewRedisTokenStore(client redis.Cmdable) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

// Connect initialises a Redis client from a redis:// URL or a host:port
// address. db applies to plain addresses only; a URL names its own.
func Connect(addr string, db int) (*redis.Client, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opt, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, DB: db}), nil
}

// Get returns the flag stored under key.
func (s *RedisTokenStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return v, true, nil
}

// Set stores a flag. A zero ttl never expires.
func (s *RedisTokenStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

// Remove deletes a flag.
func (s *RedisTokenStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// HealthCheck pings Redis.
func (s *RedisTokenStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
