// Package notify keeps the transient notifications of one browser session.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pitabwire/crmdesk/model"
)

// DefaultTTL is how long a notification stays visible.
const DefaultTTL = 5 * time.Second

// ConnectionError is the message shown for every failed CRM API request.
const ConnectionError = "Ошибка подключения к серверу"

// Feed is a per-session list of notifications. Entries expire after the TTL
// or when dismissed.
type Feed struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	items []model.Notification
}

// NewFeed creates an empty feed. A non-positive ttl falls back to DefaultTTL.
func NewFeed(ttl time.Duration) *Feed {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Feed{ttl: ttl, now: time.Now}
}

// Notify appends a notification. An empty level defaults to info.
func (f *Feed) Notify(level model.Level, message string) model.Notification {
	if level == "" {
		level = model.LevelInfo
	}
	n := model.Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Level:     level,
		CreatedAt: f.now(),
	}

	f.mu.Lock()
	f.items = append(f.items, n)
	f.mu.Unlock()
	return n
}

// Active returns the notifications that have not expired, oldest first.
// Expired entries are dropped as a side effect.
func (f *Feed) Active() []model.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	kept := f.items[:0]
	for _, n := range f.items {
		if now.Sub(n.CreatedAt) < f.ttl {
			kept = append(kept, n)
		}
	}
	f.items = kept

	out := make([]model.Notification, len(kept))
	copy(out, kept)
	return out
}

// Dismiss removes a notification by id. It reports whether it was present.
func (f *Feed) Dismiss(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, n := range f.items {
		if n.ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return true
		}
	}
	return false
}
