package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/crmdesk/internal/config"
	"github.com/pitabwire/crmdesk/internal/observability"
)

// tokenValue is the content of a session flag.
const tokenValue = "1"

// Store maps session ids to their App.
type Store struct {
	deps     Deps
	tokens   TokenStore
	tokenKey string
	idleTTL  time.Duration
	now      func() time.Time
	logger   *zap.Logger
	metrics  *observability.Metrics

	mu   sync.Mutex
	apps map[string]*App
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty Store. A nil token store keeps flags in memory.
func NewStore(deps Deps, tokens TokenStore, opts ...StoreOption) *Store {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Defaults()
		deps.Config = cfg
	}
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tokenKey := cfg.Session.TokenKey
	if tokenKey == "" {
		tokenKey = config.TokenKey
	}

	s := &Store{
		deps:     deps,
		tokens:   tokens,
		tokenKey: tokenKey,
		idleTTL:  cfg.Session.IdleTTL,
		now:      time.Now,
		logger:   logger,
		metrics:  deps.Metrics,
		apps:     make(map[string]*App),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tokens returns the token store.
func (s *Store) Tokens() TokenStore { return s.tokens }

// Get returns the App of a live session and records the activity.
func (s *Store) Get(id string) (*App, bool) {
	s.mu.Lock()
	app, ok := s.apps[id]
	s.mu.Unlock()
	if ok {
		app.Touch(s.now())
	}
	return app, ok
}

// Open creates a session with a fresh id and writes its flag.
func (s *Store) Open(ctx context.Context) (*App, error) {
	id := uuid.NewString()
	if err := s.tokens.Set(ctx, FormatTokenKey(s.tokenKey, id), tokenValue, s.idleTTL); err != nil {
		return nil, err
	}

	app := NewApp(id, s.deps)
	app.Touch(s.now())

	s.mu.Lock()
	s.apps[id] = app
	s.mu.Unlock()

	s.metrics.SessionOpened()
	s.logger.Info("session: opened", zap.String("session_id", id))
	return app, nil
}

// Resolve returns the App of id, opening a new session when id is unknown.
// created reports whether a new session was opened.
func (s *Store) Resolve(ctx context.Context, id string) (app *App, created bool, err error) {
	if id != "" {
		if app, ok := s.Get(id); ok {
			return app, false, nil
		}
	}
	app, err = s.Open(ctx)
	return app, err == nil, err
}

// Close tears a session down and removes its flag. It reports whether the
// flag was present.
func (s *Store) Close(ctx context.Context, id string) (bool, error) {
	key := FormatTokenKey(s.tokenKey, id)
	_, found, err := s.tokens.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if err := s.tokens.Remove(ctx, key); err != nil {
		return found, err
	}

	if s.drop(id) {
		s.logger.Info("session: closed", zap.String("session_id", id), zap.Bool("token_found", found))
	}
	return found, nil
}

// Sweep drops sessions idle for longer than the configured TTL and returns
// how many were dropped. Their flags expire on their own.
func (s *Store) Sweep() int {
	if s.idleTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	var idle []string
	for id, app := range s.apps {
		if app.LastSeen().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	s.mu.Unlock()

	dropped := 0
	for _, id := range idle {
		if s.drop(id) {
			dropped++
		}
	}
	if dropped > 0 {
		s.logger.Info("session: idle sessions swept", zap.Int("count", dropped))
	}
	return dropped
}

// Run sweeps every interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.apps)
}

func (s *Store) drop(id string) bool {
	s.mu.Lock()
	_, ok := s.apps[id]
	delete(s.apps, id)
	s.mu.Unlock()
	if ok {
		s.metrics.SessionClosed()
	}
	return ok
}
