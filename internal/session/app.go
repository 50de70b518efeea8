// Package session owns the per-browser application state: one App per
// session cookie, created on first use and torn down at logout or after
// sitting idle.
package session

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/crmdesk/internal/apiclient"
	"github.com/pitabwire/crmdesk/internal/cache"
	"github.com/pitabwire/crmdesk/internal/config"
	"github.com/pitabwire/crmdesk/internal/crm"
	"github.com/pitabwire/crmdesk/internal/navigation"
	"github.com/pitabwire/crmdesk/internal/notify"
	"github.com/pitabwire/crmdesk/internal/observability"
	"github.com/pitabwire/crmdesk/internal/pages"
	"github.com/pitabwire/crmdesk/internal/view"
)

// App is the application state of one browser session.
type App struct {
	ID    string
	Cache *cache.Cache
	API   *apiclient.Client
	CRM   *crm.Service
	Feed  *notify.Feed
	Doc   *view.Document
	Nav   *navigation.Navigator

	mu       sync.Mutex
	lastSeen time.Time
}

// Touch records activity.
func (a *App) Touch(now time.Time) {
	a.mu.Lock()
	a.lastSeen = now
	a.mu.Unlock()
}

// LastSeen returns the time of the last activity.
func (a *App) LastSeen() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSeen
}

// Deps are shared by every App of the process.
type Deps struct {
	Config     *config.Config
	HTTPClient *http.Client
	Breaker    *apiclient.CircuitBreaker
	Assets     navigation.Source
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewApp wires a fresh application state. The HTTP transport and circuit
// breaker are shared; cache, document, history and notifications are not.
func NewApp(id string, deps Deps) *App {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session_id", id))

	feed := notify.NewFeed(notify.DefaultTTL)
	c := cache.New(cfg.Cache.TTL, cache.WithMetrics(deps.Metrics))

	opts := []apiclient.Option{
		apiclient.WithNotifier(feed),
		apiclient.WithLogger(logger),
		apiclient.WithMetrics(deps.Metrics),
	}
	if deps.HTTPClient != nil {
		opts = append(opts, apiclient.WithHTTPClient(deps.HTTPClient))
	}
	if deps.Breaker != nil {
		opts = append(opts, apiclient.WithBreaker(deps.Breaker))
	}
	api := apiclient.New(cfg.API, c, opts...)
	svc := crm.NewService(api, c, cfg.Stats, crm.WithLogger(logger))

	doc := view.NewDocument()
	registry := navigation.NewRegistry(pages.All(pages.Deps{
		CRM:        svc,
		Stats:      cfg.Stats,
		APIBaseURL: cfg.API.BaseURL,
		Logger:     logger,
	})...)
	loader := navigation.NewLoader(deps.Assets, logger, deps.Metrics)
	nav := navigation.New(registry, loader, doc,
		navigation.WithHistoryCapacity(cfg.Navigation.HistoryCapacity),
		navigation.WithLogger(logger),
		navigation.WithMetrics(deps.Metrics),
	)

	return &App{
		ID:    id,
		Cache: c,
		API:   api,
		CRM:   svc,
		Feed:  feed,
		Doc:   doc,
		Nav:   nav,
	}
}
