package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/crmdesk/internal/config"
	"github.com/pitabwire/crmdesk/internal/observability"
	"github.com/pitabwire/crmdesk/internal/pages"
	"github.com/pitabwire/crmdesk/internal/session"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config   *config.Config
	Sessions *session.Store
	Ready    observability.ReadinessChecks
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, metrics and static assets bypass
// the session middleware.
func NewRouter(deps Dependencies) chi.Router {
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = session.NewStore(session.Deps{Config: cfg, Logger: logger, Metrics: deps.Metrics}, nil)
	}

	h := &handlers{
		store:      sessions,
		startPage:  cfg.Navigation.StartPage,
		cookieName: cfg.Session.CookieName,
		logger:     logger,
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(observability.TracingMiddleware)
	r.Use(Recovery(logger))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(deps.Metrics.MetricsMiddleware)

	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Ready))
	if cfg.Observability.Metrics.Enabled {
		path := cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, observability.Handler())
	}

	assets := http.FileServer(http.Dir(cfg.Assets.Dir))
	r.Handle("/css/*", assets)
	r.Handle("/components/*", assets)
	r.Handle("/js/*", assets)

	// Session-bound routes.
	r.Group(func(r chi.Router) {
		r.Use(NoStore)
		r.Use(HandlerTimeout(cfg.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))
		r.Use(Session(sessions, cfg.Session.CookieName, logger))

		r.Get("/", h.handleIndex)
		r.Get("/ui/pages/{page}", h.handlePage)
		r.Post("/ui/back", h.handleBack)
		r.Get("/ui/notifications", h.handleNotifications)
		r.Post("/ui/notifications/{id}/dismiss", h.handleDismiss)
		r.Post("/ui/logout", h.handleLogout)
		r.Post("/ui/settings/check", h.handleSettingsCheck)

		r.Get("/ui/clients/filter", h.filter(pages.Clients, pages.ClientsTableBody, clientRowSource))
		r.Post("/ui/clients", h.handleClientCreate)
		r.Post("/ui/clients/{id}/edit", h.stub("Редактирование клиента"))
		r.Post("/ui/clients/{id}/delete", h.stub("Удаление клиента"))
		r.Get("/ui/deals/filter", h.filter(pages.Deals, pages.DealsTableBody, dealRowSource))
		r.Post("/ui/deals", h.handleDealCreate)
		r.Post("/ui/deals/{id}/edit", h.stub("Редактирование сделки"))
		r.Post("/ui/users", h.stub("Добавление пользователя"))
	})

	return r
}
