package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/crmdesk/internal/navigation"
	"github.com/pitabwire/crmdesk/internal/observability"
	"github.com/pitabwire/crmdesk/internal/session"
	"github.com/pitabwire/crmdesk/model"
)

// handlers holds the state shared by the session-bound handlers.
type handlers struct {
	store      *session.Store
	startPage  string
	cookieName string
	logger     *zap.Logger
}

func (h *handlers) requestLogger(r *http.Request) *zap.Logger {
	return observability.RequestLogger(r.Context(), h.logger)
}

// sessionApp returns the App of the request, writing a 500 when the Session
// middleware did not run.
func (h *handlers) sessionApp(w http.ResponseWriter, r *http.Request) (*session.App, bool) {
	app := AppFrom(r.Context())
	if app == nil {
		h.requestLogger(r).Error("transport: no session in request context")
		WriteError(w, model.NewInternalError())
		return nil, false
	}
	return app, true
}

// handleIndex serves the shell, displaying the start page on the first
// visit of a session.
func (h *handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	app, ok := h.sessionApp(w, r)
	if !ok {
		return
	}
	if app.Nav.State().Kind == navigation.Idle {
		h.navigate(r, app, h.startPage, nil)
	}
	h.writeView(w, r, app, false)
}

// handlePage navigates to {page} with the query string as parameters.
func (h *handlers) handlePage(w http.ResponseWriter, r *http.Request) {
	app, ok := h.sessionApp(w, r)
	if !ok {
		return
	}
	page := chi.URLParam(r, "page")
	if isHistoryRestore(r) {
		// htmx extracts #contentWrapper from the full shell on restore.
		if err := app.Nav.Restore(r.Context(), page, pageParams(r)); err != nil {
			h.requestLogger(r).Debug("transport: history restore failed",
				zap.String("page", page),
				zap.Error(err),
			)
		}
		h.writeView(w, r, app, false)
		return
	}
	h.navigate(r, app, page, pageParams(r))
	h.writeView(w, r, app, wantsFragment(r))
}

// isHistoryRestore reports a browser back or forward that htmx could not
// serve from its own history cache.
func isHistoryRestore(r *http.Request) bool {
	return r.Header.Get("HX-History-Restore-Request") == "true"
}

// handleBack returns to the previous history entry.
func (h *handlers) handleBack(w http.ResponseWriter, r *http.Request) {
	app, ok := h.sessionApp(w, r)
	if !ok {
		return
	}
	if err := app.Nav.Back(r.Context()); err != nil {
		h.requestLogger(r).Debug("transport: back navigation failed", zap.Error(err))
	}
	h.writeView(w, r, app, true)
}

// navigate runs a navigation. A failed page controller has already left its
// inline error panel in the document, so the view is rendered regardless.
func (h *handlers) navigate(r *http.Request, app *session.App, page string, params map[string]string) {
	if err := app.Nav.Navigate(r.Context(), page, params); err != nil {
		h.requestLogger(r).Debug("transport: navigation failed",
			zap.String("page", page),
			zap.Error(err),
		)
	}
}

// pageParams flattens the query string, dropping transport-only keys.
func pageParams(r *http.Request) map[string]string {
	query := r.URL.Query()
	if len(query) == 0 {
		return nil
	}
	params := make(map[string]string, len(query))
	for key, values := range query {
		if key == "fragment" || len(values) == 0 {
			continue
		}
		params[key] = values[0]
	}
	if len(params) == 0 {
		return nil
	}
	return params
}
