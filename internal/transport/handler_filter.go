package transport

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/pitabwire/crmdesk/internal/navigation"
	"github.com/pitabwire/crmdesk/internal/pages"
	"github.com/pitabwire/crmdesk/internal/session"
)

// rowSource renders the filtered table rows of one list page.
type rowSource func(ctx context.Context, app *session.App, query, status string) (string, error)

func clientRowSource(ctx context.Context, app *session.App, query, status string) (string, error) {
	return pages.ClientRows(ctx, app.CRM, query, status)
}

func dealRowSource(ctx context.Context, app *session.App, query, status string) (string, error) {
	return pages.DealRows(ctx, app.CRM, query, status, nil)
}

// filter answers the search box and status select of a list page with the
// matching table rows. When that page is displayed its table in the session
// document is replaced too, so a full reload shows the same rows.
func (h *handlers) filter(page, tableBody string, source rowSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		app, ok := h.sessionApp(w, r)
		if !ok {
			return
		}
		query := r.URL.Query().Get("q")
		status := r.URL.Query().Get("status")

		rows, err := source(r.Context(), app, query, status)
		if err != nil {
			// The client has already notified the session.
			h.requestLogger(r).Debug("transport: filter failed",
				zap.String("page", page),
				zap.Error(err),
			)
			WriteError(w, err)
			return
		}

		if state := app.Nav.State(); state.Kind == navigation.Displaying && state.Page == page {
			if err := app.Doc.SetInnerHTML(tableBody, rows); err != nil {
				h.requestLogger(r).Debug("transport: filtered rows not kept", zap.Error(err))
			}
		}
		WriteHTML(w, http.StatusOK, []byte(rows))
	}
}
