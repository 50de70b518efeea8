package transport

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/pitabwire/crmdesk/internal/navigation"
	"github.com/pitabwire/crmdesk/internal/session"
	"github.com/pitabwire/crmdesk/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var shellTemplates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// shellData is the view model of the shell and of content fragments.
type shellData struct {
	Title         string
	ActiveMenu    string
	Stylesheet    string
	Loading       bool
	Content       template.HTML
	Menu          []navigation.MenuItem
	Notifications []model.Notification
	OOB           bool
}

func newShellData(app *session.App) shellData {
	state := app.Doc.Snapshot()
	title := state.Title
	if title == "" {
		title = navigation.DefaultTitle
	}
	stylesheet := state.Stylesheet
	if stylesheet != "" {
		stylesheet = "/" + stylesheet
	}
	// The content is re-serialized from a parsed tree; every text node and
	// attribute is escaped by the renderer.
	return shellData{
		Title:         title,
		ActiveMenu:    state.ActiveMenu,
		Stylesheet:    stylesheet,
		Loading:       state.Loading,
		Content:       template.HTML(state.Content),
		Menu:          app.Nav.Menu(),
		Notifications: app.Feed.Active(),
	}
}

func renderTemplate(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := shellTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("transport: render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// wantsFragment reports whether the caller swaps the content in place
// instead of loading the whole shell.
func wantsFragment(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true" || r.URL.Query().Get("fragment") == "1"
}

// writeView writes the current document of app, either as the full shell or
// as a content fragment with out-of-band title, menu and stylesheet.
func (h *handlers) writeView(w http.ResponseWriter, r *http.Request, app *session.App, fragment bool) {
	data := newShellData(app)
	name := "shell"
	if fragment {
		name = "fragment"
		data.OOB = true
	}
	body, err := renderTemplate(name, data)
	if err != nil {
		h.requestLogger(r).Error("transport: render view failed", zap.Error(err))
		WriteError(w, model.NewInternalError())
		return
	}
	WriteHTML(w, http.StatusOK, body)
}
