package transport

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/crmdesk/internal/crm"
	"github.com/pitabwire/crmdesk/internal/pages"
	"github.com/pitabwire/crmdesk/internal/session"
	"github.com/pitabwire/crmdesk/model"
)

// Settings check notices.
const (
	ConnectionOK     = "Соединение с API установлено!"
	ConnectionFailed = "Не удалось подключиться к API"
)

// handleNotifications renders the active notifications of the session.
func (h *handlers) handleNotifications(w http.ResponseWriter, r *http.Request) {
	app, ok := h.sessionApp(w, r)
	if !ok {
		return
	}
	body, err := renderTemplate("notifications", app.Feed.Active())
	if err != nil {
		h.requestLogger(r).Error("transport: render notifications failed", zap.Error(err))
		WriteError(w, model.NewInternalError())
		return
	}
	WriteHTML(w, http.StatusOK, body)
}

func (h *handlers) handleDismiss(w http.ResponseWriter, r *http.Request) {
	app, ok := h.sessionApp(w, r)
	if !ok {
		return
	}
	if !app.Feed.Dismiss(chi.URLParam(r, "id")) {
		WriteNotFound(w, "notification not found")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleLogout removes the session flag, tears the session down and sends
// the browser back to a fresh shell.
func (h *handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	app, ok := h.sessionApp(w, r)
	if !ok {
		return
	}
	found, err := h.store.Close(r.Context(), app.ID)
	if err != nil {
		h.requestLogger(r).Error("transport: logout failed", zap.Error(err))
		WriteError(w, model.NewInternalError())
		return
	}
	h.requestLogger(r).Info("transport: logged out", zap.Bool("token_found", found))

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/")
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleSettingsCheck probes the CRM API and reports the outcome as a
// notification.
func (h *handlers) handleSettingsCheck(w http.ResponseWriter, r *http.Request) {
	app, ok := h.sessionApp(w, r)
	if !ok {
		return
	}
	if err := app.API.HealthCheck(r.Context()); err != nil {
		h.requestLogger(r).Warn("transport: api check failed", zap.Error(err))
		app.Feed.Notify(model.LevelError, ConnectionFailed)
		WriteError(w, &model.ErrorEnvelope{Code: model.ErrBackendUnavailable, Message: ConnectionFailed})
		return
	}
	app.Feed.Notify(model.LevelSuccess, ConnectionOK)
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": ConnectionOK})
}

// --- pending write affordances ---

func (h *handlers) handleClientCreate(w http.ResponseWriter, r *http.Request) {
	app, ok := h.sessionApp(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		WriteError(w, model.NewBadRequestError("malformed form"))
		return
	}
	if len(r.PostForm) > 0 {
		if err := crm.ValidateClient(clientInputFromForm(r)); err != nil {
			WriteError(w, err)
			return
		}
	}
	h.notImplemented(w, app, "Добавление нового клиента")
}

func (h *handlers) handleDealCreate(w http.ResponseWriter, r *http.Request) {
	app, ok := h.sessionApp(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		WriteError(w, model.NewBadRequestError("malformed form"))
		return
	}
	if len(r.PostForm) > 0 {
		in, fields := dealInputFromForm(r)
		if err := crm.ValidateDeal(in); err != nil {
			WriteError(w, err)
			return
		}
		if len(fields) > 0 {
			WriteValidationError(w, fields)
			return
		}
	}
	h.notImplemented(w, app, "Добавление новой сделки")
}

// stub returns a handler that only announces the pending action. A {id}
// route parameter is appended to the action as "#id".
func (h *handlers) stub(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		app, ok := h.sessionApp(w, r)
		if !ok {
			return
		}
		label := action
		if id := chi.URLParam(r, "id"); id != "" {
			label = fmt.Sprintf("%s #%s", action, id)
		}
		h.notImplemented(w, app, label)
	}
}

func (h *handlers) notImplemented(w http.ResponseWriter, app *session.App, action string) {
	msg := fmt.Sprintf("%s - %s", action, pages.NotImplemented)
	app.Feed.Notify(model.LevelInfo, msg)
	WriteError(w, model.NewNotImplementedError(msg))
}

func clientInputFromForm(r *http.Request) model.ClientInput {
	return model.ClientInput{
		Name:          strings.TrimSpace(r.PostFormValue("name")),
		Company:       strings.TrimSpace(r.PostFormValue("company")),
		ContactPerson: strings.TrimSpace(r.PostFormValue("contactPerson")),
		Email:         strings.TrimSpace(r.PostFormValue("email")),
		Phone:         strings.TrimSpace(r.PostFormValue("phone")),
		Status:        strings.TrimSpace(r.PostFormValue("status")),
	}
}

// dealInputFromForm also returns field errors that only the form can
// detect, such as an amount that is not a number.
func dealInputFromForm(r *http.Request) (model.DealInput, []model.FieldError) {
	in := model.DealInput{
		Title:       strings.TrimSpace(r.PostFormValue("title")),
		Description: strings.TrimSpace(r.PostFormValue("description")),
		ClientID:    strings.TrimSpace(r.PostFormValue("clientId")),
		Status:      strings.TrimSpace(r.PostFormValue("status")),
		Deadline:    strings.TrimSpace(r.PostFormValue("deadline")),
	}
	var fields []model.FieldError
	if raw := strings.TrimSpace(r.PostFormValue("amount")); raw != "" {
		amount, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil {
			fields = append(fields, model.FieldError{Field: "amount", Code: "invalid", Message: "is not a number"})
		} else {
			in.Amount = amount
		}
	}
	return in, fields
}
