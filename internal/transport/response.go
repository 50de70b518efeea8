// Package transport contains the HTTP router, middleware chain, and all
// request handlers of the CRM front end.
package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pitabwire/crmdesk/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:         http.StatusBadRequest,
	model.ErrNotFound:           http.StatusNotFound,
	model.ErrValidationError:    http.StatusUnprocessableEntity,
	model.ErrNotImplemented:     http.StatusNotImplemented,
	model.ErrInternalError:      http.StatusInternalServerError,
	model.ErrBackendUnavailable: http.StatusBadGateway,
	model.ErrBackendError:       http.StatusBadGateway,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteHTML writes an HTML response with the given status code.
func WriteHTML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}

// WriteError writes an ErrorEnvelope as a JSON response with the correct
// HTTP status code. Errors that are not an *ErrorEnvelope are mapped: a
// *model.ValidationGapError becomes a VALIDATION_ERROR, upstream failures a
// BACKEND_* error, anything else a generic 500.
func WriteError(w http.ResponseWriter, err error) {
	ee := toEnvelope(err)

	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, status, errorResponse{Error: ee})
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, msg string) {
	WriteError(w, model.NewNotFoundError(msg))
}

// WriteValidationError writes a 422 error response with field-level details.
func WriteValidationError(w http.ResponseWriter, details []model.FieldError) {
	WriteError(w, model.NewValidationError(details))
}

func toEnvelope(err error) *model.ErrorEnvelope {
	var ee *model.ErrorEnvelope
	if errors.As(err, &ee) {
		return ee
	}
	var gap *model.ValidationGapError
	if errors.As(err, &gap) {
		return model.NewValidationError(gap.Fields)
	}
	var trErr *model.TransportError
	if errors.As(err, &trErr) {
		return &model.ErrorEnvelope{Code: model.ErrBackendUnavailable, Message: "CRM API is unreachable"}
	}
	var netErr *model.NetworkError
	if errors.As(err, &netErr) {
		return &model.ErrorEnvelope{Code: model.ErrBackendError, Message: netErr.Error()}
	}
	return model.NewInternalError()
}
