package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pitabwire/crmdesk/model"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusOK, map[string]string{"hello": "world"})

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if xct := w.Header().Get("X-Content-Type-Options"); xct != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", xct)
	}

	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["hello"] != "world" {
		t.Errorf("body = %v", body)
	}
}

func TestWriteError_envelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, model.NewNotFoundError("page not found"))

	if w.Code != 404 {
		t.Errorf("status = %d, want 404", w.Code)
	}

	var resp struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Error.Code != model.ErrNotFound {
		t.Errorf("code = %q, want %q", resp.Error.Code, model.ErrNotFound)
	}
	if resp.Error.Message != "page not found" {
		t.Errorf("message = %q", resp.Error.Message)
	}
}

func TestWriteError_statusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.NewBadRequestError("x"), http.StatusBadRequest},
		{model.NewNotImplementedError("x"), http.StatusNotImplemented},
		{model.NewValidationError(nil), http.StatusUnprocessableEntity},
		{&model.ValidationGapError{Resource: "client", Fields: []model.FieldError{{Field: "name", Code: "required"}}}, http.StatusUnprocessableEntity},
		{&model.TransportError{Method: "GET", Endpoint: "/clients", Err: fmt.Errorf("refused")}, http.StatusBadGateway},
		{fmt.Errorf("crm: %w", &model.NetworkError{Method: "GET", Endpoint: "/deals", Status: 500}), http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		WriteError(w, tt.err)
		if w.Code != tt.want {
			t.Errorf("WriteError(%v) status = %d, want %d", tt.err, w.Code, tt.want)
		}
	}
}

func TestWriteError_validationGapDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, &model.ValidationGapError{
		Resource: "deal",
		Fields:   []model.FieldError{{Field: "title", Code: "required", Message: "is required"}},
	})

	var resp struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Error.Code != model.ErrValidationError {
		t.Errorf("code = %q", resp.Error.Code)
	}
	if len(resp.Error.Details) != 1 || resp.Error.Details[0].Field != "title" {
		t.Errorf("details = %+v", resp.Error.Details)
	}
}

func TestWriteError_genericErrorIsInternal(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, fmt.Errorf("database exploded"))

	var resp struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Error.Code != model.ErrInternalError {
		t.Errorf("code = %q, want %q", resp.Error.Code, model.ErrInternalError)
	}
	if resp.Error.Message == "database exploded" {
		t.Error("internal error details must not leak")
	}
}

func TestWriteHTML(t *testing.T) {
	w := httptest.NewRecorder()
	WriteHTML(w, http.StatusOK, []byte("<p>ok</p>"))

	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Body.String() != "<p>ok</p>" {
		t.Errorf("body = %q", w.Body.String())
	}
}
