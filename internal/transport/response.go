// Package transport contains the HTTP router, middleware chain, and all
// request handlers for the BFF API.
package transport

import (
	"encoding/json"
	"net/http"

	"github.com/fieldline/workspace-bff/model"
)

// categoryForStatus maps an HTTP status to the human-readable error category
// carried in the failure envelope.
func categoryForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusGone:
		return "gone"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusNotImplemented:
		return "not_implemented"
	default:
		if status >= 500 {
			return "internal"
		}
		return "error"
	}
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

// WriteAPIError writes an APIError as the failure envelope with its carried
// HTTP status. A nil or statusless error degrades to a generic 500.
func WriteAPIError(w http.ResponseWriter, e *model.APIError) {
	if e == nil {
		e = model.NewInternal("")
	}
	status := e.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, model.NewErrorBody(e, categoryForStatus(status)))
}
