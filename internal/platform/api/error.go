// Package api holds the JSON envelope every HTTP handler answers with.
package api

import (
	"net/http"

	"github.com/example/lems/internal/platform/httpserver"
)

type ErrorResponse struct {
	Error APIError `json:"error"`
}

type APIError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

// WriteError writes the error envelope, stamping the request id that the
// router middleware put on r's context.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	var rid string
	if r != nil {
		rid = httpserver.RequestIDFromContext(r.Context())
	}
	WriteJSON(w, status, ErrorResponse{Error: APIError{Code: code, Message: message, Details: details, RequestID: rid}})
}

func BadRequest(w http.ResponseWriter, r *http.Request, code, message string, details map[string]any) {
	WriteError(w, r, http.StatusBadRequest, code, message, details)
}

func Unauthorized(w http.ResponseWriter, r *http.Request, code, message string) {
	WriteError(w, r, http.StatusUnauthorized, code, message, nil)
}

func Forbidden(w http.ResponseWriter, r *http.Request, code, message string) {
	WriteError(w, r, http.StatusForbidden, code, message, nil)
}

func NotFound(w http.ResponseWriter, r *http.Request, code, message string) {
	WriteError(w, r, http.StatusNotFound, code, message, nil)
}

func RateLimited(w http.ResponseWriter, r *http.Request, details map[string]any) {
	WriteError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", details)
}

func Unavailable(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusServiceUnavailable, "UNAVAILABLE", message, nil)
}

func Internal(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusInternalServerError, "INTERNAL", "Internal server error", nil)
}
