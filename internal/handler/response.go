package handler

// RESPONSE HELPERS:
// Every JSON body leaves through writeJSON and every failure through
// WriteError, so the API has exactly one error shape:
//
//   {"error": "not_found", "message": "task not found with id abc123"}
//
// Validation and auth failures also carry "kind" (and "field" where one is
// known), e.g. {"error":"unauthorized","kind":"revoked",...}.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/task-manager/internal/apperror"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Kind    string `json:"kind,omitempty"`  // Refinement, e.g. "revoked" or "disallowed_field"
	Field   string `json:"field,omitempty"` // Offending input field, if any
}

// writeJSON sends data as JSON with the given status code. Headers and
// status must be written before the body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// WriteError maps a domain error to its HTTP status and sends it.
//
// ERROR MAPPING:
//
//	ErrValidation   → 400
//	ErrUnauthorized → 401
//	ErrNotFound     → 404 (also used for resources owned by someone else)
//	ErrConflict     → 409
//	ErrRateLimited  → 429
//	anything else   → 500 with a generic message
//
// errors.Is walks the chain, so services may wrap AppErrors with
// fmt.Errorf("...: %w", err) freely.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || errors.Is(err, apperror.ErrPersistence) {
		// Never expose internal error text (SQL, paths) to the client.
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status := http.StatusInternalServerError
	errorType := "internal_error"

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest
		errorType = "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		status = http.StatusUnauthorized
		errorType = "unauthorized"
		w.Header().Set("WWW-Authenticate", `Bearer realm="task-manager"`)
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
		errorType = "not_found"
	case errors.Is(err, apperror.ErrConflict):
		status = http.StatusConflict
		errorType = "conflict"
	case errors.Is(err, apperror.ErrRateLimited):
		status = http.StatusTooManyRequests
		errorType = "rate_limited"
	}

	writeJSON(w, status, ErrorResponse{
		Error:   errorType,
		Message: appErr.Message,
		Kind:    appErr.Kind,
		Field:   appErr.Field,
	})
}

// decodeJSON reads a single JSON value from the request body. Malformed
// JSON is a validation error.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("", "request body must be valid JSON")
	}
	return nil
}
