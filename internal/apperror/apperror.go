// Package apperror defines the error taxonomy shared by every layer.
//
// Services return *AppError values (or wrap them with fmt.Errorf("...: %w")).
// The HTTP layer inspects the sentinel with errors.Is and picks a status code;
// nothing below the handler package knows about HTTP.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrPersistence  = errors.New("persistence failure")
)

// Kinds refine a sentinel. They are surfaced to clients as-is.
const (
	// AuthFailure kinds.
	KindMissingCredential = "missing_credential"
	KindBadSignature      = "bad_signature"
	KindRevoked           = "revoked"

	// ValidationError kinds.
	KindInvalidField    = "invalid_field"
	KindDisallowedField = "disallowed_field"
)

type AppError struct {
	Err     error  // sentinel, one of the Err* values above
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Kind    string // Optional: refinement of Err (see Kind* constants)
	Cause   error  // Optional: underlying error, kept for logs and errors.Is
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the cause, so errors.Is matches
// either of them.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
		Kind:    KindInvalidField,
	}
}

// DisallowedField rejects an update payload carrying a key outside the
// resource's allow-list.
func DisallowedField(field string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: fmt.Sprintf("field %q cannot be updated", field),
		Field:   field,
		Kind:    KindDisallowedField,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// AuthFailure rejects a request whose credential is missing, forged or no
// longer in the owner's token list. kind is one of the Kind* auth constants.
func AuthFailure(kind, message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
		Kind:    kind,
	}
}

// RateLimited rejects a request because the client sent too many.
func RateLimited(message string) *AppError {
	return &AppError{
		Err:     ErrRateLimited,
		Message: message,
	}
}

// PersistenceFailed reports a store failure. The cause stays reachable
// through errors.Is/As but its text never reaches the client.
func PersistenceFailed(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrPersistence,
		Message: fmt.Sprintf("%s failed", op),
		Cause:   cause,
	}
}

// KindOf returns the Kind of the first *AppError in err's chain, or "".
func KindOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}
