package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
)

// contextKey is unexported so no other package can read or overwrite
// values stored under these keys.
type contextKey string

const (
	userKey  contextKey = "user"
	tokenKey contextKey = "token"
)

// Validator resolves a bearer token to its user. *TokenService implements it.
type Validator interface {
	Validate(ctx context.Context, token string) (*model.User, string, error)
}

// ErrorWriter writes an error response. The handler package supplies one so
// that auth failures use the same JSON shape as every other error.
type ErrorWriter func(w http.ResponseWriter, err error)

// RequireAuth is the gate in front of every route that needs an identity.
//
// It reads "Authorization: Bearer <token>", resolves it through v and stores
// the user and the matched token in the request context. Any failure ends
// the request with 401 and next is never called.
func RequireAuth(v Validator, writeErr ErrorWriter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeErr(w, err)
				return
			}

			user, matched, err := v.Validate(r.Context(), token)
			if err != nil {
				if !errors.Is(err, apperror.ErrUnauthorized) {
					logger.Error("validating session token", slog.String("error", err.Error()))
				}
				writeErr(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			ctx = context.WithValue(ctx, tokenKey, matched)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the user attached by RequireAuth.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// TokenFromContext returns the token the current request authenticated
// with.
func TokenFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenKey).(string)
	return t, ok && t != ""
}

// WithIdentity returns a copy of ctx carrying user and token as RequireAuth
// would. Handler tests use it to skip the gate.
func WithIdentity(ctx context.Context, user *model.User, token string) context.Context {
	ctx = context.WithValue(ctx, userKey, user)
	return context.WithValue(ctx, tokenKey, token)
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apperror.AuthFailure(apperror.KindMissingCredential, "authorization header required")
	}

	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", apperror.AuthFailure(apperror.KindMissingCredential, "invalid authorization format")
	}
	return token, nil
}
