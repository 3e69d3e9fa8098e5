package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

// TokenService issues, validates and revokes session tokens.
//
// A token is admitted only if BOTH hold:
//  1. its signature verifies (Signer.Verify, no storage access), and
//  2. it is still present in its owner's token list.
//
// Revocation removes list entries; the signature of a revoked token stays
// valid, but check 2 fails from then on.
type TokenService struct {
	signer *Signer
	store  repository.TokenStore
	logger *slog.Logger
}

// NewTokenService wires a TokenService to a signer and a token store.
func NewTokenService(signer *Signer, store repository.TokenStore, logger *slog.Logger) *TokenService {
	return &TokenService{signer: signer, store: store, logger: logger}
}

// Issue mints a token for userID, appends it to the user's list and
// returns it.
func (s *TokenService) Issue(ctx context.Context, userID string) (string, error) {
	token, err := s.signer.Sign(userID)
	if err != nil {
		return "", err
	}

	if err := s.store.AddToken(ctx, userID, token); err != nil {
		return "", apperror.PersistenceFailed("saving session token", err)
	}

	s.logger.Debug("session token issued", slog.String("userID", userID))
	return token, nil
}

// Validate resolves token to its user. It returns the user and the token
// string that matched (callers need the latter for single-session logout).
//
// Failures are *apperror.AppError values with ErrUnauthorized and kind
// KindBadSignature (forged, malformed or expired) or KindRevoked (owner gone
// or token no longer listed). Store failures other than not-found are
// returned as PersistenceFailed.
func (s *TokenService) Validate(ctx context.Context, token string) (*model.User, string, error) {
	userID, err := s.signer.Verify(token)
	if err != nil {
		msg := "invalid session token"
		if errors.Is(err, ErrTokenExpired) {
			msg = "session token expired"
		}
		return nil, "", apperror.AuthFailure(apperror.KindBadSignature, msg)
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, "", apperror.AuthFailure(apperror.KindRevoked, "session token has been revoked")
		}
		return nil, "", apperror.PersistenceFailed("loading session owner", err)
	}

	if !user.HasToken(token) {
		return nil, "", apperror.AuthFailure(apperror.KindRevoked, "session token has been revoked")
	}

	return user, token, nil
}

// Revoke removes a single token from the user's list. Revoking a token
// that is not listed is a no-op.
func (s *TokenService) Revoke(ctx context.Context, userID, token string) error {
	if err := s.store.RemoveToken(ctx, userID, token); err != nil {
		return apperror.PersistenceFailed("revoking session token", err)
	}
	s.logger.Debug("session token revoked", slog.String("userID", userID))
	return nil
}

// RevokeAll empties the user's token list, ending every session.
func (s *TokenService) RevokeAll(ctx context.Context, userID string) error {
	if err := s.store.ClearTokens(ctx, userID); err != nil {
		return apperror.PersistenceFailed("revoking session tokens", err)
	}
	s.logger.Debug("all session tokens revoked", slog.String("userID", userID))
	return nil
}
