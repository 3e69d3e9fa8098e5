// Package service holds the business rules of the task manager.
//
// Handlers parse HTTP and call into this package; this package validates,
// hashes, issues tokens and talks to the repositories through their
// interfaces. Nothing here knows about HTTP.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/avatar"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

// Notifier delivers the account lifecycle e-mails. Delivery failures are
// logged by the caller and never fail the request.
type Notifier interface {
	SendWelcome(ctx context.Context, email, name string) error
	SendFarewell(ctx context.Context, email, name string) error
}

// UserService handles registration, login, sessions and the caller's own
// profile.
type UserService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	notifier  Notifier
	logger    *slog.Logger
}

// NewUserService wires a UserService.
func NewUserService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	notifier Notifier,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		notifier:  notifier,
		logger:    logger,
	}
}

// RegisterInput is the body of POST /users. Unknown keys are ignored.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Age      int    `json:"age"`
}

// AuthResult bundles a user with a freshly issued session token.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// Register validates in, stores the new user, issues its first token and
// only then sends the welcome mail.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	fields := userFields{Name: in.Name, Email: in.Email, Age: in.Age, Password: in.Password}
	fields.normalize()
	if err := fields.check(true); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(fields.Password)
	if err != nil {
		return nil, fmt.Errorf("registering user: %w", err)
	}

	user := &model.User{
		Name:         fields.Name,
		Email:        fields.Email,
		Age:          fields.Age,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		s.logger.Error("failed to create user", slog.String("error", err.Error()))
		return nil, apperror.PersistenceFailed("creating user", err)
	}

	token, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Tokens = append(user.Tokens, token)

	s.logger.Info("user registered", slog.String("userID", user.ID))
	s.notify(ctx, "welcome", user, s.notifier.SendWelcome)
	return &AuthResult{User: user, Token: token}, nil
}

// Login checks credentials and issues a new token. Unknown email and wrong
// password produce the same error.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	fields := userFields{Email: email, Password: password}
	fields.normalize()

	user, err := s.users.GetUserByEmail(ctx, fields.Email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, errUnableToLogin
		}
		return nil, apperror.PersistenceFailed("loading user", err)
	}

	if err := s.passwords.Verify(user.PasswordHash, fields.Password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Error("password verification failed",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, errUnableToLogin
	}

	token, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Tokens = append(user.Tokens, token)

	return &AuthResult{User: user, Token: token}, nil
}

var errUnableToLogin = apperror.ValidationFailed("", "unable to login")

// Logout revokes the token the current request authenticated with.
func (s *UserService) Logout(ctx context.Context, userID, token string) error {
	return s.tokens.Revoke(ctx, userID, token)
}

// LogoutAll revokes every session of the user.
func (s *UserService) LogoutAll(ctx context.Context, userID string) error {
	return s.tokens.RevokeAll(ctx, userID)
}

// UpdateProfile applies a partial update to user. Keys outside name,
// email, password and age reject the whole update before anything
// changes. The password is re-hashed only when it is part of the update.
func (s *UserService) UpdateProfile(ctx context.Context, user *model.User, update map[string]json.RawMessage) (*model.User, error) {
	if err := checkAllowedFields(update, userUpdatableFields); err != nil {
		return nil, err
	}

	fields := userFields{Name: user.Name, Email: user.Email, Age: user.Age}
	for _, f := range []struct {
		key string
		dst any
	}{
		{"name", &fields.Name},
		{"email", &fields.Email},
		{"age", &fields.Age},
	} {
		if _, err := decodeField(update, f.key, f.dst); err != nil {
			return nil, err
		}
	}
	passwordChanged, err := decodeField(update, "password", &fields.Password)
	if err != nil {
		return nil, err
	}

	fields.normalize()
	if err := fields.check(passwordChanged); err != nil {
		return nil, err
	}

	updated := *user
	updated.Name = fields.Name
	updated.Email = fields.Email
	updated.Age = fields.Age
	if passwordChanged {
		hash, err := s.passwords.Hash(fields.Password)
		if err != nil {
			return nil, fmt.Errorf("updating profile: %w", err)
		}
		updated.PasswordHash = hash
	}

	if err := s.users.UpdateUser(ctx, &updated); err != nil {
		if errors.Is(err, apperror.ErrConflict) || errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		s.logger.Error("failed to update user",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.PersistenceFailed("updating profile", err)
	}

	return &updated, nil
}

// DeleteAccount removes the user and every task it owns, then sends the
// farewell mail.
func (s *UserService) DeleteAccount(ctx context.Context, user *model.User) error {
	if err := s.users.DeleteUser(ctx, user.ID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		s.logger.Error("failed to delete user",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
		return apperror.PersistenceFailed("deleting account", err)
	}

	s.logger.Info("user deleted", slog.String("userID", user.ID))
	s.notify(ctx, "farewell", user, s.notifier.SendFarewell)
	return nil
}

// SetAvatar validates and normalises an uploaded image and stores it.
func (s *UserService) SetAvatar(ctx context.Context, userID, filename string, data []byte) error {
	if !avatar.AllowedExtension(filename) {
		return apperror.ValidationFailed("avatar", avatar.ErrUnsupportedType.Error())
	}

	img, err := avatar.Normalize(data)
	if err != nil {
		if errors.Is(err, avatar.ErrUndecodable) ||
			errors.Is(err, avatar.ErrUnsupportedType) ||
			errors.Is(err, avatar.ErrTooLarge) {
			return apperror.ValidationFailed("avatar", err.Error())
		}
		return fmt.Errorf("setting avatar: %w", err)
	}

	if err := s.users.SetAvatar(ctx, userID, img); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return apperror.PersistenceFailed("saving avatar", err)
	}
	return nil
}

// ClearAvatar removes the stored avatar, if any.
func (s *UserService) ClearAvatar(ctx context.Context, userID string) error {
	if err := s.users.SetAvatar(ctx, userID, nil); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return apperror.PersistenceFailed("clearing avatar", err)
	}
	return nil
}

// GetAvatar returns the stored PNG bytes of any user's avatar.
func (s *UserService) GetAvatar(ctx context.Context, userID string) ([]byte, error) {
	img, err := s.users.GetAvatar(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, apperror.PersistenceFailed("loading avatar", err)
	}
	return img, nil
}

func (s *UserService) notify(ctx context.Context, kind string, user *model.User,
	send func(ctx context.Context, email, name string) error) {
	if err := send(ctx, user.Email, user.Name); err != nil {
		s.logger.Warn("failed to send email",
			slog.String("kind", kind),
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}
}
