package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, name, email, age, password_hash, created_at, updated_at`

// CreateUser inserts a new user and fills in ID and timestamps.
// The caller must have hashed the password already.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, email, age, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Email,
		user.Age,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	user.Tokens = []string{}
	return nil
}

// GetUserByID retrieves a user and its token list.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	if u.Tokens, err = db.listTokens(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUserByEmail looks a user up by its (already lower-cased) email.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}

	if u.Tokens, err = db.listTokens(ctx, u.ID); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateUser writes the profile fields and password hash back.
// Tokens and avatar have their own methods and are not touched here.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET name = ?, email = ?, age = ?, password_hash = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.Email,
		user.Age,
		user.PasswordHash,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	return checkAffected(result, apperror.NotFound("user", user.ID))
}

// DeleteUser removes the user's tasks, then its tokens, then the user row,
// in a single transaction. If the user row does not exist nothing is
// deleted.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning delete of user %s: %w", id, err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE owner_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting tasks of user %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_tokens WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting tokens of user %s: %w", id, err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	if err := checkAffected(result, apperror.NotFound("user", id)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing delete of user %s: %w", id, err)
	}
	return nil
}

// AddToken appends token to the user's list.
func (db *DB) AddToken(ctx context.Context, userID, token string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_tokens (user_id, token, created_at) VALUES (?, ?, ?)`,
		userID, token, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding token for user %s: %w", userID, err)
	}
	return nil
}

// RemoveToken deletes the matching entry. Removing an absent token is not
// an error.
func (db *DB) RemoveToken(ctx context.Context, userID, token string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_tokens WHERE user_id = ? AND token = ?`, userID, token)
	if err != nil {
		return fmt.Errorf("sqlite: removing token for user %s: %w", userID, err)
	}
	return nil
}

// ClearTokens empties the user's list.
func (db *DB) ClearTokens(ctx context.Context, userID string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_tokens WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("sqlite: clearing tokens for user %s: %w", userID, err)
	}
	return nil
}

// SetAvatar stores avatar as the user's image. A nil avatar clears it.
func (db *DB) SetAvatar(ctx context.Context, userID string, avatar []byte) error {
	var value any
	if len(avatar) > 0 {
		value = avatar
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE users SET avatar = ?, updated_at = ? WHERE id = ?`,
		value, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting avatar for user %s: %w", userID, err)
	}
	return checkAffected(result, apperror.NotFound("user", userID))
}

// GetAvatar returns the stored image bytes. A missing user and a user
// without an avatar are both reported as not found.
func (db *DB) GetAvatar(ctx context.Context, userID string) ([]byte, error) {
	var avatar []byte
	err := db.conn.QueryRowContext(ctx,
		`SELECT avatar FROM users WHERE id = ?`, userID,
	).Scan(&avatar)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("avatar", userID)
		}
		return nil, fmt.Errorf("sqlite: getting avatar for user %s: %w", userID, err)
	}
	if len(avatar) == 0 {
		return nil, apperror.NotFound("avatar", userID)
	}
	return avatar, nil
}

func (db *DB) listTokens(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT token FROM user_tokens WHERE user_id = ? ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tokens for user %s: %w", userID, err)
	}
	defer rows.Close()

	tokens := []string{}
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("sqlite: scanning token row: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tokens: %w", err)
	}
	return tokens, nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Age,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
