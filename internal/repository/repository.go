// Package repository declares the storage contracts the service layer
// depends on. Implementations live in sub-packages (see repository/sqlite).
package repository

import (
	"context"

	"github.com/sakif/task-manager/internal/model"
)

// SortDirection is the order applied to a TaskQuery's sort field.
type SortDirection int

const (
	Ascending SortDirection = iota
	Descending
)

// TaskQuery is a filter + sort + window over one owner's tasks.
//
// Zero values mean "no constraint": Completed == nil lists every task,
// SortField == "" keeps creation order, Limit == 0 returns everything and
// Skip == 0 starts at the first row.
type TaskQuery struct {
	Completed *bool
	SortField string // JSON field name, e.g. "createdAt"
	SortDir   SortDirection
	Limit     int
	Skip      int
}

// UserRepository is the credential store: user records plus the ordered
// list of active session tokens of each user.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error
	// DeleteUser removes every task owned by the user before the user row.
	DeleteUser(ctx context.Context, id string) error

	TokenStore

	SetAvatar(ctx context.Context, userID string, avatar []byte) error
	GetAvatar(ctx context.Context, userID string) ([]byte, error)
}

// TokenStore holds the per-user allow-list of session tokens.
type TokenStore interface {
	// GetUserByID returns the user with Tokens populated.
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	AddToken(ctx context.Context, userID, token string) error
	// RemoveToken is a no-op when the token is not in the list.
	RemoveToken(ctx context.Context, userID, token string) error
	ClearTokens(ctx context.Context, userID string) error
}

// TaskRepository stores tasks. Every method is scoped to an owner: a task
// belonging to someone else is reported as not found.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *model.Task) error
	GetTask(ctx context.Context, ownerID, id string) (*model.Task, error)
	ListTasks(ctx context.Context, ownerID string, q TaskQuery) ([]model.Task, error)
	UpdateTask(ctx context.Context, task *model.Task) error
	DeleteTask(ctx context.Context, ownerID, id string) (*model.Task, error)
}
