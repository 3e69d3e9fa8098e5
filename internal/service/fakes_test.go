package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

// =========================================================================
// IN-MEMORY REPOSITORIES
// =========================================================================

type memStore struct {
	users   map[string]*model.User
	avatars map[string][]byte
	tasks   map[string]*model.Task
	order   []string // task IDs in creation order
	nextID  int

	// failWith makes every write return this error.
	failWith error
	// tokenErr makes AddToken alone fail.
	tokenErr error
}

var (
	_ repository.UserRepository = (*memStore)(nil)
	_ repository.TaskRepository = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[string]*model.User),
		avatars: make(map[string][]byte),
		tasks:   make(map[string]*model.Task),
	}
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) CreateUser(_ context.Context, u *model.User) error {
	if m.failWith != nil {
		return m.failWith
	}
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return apperror.Conflict("user", u.Email)
		}
	}
	u.ID = m.id("user")
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	u.Tokens = []string{}
	stored := *u
	m.users[u.ID] = &stored
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	cp := *u
	cp.Tokens = slices.Clone(u.Tokens)
	return &cp, nil
}

func (m *memStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	for id, u := range m.users {
		if u.Email == email {
			return m.GetUserByID(ctx, id)
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (m *memStore) UpdateUser(_ context.Context, u *model.User) error {
	if m.failWith != nil {
		return m.failWith
	}
	stored, ok := m.users[u.ID]
	if !ok {
		return apperror.NotFound("user", u.ID)
	}
	for id, other := range m.users {
		if id != u.ID && other.Email == u.Email {
			return apperror.Conflict("user", u.Email)
		}
	}
	stored.Name, stored.Email, stored.Age, stored.PasswordHash = u.Name, u.Email, u.Age, u.PasswordHash
	return nil
}

func (m *memStore) DeleteUser(_ context.Context, id string) error {
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(m.avatars, id)
	for tid, t := range m.tasks {
		if t.Owner == id {
			delete(m.tasks, tid)
		}
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) AddToken(_ context.Context, userID, token string) error {
	if m.tokenErr != nil {
		return m.tokenErr
	}
	u, ok := m.users[userID]
	if !ok {
		return errors.New("unknown user")
	}
	u.Tokens = append(u.Tokens, token)
	return nil
}

func (m *memStore) RemoveToken(_ context.Context, userID, token string) error {
	if u, ok := m.users[userID]; ok {
		u.Tokens = slices.DeleteFunc(u.Tokens, func(t string) bool { return t == token })
	}
	return nil
}

func (m *memStore) ClearTokens(_ context.Context, userID string) error {
	if u, ok := m.users[userID]; ok {
		u.Tokens = nil
	}
	return nil
}

func (m *memStore) SetAvatar(_ context.Context, userID string, img []byte) error {
	if _, ok := m.users[userID]; !ok {
		return apperror.NotFound("user", userID)
	}
	m.avatars[userID] = img
	return nil
}

func (m *memStore) GetAvatar(_ context.Context, userID string) ([]byte, error) {
	img := m.avatars[userID]
	if len(img) == 0 {
		return nil, apperror.NotFound("avatar", userID)
	}
	return img, nil
}

func (m *memStore) CreateTask(_ context.Context, t *model.Task) error {
	if m.failWith != nil {
		return m.failWith
	}
	t.ID = m.id("task")
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	stored := *t
	m.tasks[t.ID] = &stored
	m.order = append(m.order, t.ID)
	return nil
}

func (m *memStore) GetTask(_ context.Context, ownerID, id string) (*model.Task, error) {
	t, ok := m.tasks[id]
	if !ok || t.Owner != ownerID {
		return nil, apperror.NotFound("task", id)
	}
	cp := *t
	return &cp, nil
}

// ListTasks honours the filter and window; sorting is covered by the
// sqlite tests.
func (m *memStore) ListTasks(_ context.Context, ownerID string, q repository.TaskQuery) ([]model.Task, error) {
	var out []model.Task
	for _, id := range m.order {
		t, ok := m.tasks[id]
		if !ok || t.Owner != ownerID {
			continue
		}
		if q.Completed != nil && t.Completed != *q.Completed {
			continue
		}
		out = append(out, *t)
	}
	if q.SortField == "description" {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Description < out[j].Description })
	}
	if q.Skip >= len(out) {
		return nil, nil
	}
	out = out[q.Skip:]
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memStore) UpdateTask(_ context.Context, t *model.Task) error {
	if m.failWith != nil {
		return m.failWith
	}
	stored, ok := m.tasks[t.ID]
	if !ok || stored.Owner != t.Owner {
		return apperror.NotFound("task", t.ID)
	}
	*stored = *t
	return nil
}

func (m *memStore) DeleteTask(_ context.Context, ownerID, id string) (*model.Task, error) {
	t, ok := m.tasks[id]
	if !ok || t.Owner != ownerID {
		return nil, apperror.NotFound("task", id)
	}
	delete(m.tasks, id)
	return t, nil
}

// =========================================================================
// NOTIFIER
// =========================================================================

type sentMail struct {
	kind, email, name string
}

type recordingNotifier struct {
	sent []sentMail
	err  error
}

func (r *recordingNotifier) SendWelcome(_ context.Context, email, name string) error {
	r.sent = append(r.sent, sentMail{"welcome", email, name})
	return r.err
}

func (r *recordingNotifier) SendFarewell(_ context.Context, email, name string) error {
	r.sent = append(r.sent, sentMail{"farewell", email, name})
	return r.err
}

// =========================================================================
// HELPERS
// =========================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type userFixture struct {
	svc      *UserService
	store    *memStore
	tokens   *auth.TokenService
	notifier *recordingNotifier
}

func newUserFixture(t *testing.T) *userFixture {
	t.Helper()
	signer, err := auth.NewSigner("service-test-secret-0123456789", 0)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	store := newMemStore()
	tokens := auth.NewTokenService(signer, store, testLogger())
	notifier := &recordingNotifier{}
	svc := NewUserService(store, tokens, auth.NewPasswordService(bcrypt.MinCost), notifier, testLogger())
	return &userFixture{svc: svc, store: store, tokens: tokens, notifier: notifier}
}

func (f *userFixture) register(t *testing.T, name, email string) *AuthResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{
		Name:     name,
		Email:    email,
		Password: "red12345!",
	})
	if err != nil {
		t.Fatalf("Register(%s) error = %v", email, err)
	}
	return res
}

func assertValidation(t *testing.T, err error, field, kind string) {
	t.Helper()
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error %v is not an *AppError", err)
	}
	if appErr.Field != field {
		t.Errorf("Field = %q, want %q", appErr.Field, field)
	}
	if appErr.Kind != kind {
		t.Errorf("Kind = %q, want %q", appErr.Kind, kind)
	}
}
