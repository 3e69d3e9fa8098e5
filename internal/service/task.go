package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

// TaskService manages tasks on behalf of their owner. Every method takes
// the caller's user ID; tasks of other users behave as if they did not
// exist.
type TaskService struct {
	repo   repository.TaskRepository
	logger *slog.Logger
}

func NewTaskService(repo repository.TaskRepository, logger *slog.Logger) *TaskService {
	return &TaskService{repo: repo, logger: logger}
}

// CreateTaskInput is the body of POST /tasks. Unknown keys are ignored.
type CreateTaskInput struct {
	Description string `json:"description" validate:"required"`
	Completed   bool   `json:"completed"`
}

// Create stores a new task owned by ownerID.
func (s *TaskService) Create(ctx context.Context, ownerID string, in CreateTaskInput) (*model.Task, error) {
	in.Description = strings.TrimSpace(in.Description)
	if err := validateStruct(&in); err != nil {
		return nil, err
	}

	task := &model.Task{
		Description: in.Description,
		Completed:   in.Completed,
		Owner:       ownerID,
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		s.logger.Error("failed to create task",
			slog.String("ownerID", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.PersistenceFailed("creating task", err)
	}
	return task, nil
}

// Get returns one of the owner's tasks.
func (s *TaskService) Get(ctx context.Context, ownerID, id string) (*model.Task, error) {
	task, err := s.repo.GetTask(ctx, ownerID, id)
	if err != nil {
		return nil, s.storeError("loading task", err)
	}
	return task, nil
}

// ListForOwner runs q against the owner's tasks. An empty result is not an
// error.
func (s *TaskService) ListForOwner(ctx context.Context, ownerID string, q repository.TaskQuery) ([]model.Task, error) {
	tasks, err := s.repo.ListTasks(ctx, ownerID, q)
	if err != nil {
		s.logger.Error("failed to list tasks",
			slog.String("ownerID", ownerID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.PersistenceFailed("listing tasks", err)
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return tasks, nil
}

// Update applies a partial update. Keys other than description and
// completed reject the whole update before the task is even looked up.
func (s *TaskService) Update(ctx context.Context, ownerID, id string, update map[string]json.RawMessage) (*model.Task, error) {
	if err := checkAllowedFields(update, taskUpdatableFields); err != nil {
		return nil, err
	}

	task, err := s.repo.GetTask(ctx, ownerID, id)
	if err != nil {
		return nil, s.storeError("loading task", err)
	}

	in := CreateTaskInput{Description: task.Description, Completed: task.Completed}
	if _, err := decodeField(update, "description", &in.Description); err != nil {
		return nil, err
	}
	if _, err := decodeField(update, "completed", &in.Completed); err != nil {
		return nil, err
	}
	in.Description = strings.TrimSpace(in.Description)
	if err := validateStruct(&in); err != nil {
		return nil, err
	}

	task.Description = in.Description
	task.Completed = in.Completed
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return nil, s.storeError("updating task", err)
	}
	return task, nil
}

// Delete removes one of the owner's tasks and returns it.
func (s *TaskService) Delete(ctx context.Context, ownerID, id string) (*model.Task, error) {
	task, err := s.repo.DeleteTask(ctx, ownerID, id)
	if err != nil {
		return nil, s.storeError("deleting task", err)
	}
	return task, nil
}

// storeError passes NotFound through and wraps anything else as a
// persistence failure.
func (s *TaskService) storeError(op string, err error) error {
	if errors.Is(err, apperror.ErrNotFound) {
		return err
	}
	s.logger.Error("task store failure", slog.String("op", op), slog.String("error", err.Error()))
	return apperror.PersistenceFailed(op, err)
}
