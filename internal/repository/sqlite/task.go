package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/repository"
)

var _ repository.TaskRepository = (*DB)(nil)

const taskColumns = `id, description, completed, owner_id, created_at, updated_at`

// sortColumns maps the sortable JSON field names onto columns. Only names
// listed here ever reach the ORDER BY clause.
var sortColumns = map[string]string{
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
	"description": "description",
	"completed":   "completed",
}

// CreateTask inserts task and fills in ID and timestamps.
func (db *DB) CreateTask(ctx context.Context, task *model.Task) error {
	now := time.Now().UTC()
	task.ID = xid.New().String()
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tasks (id, description, completed, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		task.ID,
		task.Description,
		task.Completed,
		task.Owner,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating task: %w", err)
	}
	return nil
}

// GetTask returns the task with the given id if ownerID owns it.
func (db *DB) GetTask(ctx context.Context, ownerID, id string) (*model.Task, error) {
	return getTask(ctx, db.conn, ownerID, id)
}

// ListTasks runs q against ownerID's tasks.
//
// The ORDER BY always ends with created_at, rowid so that rows tied on the
// requested field (and the whole list when no field is requested) come back
// in creation order. An unknown sort field is ignored.
func (db *DB) ListTasks(ctx context.Context, ownerID string, q repository.TaskQuery) ([]model.Task, error) {
	var (
		sb   strings.Builder
		args = []any{ownerID}
	)

	sb.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = ?`)

	if q.Completed != nil {
		sb.WriteString(` AND completed = ?`)
		args = append(args, *q.Completed)
	}

	sb.WriteString(` ORDER BY `)
	if column, ok := sortColumns[q.SortField]; ok {
		direction := "ASC"
		if q.SortDir == repository.Descending {
			direction = "DESC"
		}
		sb.WriteString(column + " " + direction + ", ")
	}
	sb.WriteString(`created_at ASC, rowid ASC`)

	// LIMIT -1 is SQLite for "no limit"; OFFSET needs a LIMIT clause.
	limit := -1
	if q.Limit > 0 {
		limit = q.Limit
	}
	skip := 0
	if q.Skip > 0 {
		skip = q.Skip
	}
	sb.WriteString(` LIMIT ? OFFSET ?`)
	args = append(args, limit, skip)

	rows, err := db.conn.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(
			&t.ID, &t.Description, &t.Completed, &t.Owner,
			&t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating tasks: %w", err)
	}

	return tasks, nil
}

// UpdateTask writes description and completed back. The WHERE clause
// includes the owner, so a task id belonging to someone else is not found.
func (db *DB) UpdateTask(ctx context.Context, task *model.Task) error {
	task.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE tasks
		 SET description = ?, completed = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ?`,
		task.Description,
		task.Completed,
		task.UpdatedAt,
		task.ID,
		task.Owner,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating task %s: %w", task.ID, err)
	}
	return checkAffected(result, apperror.NotFound("task", task.ID))
}

// DeleteTask removes the task and returns what was deleted.
func (db *DB) DeleteTask(ctx context.Context, ownerID, id string) (*model.Task, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: beginning delete of task %s: %w", id, err)
	}
	defer tx.Rollback()

	task, err := getTask(ctx, tx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = ? AND owner_id = ?`, id, ownerID,
	); err != nil {
		return nil, fmt.Errorf("sqlite: deleting task %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: committing delete of task %s: %w", id, err)
	}
	return task, nil
}

func getTask(ctx context.Context, q queryer, ownerID, id string) (*model.Task, error) {
	var t model.Task
	err := q.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	).Scan(
		&t.ID,
		&t.Description,
		&t.Completed,
		&t.Owner,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("task", id)
		}
		return nil, fmt.Errorf("sqlite: getting task %s: %w", id, err)
	}
	return &t, nil
}
