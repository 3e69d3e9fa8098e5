package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/service"
)

// TaskHandler serves the /tasks routes. All of them sit behind
// auth.RequireAuth and act on the caller's own tasks only.
type TaskHandler struct {
	tasks  *service.TaskService
	logger *slog.Logger
}

func NewTaskHandler(tasks *service.TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

// HandleCreate creates a task owned by the caller.
//
// HTTP: POST /tasks → 201
// BODY: {"description": "...", "completed": false}
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var in service.CreateTaskInput
	if err := decodeJSON(r, &in); err != nil {
		WriteError(w, err)
		return
	}

	task, err := h.tasks.Create(r.Context(), user.ID, in)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// HandleList lists the caller's tasks.
//
// HTTP: GET /tasks?completed=true&sortBy=createdAt:desc&limit=10&skip=20
//
// Malformed parameters never fail the request; see service.ParseTaskQuery.
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	q := service.ParseTaskQuery(r.URL.Query())
	tasks, err := h.tasks.ListForOwner(r.Context(), user.ID, q)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// HandleGet returns one task.
//
// HTTP: GET /tasks/{id} → 200, or 404 if absent or owned by someone else
func (h *TaskHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	task, err := h.tasks.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// HandleUpdate applies a whitelisted partial update.
//
// HTTP: PATCH /tasks/{id}
// BODY: any subset of {"description", "completed"}
func (h *TaskHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var update map[string]json.RawMessage
	if err := decodeJSON(r, &update); err != nil {
		WriteError(w, err)
		return
	}

	task, err := h.tasks.Update(r.Context(), user.ID, chi.URLParam(r, "id"), update)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// HandleDelete deletes a task and returns it.
//
// HTTP: DELETE /tasks/{id}
func (h *TaskHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	task, err := h.tasks.Delete(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
