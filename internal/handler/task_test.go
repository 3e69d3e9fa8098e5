package handler_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/service"
)

func (e *testEnv) createTask(t *testing.T, as *service.AuthResult, body string) model.Task {
	t.Helper()
	rr := serve(t, http.MethodPost, "/tasks", e.th.HandleCreate, jsonRequest(http.MethodPost, "/tasks", body), as)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var task model.Task
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&task))
	return task
}

func (e *testEnv) listTasks(t *testing.T, as *service.AuthResult, query string) []model.Task {
	t.Helper()
	rr := serve(t, http.MethodGet, "/tasks", e.th.HandleList, httptest.NewRequest(http.MethodGet, "/tasks"+query, nil), as)
	require.Equal(t, http.StatusOK, rr.Code)

	var tasks []model.Task
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&tasks))
	return tasks
}

func TestHandleCreateTask(t *testing.T) {
	e := newTestEnv(t)
	alice := e.register(t, "Alice", "alice@example.com")

	task := e.createTask(t, alice, `{"description":"Write tests","owner":"someone-else"}`)
	assert.Equal(t, "Write tests", task.Description)
	assert.False(t, task.Completed)
	assert.Equal(t, alice.User.ID, task.Owner, "owner comes from the token, never the body")

	rr := serve(t, http.MethodPost, "/tasks", e.th.HandleCreate, jsonRequest(http.MethodPost, "/tasks", `{"completed":true}`), alice)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "description", decodeError(t, rr).Field)
}

func TestHandleListTasks(t *testing.T) {
	e := newTestEnv(t)
	alice := e.register(t, "Alice", "alice@example.com")
	bob := e.register(t, "Bob", "bob@example.com")

	for i := 1; i <= 5; i++ {
		e.createTask(t, alice, fmt.Sprintf(`{"description":"task %d","completed":%t}`, i, i%2 == 1))
	}
	e.createTask(t, bob, `{"description":"bob's task","completed":true}`)

	all := e.listTasks(t, alice, "")
	assert.Len(t, all, 5)

	page := e.listTasks(t, alice, "?limit=2&skip=2")
	require.Len(t, page, 2)
	assert.Equal(t, "task 3", page[0].Description)
	assert.Equal(t, "task 4", page[1].Description)

	done := e.listTasks(t, alice, "?completed=true")
	require.Len(t, done, 3)
	for _, task := range done {
		assert.True(t, task.Completed)
		assert.Equal(t, alice.User.ID, task.Owner)
	}

	desc := e.listTasks(t, alice, "?sortBy=description:desc&limit=1")
	require.Len(t, desc, 1)
	assert.Equal(t, "task 5", desc[0].Description)

	// Bad parameters are ignored rather than rejected.
	assert.Len(t, e.listTasks(t, alice, "?completed=maybe&limit=abc&skip=-3&sortBy=colour:desc"), 5)

	empty := e.listTasks(t, e.register(t, "Carol", "carol@example.com"), "")
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestHandleTaskByID(t *testing.T) {
	e := newTestEnv(t)
	alice := e.register(t, "Alice", "alice@example.com")
	mallory := e.register(t, "Mallory", "mallory@example.com")
	task := e.createTask(t, alice, `{"description":"secret plan"}`)
	target := "/tasks/" + task.ID

	// Another user sees exactly what a missing task looks like.
	for _, tc := range []struct {
		method string
		h      http.HandlerFunc
		body   string
	}{
		{http.MethodGet, e.th.HandleGet, ""},
		{http.MethodPatch, e.th.HandleUpdate, `{"completed":true}`},
		{http.MethodDelete, e.th.HandleDelete, ""},
	} {
		rr := serve(t, tc.method, "/tasks/{id}", tc.h, jsonRequest(tc.method, target, tc.body), mallory)
		assert.Equal(t, http.StatusNotFound, rr.Code, tc.method)
	}

	rr := serve(t, http.MethodGet, "/tasks/{id}", e.th.HandleGet, httptest.NewRequest(http.MethodGet, target, nil), alice)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(t, http.MethodPatch, "/tasks/{id}", e.th.HandleUpdate,
		jsonRequest(http.MethodPatch, target, `{"completed":true,"owner":"mallory"}`), alice)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, apperror.KindDisallowedField, decodeError(t, rr).Kind)

	rr = serve(t, http.MethodPatch, "/tasks/{id}", e.th.HandleUpdate, jsonRequest(http.MethodPatch, target, `{"completed":true}`), alice)
	require.Equal(t, http.StatusOK, rr.Code)
	var updated model.Task
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&updated))
	assert.True(t, updated.Completed)
	assert.Equal(t, "secret plan", updated.Description)

	rr = serve(t, http.MethodDelete, "/tasks/{id}", e.th.HandleDelete, httptest.NewRequest(http.MethodDelete, target, nil), alice)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(t, http.MethodGet, "/tasks/{id}", e.th.HandleGet, httptest.NewRequest(http.MethodGet, target, nil), alice)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
