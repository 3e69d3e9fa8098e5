package service

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/sakif/task-manager/internal/repository"
)

// ParseTaskQuery reads the list parameters of GET /tasks. It never fails:
//
//   - completed filters only when it is exactly "true" or "false".
//   - sortBy is "field:dir"; dir "desc" sorts descending, anything else
//     ascending. Unknown fields are kept here and ignored by the store, so
//     they sort nothing rather than fail the request.
//   - limit and skip apply only when they parse as positive integers.
func ParseTaskQuery(v url.Values) repository.TaskQuery {
	var q repository.TaskQuery

	switch v.Get("completed") {
	case "true":
		completed := true
		q.Completed = &completed
	case "false":
		completed := false
		q.Completed = &completed
	}

	if sortBy := v.Get("sortBy"); sortBy != "" {
		field, dir, _ := strings.Cut(sortBy, ":")
		q.SortField = field
		if dir == "desc" {
			q.SortDir = repository.Descending
		}
	}

	if n, err := strconv.Atoi(v.Get("limit")); err == nil && n > 0 {
		q.Limit = n
	}
	if n, err := strconv.Atoi(v.Get("skip")); err == nil && n > 0 {
		q.Skip = n
	}

	return q
}
