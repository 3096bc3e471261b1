package rpc

import (
	"context"

	"github.com/fieldline/workspace-bff/internal/shape"
	"github.com/fieldline/workspace-bff/model"
)

// defaultTaskList is the Tasks API alias for the user's primary list.
const defaultTaskList = "@default"

// Tasks dispatches the tasks-domain operations. Every mutation is disabled
// here; the redirect table answers before any validation runs.
type Tasks struct {
	svc  TasksService
	deps Deps
}

// NewTasks builds the tasks dispatcher.
func NewTasks(svc TasksService, deps Deps) *Tasks {
	return &Tasks{svc: svc, deps: deps}
}

// Dispatch runs one tasks operation.
func (d *Tasks) Dispatch(ctx context.Context, id model.Identity, req Request) (any, *model.APIError) {
	if redirect := tasksRedirect(req.Op); redirect != nil {
		return nil, redirect
	}

	p := req.Params

	var result any
	var err error

	switch req.Op {
	case "list":
		result, err = d.list(ctx, id, p)
	case "get":
		return nil, model.NewNotImplemented("get is not available; use list and filter client-side")
	default:
		return nil, model.NewInvalidParamf("Unknown tasks operation %q", req.Op)
	}

	if err != nil {
		return nil, Translate(err, model.CodeTasksRPCError)
	}
	if result == nil {
		return nil, model.NewUndefinedResult(req.Op)
	}
	return result, nil
}

func (d *Tasks) list(ctx context.Context, id model.Identity, p Params) (any, error) {
	listID := p.String("taskListId")
	if listID == "" {
		listID = defaultTaskList
	}
	query := map[string]any{
		"taskListId":    listID,
		"showCompleted": p.Bool("showCompleted"),
	}
	env, err := d.deps.runList(ctx, "tasks", id, p, query, tasksAggregateCap,
		func(q map[string]any) shape.PageFunc {
			qListID, _ := q["taskListId"].(string)
			showCompleted, _ := q["showCompleted"].(bool)
			return func(ctx context.Context, token string, size int) ([]map[string]any, string, error) {
				page, err := d.svc.ListTasks(ctx, id, qListID, showCompleted, PageRequest{MaxResults: size, PageToken: token})
				if err != nil {
					return nil, "", err
				}
				return page.Items, page.NextPageToken, nil
			}
		})
	if err != nil {
		return nil, err
	}
	return env, nil
}
