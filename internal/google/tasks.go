package google

import (
	"context"

	"google.golang.org/api/tasks/v1"

	"github.com/fieldline/workspace-bff/internal/rpc"
	"github.com/fieldline/workspace-bff/model"
)

// TasksAPI implements the tasks service surface.
type TasksAPI struct {
	provider *Provider
}

// NewTasksAPI builds the Tasks adapter.
func NewTasksAPI(provider *Provider) *TasksAPI {
	return &TasksAPI{provider: provider}
}

func (t *TasksAPI) svc(ctx context.Context, id model.Identity) (*tasks.Service, error) {
	clients, err := t.provider.clients(ctx, id)
	if err != nil {
		return nil, err
	}
	return clients.tasks, nil
}

func (t *TasksAPI) ListTasks(ctx context.Context, id model.Identity, taskListID string, showCompleted bool, page rpc.PageRequest) (rpc.Page, error) {
	svc, err := t.svc(ctx, id)
	if err != nil {
		return rpc.Page{}, err
	}

	call := svc.Tasks.List(taskListID).
		MaxResults(int64(page.MaxResults)).
		ShowCompleted(showCompleted)
	if showCompleted {
		call = call.ShowHidden(true)
	}
	if page.PageToken != "" {
		call = call.PageToken(page.PageToken)
	}

	res, err := call.Context(ctx).Do()
	if err != nil {
		return rpc.Page{}, wrapError(err)
	}

	items := make([]map[string]any, 0, len(res.Items))
	for _, task := range res.Items {
		items = append(items, simplifyTask(task))
	}
	return rpc.Page{Items: items, NextPageToken: res.NextPageToken}, nil
}

func (t *TasksAPI) CreateTask(ctx context.Context, id model.Identity, taskListID string, in rpc.TaskInput) (map[string]any, error) {
	svc, err := t.svc(ctx, id)
	if err != nil {
		return nil, err
	}
	created, err := svc.Tasks.Insert(taskListID, &tasks.Task{
		Title: in.Title,
		Notes: in.Notes,
		Due:   in.Due,
	}).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	return simplifyTask(created), nil
}

func (t *TasksAPI) UpdateTask(ctx context.Context, id model.Identity, taskListID, taskID string, updates map[string]any) (map[string]any, error) {
	svc, err := t.svc(ctx, id)
	if err != nil {
		return nil, err
	}

	// The Tasks API has no patch-by-map; read-modify-write the full task.
	current, err := svc.Tasks.Get(taskListID, taskID).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	if v, ok := updates["title"].(string); ok {
		current.Title = v
	}
	if v, ok := updates["notes"].(string); ok {
		current.Notes = v
	}
	if v, ok := updates["due"].(string); ok {
		current.Due = v
	}
	if v, ok := updates["status"].(string); ok {
		current.Status = v
		if v == "needsAction" {
			current.Completed = nil
		}
	}

	updated, err := svc.Tasks.Update(taskListID, taskID, current).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	return simplifyTask(updated), nil
}

func (t *TasksAPI) DeleteTask(ctx context.Context, id model.Identity, taskListID, taskID string) error {
	svc, err := t.svc(ctx, id)
	if err != nil {
		return err
	}
	if err := svc.Tasks.Delete(taskListID, taskID).Context(ctx).Do(); err != nil {
		return wrapError(err)
	}
	return nil
}

func simplifyTask(task *tasks.Task) map[string]any {
	out := map[string]any{
		"id":     task.Id,
		"title":  task.Title,
		"status": task.Status,
	}
	if task.Notes != "" {
		out["notes"] = task.Notes
	}
	if task.Due != "" {
		out["due"] = task.Due
	}
	if task.Completed != nil {
		out["completed"] = *task.Completed
	}
	return out
}
