package rpc

import "github.com/fieldline/workspace-bff/model"

// Redirect descriptors for mutations that were moved off the unified RPC
// surface onto dedicated action endpoints. These tables are consulted before
// any parameter validation; a matching op returns 410 without touching a
// backing service.

var contactsEndpoints = map[string]string{
	"modify":     "/api/contacts/actions/modify",
	"delete":     "/api/contacts/actions/delete",
	"bulkDelete": "/api/contacts/actions/bulkDelete",
}

var tasksEndpoints = map[string]string{
	"create": "/api/tasks/actions/create",
	"modify": "/api/tasks/actions/modify",
	"delete": "/api/tasks/actions/delete",
}

var contactsDeprecated = map[string]bool{
	"update":     true,
	"delete":     true,
	"bulkDelete": true,
}

var tasksDeprecatedHints = map[string]string{
	"create":   `POST /api/tasks/actions/create with {title: "..."}`,
	"update":   `POST /api/tasks/actions/modify with {taskId: "...", updates: {...}}`,
	"delete":   `POST /api/tasks/actions/delete with {taskId: "..."}`,
	"complete": `POST /api/tasks/actions/modify with {taskId: "...", updates: {status: "completed"}}`,
	"reopen":   `POST /api/tasks/actions/modify with {taskId: "...", updates: {status: "needsAction"}}`,
}

// contactsRedirect returns the 410 descriptor for a disabled contacts op, or
// nil when the op is still live on the RPC surface.
func contactsRedirect(op string) *model.APIError {
	if !contactsDeprecated[op] {
		return nil
	}
	return model.NewDeprecatedOperation(model.CodeContactsMutationDisabled, op, contactsEndpoints, "")
}

// tasksRedirect returns the 410 descriptor for a disabled tasks op, or nil.
func tasksRedirect(op string) *model.APIError {
	hint, ok := tasksDeprecatedHints[op]
	if !ok {
		return nil
	}
	return model.NewDeprecatedOperation(model.CodeTasksMutationDisabled, op, tasksEndpoints, hint)
}
