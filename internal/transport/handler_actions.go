package transport

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fieldline/workspace-bff/internal/idempotency"
	"github.com/fieldline/workspace-bff/internal/observability"
	"github.com/fieldline/workspace-bff/internal/rpc"
	"github.com/fieldline/workspace-bff/model"
)

const defaultTaskList = "@default"

// ActionHandlers serves the dedicated mutation endpoints that replaced the
// deprecated RPC mutations. Each action accepts an optional X-Idempotency-Key
// header: a repeated key with the same input replays the stored result, a
// repeated key with a different input is a 409.
type ActionHandlers struct {
	Contacts rpc.ContactsService
	Tasks    rpc.TasksService

	Idem    idempotency.Store
	IdemTTL time.Duration

	Logger  *zap.Logger
	Metrics *observability.Metrics
}

type actionFunc func(ctx context.Context, id model.Identity, p rpc.Params) (map[string]any, *model.APIError)

// run wraps an action with identity extraction, body decoding, idempotency
// replay, and the shared response envelope.
func (h *ActionHandlers) run(action, fallbackCode string, fn actionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := model.IdentityFrom(r.Context())
		if !ok {
			WriteAPIError(w, unauthorized("Missing request identity"))
			return
		}

		body, apiErr := decodeBody(r)
		if apiErr != nil {
			WriteAPIError(w, apiErr)
			return
		}

		idemKey := r.Header.Get("X-Idempotency-Key")
		var storeKey, inputHash string
		if idemKey != "" && h.Idem != nil {
			storeKey = idempotency.FormatKey(id.UserID, action, idemKey)
			inputHash = idempotency.HashInput(body)
			cached, found, err := h.Idem.Check(r.Context(), storeKey, inputHash)
			if err != nil {
				WriteAPIError(w, h.classifyIdemError(action, err, fallbackCode))
				return
			}
			if found {
				if h.Metrics != nil {
					h.Metrics.RecordIdempotencyReplay(action)
				}
				observability.RequestLogger(r.Context(), h.logger()).Info("idempotent replay",
					zap.String("action", action))
				WriteJSON(w, http.StatusOK, model.OK(cached))
				return
			}
		}

		result, apiErr := fn(r.Context(), id, rpc.Params(body))
		if apiErr != nil {
			observability.RequestLogger(r.Context(), h.logger()).Warn("action failed",
				zap.String("action", action),
				zap.String("code", apiErr.Code),
				zap.Int("status", apiErr.StatusCode),
			)
			WriteAPIError(w, apiErr)
			return
		}

		if storeKey != "" {
			ttl := h.IdemTTL
			if ttl <= 0 {
				ttl = idempotency.DefaultTTL
			}
			if err := h.Idem.Store(r.Context(), storeKey, inputHash, result, ttl); err != nil {
				h.logger().Warn("idempotency store failed", zap.String("action", action), zap.Error(err))
			}
		}

		WriteJSON(w, http.StatusOK, model.OK(result))
	}
}

// classifyIdemError surfaces a key-reuse conflict as-is and hides store
// infrastructure failures behind the domain fallback.
func (h *ActionHandlers) classifyIdemError(action string, err error, fallbackCode string) *model.APIError {
	api := rpc.Translate(err, fallbackCode)
	if api.Code == model.CodeIdempotencyReplay {
		if h.Metrics != nil {
			h.Metrics.RecordIdempotencyConflict(action)
		}
	}
	return api
}

func (h *ActionHandlers) logger() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return zap.NewNop()
}

// --- Contacts actions ---

// HandleContactsModify updates one contact addressed by email. The legacy
// realestate spelling is accepted and mapped onto realEstate.
func (h *ActionHandlers) HandleContactsModify() http.HandlerFunc {
	return h.run("contactsModify", model.CodeContactsRPCError, func(ctx context.Context, id model.Identity, p rpc.Params) (map[string]any, *model.APIError) {
		email := p.String("email")
		if email == "" {
			return nil, model.NewTargetRequired("Missing required field: email")
		}
		realEstate := p.String("realEstate")
		if realEstate == "" {
			realEstate = p.String("realestate")
		}
		c := rpc.Contact{
			Email:      email,
			Name:       p.String("name"),
			Phone:      p.String("phone"),
			RealEstate: realEstate,
			Notes:      p.String("notes"),
		}
		result, err := h.Contacts.UpdateContact(ctx, id, c)
		if err != nil {
			return nil, rpc.Translate(err, model.CodeContactsRPCError)
		}
		return result, nil
	})
}

// HandleContactsDelete removes one contact addressed by email.
func (h *ActionHandlers) HandleContactsDelete() http.HandlerFunc {
	return h.run("contactsDelete", model.CodeContactsRPCError, func(ctx context.Context, id model.Identity, p rpc.Params) (map[string]any, *model.APIError) {
		email := p.String("email")
		if email == "" {
			return nil, model.NewTargetRequired("Missing required field: email")
		}
		if err := h.Contacts.DeleteContact(ctx, id, email); err != nil {
			return nil, rpc.Translate(err, model.CodeContactsRPCError)
		}
		return map[string]any{"deleted": true, "email": email}, nil
	})
}

// HandleContactsBulkDelete removes every contact named in emails.
func (h *ActionHandlers) HandleContactsBulkDelete() http.HandlerFunc {
	return h.run("contactsBulkDelete", model.CodeContactsRPCError, func(ctx context.Context, id model.Identity, p rpc.Params) (map[string]any, *model.APIError) {
		emails := p.StringSlice("emails")
		if len(emails) == 0 {
			return nil, model.NewTargetRequired("Provide a non-empty emails array naming the contacts to delete")
		}
		result, err := h.Contacts.BulkDeleteContacts(ctx, id, emails)
		if err != nil {
			return nil, rpc.Translate(err, model.CodeContactsRPCError)
		}
		return result, nil
	})
}

// --- Tasks actions ---

// HandleTasksCreate creates a task in the named list, defaulting to the
// primary list.
func (h *ActionHandlers) HandleTasksCreate() http.HandlerFunc {
	return h.run("tasksCreate", model.CodeTasksRPCError, func(ctx context.Context, id model.Identity, p rpc.Params) (map[string]any, *model.APIError) {
		title := p.String("title")
		if title == "" {
			return nil, model.NewInvalidParam("Missing required field: title")
		}
		listID := p.String("taskListId")
		if listID == "" {
			listID = defaultTaskList
		}
		in := rpc.TaskInput{
			Title: title,
			Notes: p.String("notes"),
			Due:   p.String("due"),
		}
		result, err := h.Tasks.CreateTask(ctx, id, listID, in)
		if err != nil {
			return nil, rpc.Translate(err, model.CodeTasksRPCError)
		}
		return result, nil
	})
}

// HandleTasksModify patches a task. Completing and reopening a task travel
// through updates.status as "completed" and "needsAction".
func (h *ActionHandlers) HandleTasksModify() http.HandlerFunc {
	return h.run("tasksModify", model.CodeTasksRPCError, func(ctx context.Context, id model.Identity, p rpc.Params) (map[string]any, *model.APIError) {
		taskID := p.String("taskId")
		if taskID == "" {
			return nil, model.NewTargetRequired("Missing required field: taskId")
		}
		updates := p.Map("updates")
		if len(updates) == 0 {
			return nil, model.NewInvalidParam("Provide a non-empty updates object")
		}
		if raw, present := updates["status"]; present {
			status, _ := raw.(string)
			if status != "completed" && status != "needsAction" {
				return nil, model.NewInvalidParamf("updates.status must be %q or %q", "completed", "needsAction")
			}
		}
		listID := p.String("taskListId")
		if listID == "" {
			listID = defaultTaskList
		}
		result, err := h.Tasks.UpdateTask(ctx, id, listID, taskID, updates)
		if err != nil {
			return nil, rpc.Translate(err, model.CodeTasksRPCError)
		}
		return result, nil
	})
}

// HandleTasksDelete removes one task.
func (h *ActionHandlers) HandleTasksDelete() http.HandlerFunc {
	return h.run("tasksDelete", model.CodeTasksRPCError, func(ctx context.Context, id model.Identity, p rpc.Params) (map[string]any, *model.APIError) {
		taskID := p.String("taskId")
		if taskID == "" {
			return nil, model.NewTargetRequired("Missing required field: taskId")
		}
		listID := p.String("taskListId")
		if listID == "" {
			listID = defaultTaskList
		}
		if err := h.Tasks.DeleteTask(ctx, id, listID, taskID); err != nil {
			return nil, rpc.Translate(err, model.CodeTasksRPCError)
		}
		return map[string]any{"deleted": true, "taskId": taskID}, nil
	})
}
