package rpc

import (
	"strings"

	"github.com/fieldline/workspace-bff/model"
)

// Request is the canonical operation envelope every dispatcher receives.
// Params is nil when the caller supplied neither a params object nor any
// forwardable root key; dispatchers that require a target must observe that
// absence rather than an empty bag.
type Request struct {
	Op     string
	Params Params
}

// rootKeys lists, per domain, the request-root fields that are forwarded
// into params. Anything else at the root is ignored.
var rootKeys = map[string][]string{
	"mail": {
		"query", "q", "ids", "id", "messageId", "draftId", "threadId",
		"to", "cc", "bcc", "subject", "body", "replyAll",
		"confirmSendToSelf", "add", "remove", "list", "resolve", "modify",
		"create", "name", "attachmentId", "mode",
		"maxResults", "pageToken", "aggregate", "snapshotToken", "ignoreSnapshot",
	},
	"calendar": {
		"eventId", "summary", "description", "location", "start", "end",
		"attendees", "updates", "timeMin", "timeMax", "query", "q",
		"checkConflicts", "force", "excludeEventId",
		"maxResults", "pageToken", "aggregate", "snapshotToken", "ignoreSnapshot",
	},
	"contacts": {
		"query", "q", "name", "email", "phone", "realEstate", "realestate", "notes",
		"contacts", "emails",
		"maxResults", "pageToken", "aggregate", "snapshotToken", "ignoreSnapshot",
	},
	"tasks": {
		"taskListId", "taskId", "title", "notes", "due", "showCompleted",
		"maxResults", "pageToken", "aggregate", "snapshotToken", "ignoreSnapshot",
	},
}

// Normalize collapses an inbound payload into the canonical {op, params}
// shape for the given domain. Root-level copies of a key overwrite nested
// ones. A missing or blank op is terminal.
func Normalize(domain string, body map[string]any) (Request, error) {
	op, _ := body["op"].(string)
	op = strings.TrimSpace(op)
	if op == "" {
		return Request{}, model.NewInvalidParam("Missing required field: op")
	}

	var params Params
	if nested, ok := body["params"].(map[string]any); ok && nested != nil {
		params = make(Params, len(nested))
		for k, v := range nested {
			params[k] = v
		}
	}

	for _, key := range rootKeys[domain] {
		v, ok := body[key]
		if !ok {
			continue
		}
		if params == nil {
			params = make(Params)
		}
		params[key] = v
	}

	return Request{Op: op, Params: params}, nil
}
