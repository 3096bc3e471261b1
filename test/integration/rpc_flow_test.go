// Package integration exercises the full HTTP stack: router, middleware,
// dispatchers, snapshot store, and action facades wired together against
// in-memory backing services.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldline/workspace-bff/internal/config"
	"github.com/fieldline/workspace-bff/internal/idempotency"
	"github.com/fieldline/workspace-bff/internal/observability"
	"github.com/fieldline/workspace-bff/internal/ratelimit"
	"github.com/fieldline/workspace-bff/internal/rpc"
	"github.com/fieldline/workspace-bff/internal/schema"
	"github.com/fieldline/workspace-bff/internal/shape"
	"github.com/fieldline/workspace-bff/internal/transport"
	"github.com/fieldline/workspace-bff/model"
)

const testSchemaDoc = `openapi: 3.0.3
info:
  title: workspace-bff
  version: 0.0.0
paths: {}
`

var testUser = model.Identity{UserID: "u1", Email: "me@example.test"}

// memMail serves canned messages out of memory, honoring pagination the way
// the real Gmail adapter does.
type memMail struct {
	rpc.MailService

	messages []map[string]any
	queries  []string
}

func (m *memMail) SearchEmails(_ context.Context, _ model.Identity, query string, page rpc.PageRequest) (rpc.Page, error) {
	m.queries = append(m.queries, query)

	start := 0
	if page.PageToken != "" {
		fmt.Sscanf(page.PageToken, "p%d", &start)
	}
	end := start + page.MaxResults
	if end > len(m.messages) {
		end = len(m.messages)
	}
	out := rpc.Page{Items: m.messages[start:end]}
	if end < len(m.messages) {
		out.NextPageToken = fmt.Sprintf("p%d", end)
	}
	return out, nil
}

type memTasks struct {
	rpc.TasksService

	tasks   map[string]map[string]any
	updates int
}

func (m *memTasks) ListTasks(_ context.Context, _ model.Identity, _ string, showCompleted bool, _ rpc.PageRequest) (rpc.Page, error) {
	var items []map[string]any
	for _, t := range m.tasks {
		if !showCompleted && t["status"] == "completed" {
			continue
		}
		items = append(items, t)
	}
	return rpc.Page{Items: items}, nil
}

func (m *memTasks) UpdateTask(_ context.Context, _ model.Identity, _, taskID string, updates map[string]any) (map[string]any, error) {
	m.updates++
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s not found", taskID)
	}
	for k, v := range updates {
		t[k] = v
	}
	return t, nil
}

type memContacts struct {
	rpc.ContactsService

	deleted []string
}

func (m *memContacts) BulkDeleteContacts(_ context.Context, _ model.Identity, emails []string) (map[string]any, error) {
	m.deleted = append(m.deleted, emails...)
	return map[string]any{"deleted": len(emails)}, nil
}

type fixture struct {
	router http.Handler
	mail   *memMail
	tasks  *memTasks
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	schemaPath := filepath.Join(t.TempDir(), "openapi.yaml")
	require.NoError(t, os.WriteFile(schemaPath, []byte(testSchemaDoc), 0o600))
	sch, err := schema.Load(schemaPath)
	require.NoError(t, err)

	var messages []map[string]any
	for i := 0; i < 7; i++ {
		messages = append(messages, map[string]any{"id": fmt.Sprintf("m%d", i), "subject": fmt.Sprintf("msg %d", i)})
	}
	mail := &memMail{messages: messages}

	tasks := &memTasks{tasks: map[string]map[string]any{
		"t1": {"id": "t1", "title": "write report", "status": "needsAction"},
	}}

	deps := rpc.Deps{
		Snapshots:     shape.NewSnapshotStore(shape.DefaultSnapshotTTL),
		Gate:          ratelimit.New(ratelimit.DefaultConfig()),
		AggregateCost: 5,
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:       config.Defaults(),
		Schema:       sch,
		Authenticate: transport.StaticAuthenticator(testUser),
		Mail:         rpc.NewMail(mail, deps),
		Calendar:     rpc.NewCalendar(nil, deps),
		Contacts:     rpc.NewContacts(&memContacts{}, deps),
		Tasks:        rpc.NewTasks(tasks, deps),
		Actions: &transport.ActionHandlers{
			Contacts: &memContacts{},
			Tasks:    tasks,
			Idem:     idempotency.NewMemoryStore(),
		},
		Snapshots: deps.Snapshots,
		Readiness: observability.ReadinessChecks{SchemaLoaded: func() bool { return true }},
	})

	return &fixture{router: router, mail: mail, tasks: tasks}
}

func (f *fixture) post(t *testing.T, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	require.Equal(t, 200, w.Code, w.Body.String())
	var resp struct {
		OK   bool           `json:"ok"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.OK)
	return resp.Data
}

func TestMailSearch_singlePageWithETagRevalidation(t *testing.T) {
	f := newFixture(t)
	body := `{"op":"search","params":{"query":"is:unread","maxResults":3}}`

	first := f.post(t, "/api/rpc/mail", body, nil)
	data := decodeData(t, first)

	items := data["items"].([]any)
	assert.Len(t, items, 3)
	assert.Equal(t, true, data["hasMore"])
	assert.NotEmpty(t, data["nextPageToken"])
	assert.Empty(t, data["snapshotToken"], "single-page mode must not mint snapshots")

	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	header := http.Header{}
	header.Set("If-None-Match", etag)
	second := f.post(t, "/api/rpc/mail", body, header)

	assert.Equal(t, http.StatusNotModified, second.Code)
	assert.Zero(t, second.Body.Len(), "304 must have an empty body")
	assert.Equal(t, etag, second.Header().Get("ETag"))
}

func TestMailSearch_aggregateMintsReplayableSnapshot(t *testing.T) {
	f := newFixture(t)

	first := f.post(t, "/api/rpc/mail", `{"op":"search","params":{"query":"from:ada","aggregate":true}}`, nil)
	data := decodeData(t, first)

	assert.Len(t, data["items"].([]any), 7)
	assert.Equal(t, false, data["hasMore"])
	token, _ := data["snapshotToken"].(string)
	require.NotEmpty(t, token, "aggregate mode must mint a snapshot")

	// Replaying through the token reuses the stored query even when the
	// request names a different one.
	body := fmt.Sprintf(`{"op":"search","params":{"query":"IGNORED","snapshotToken":%q,"aggregate":true}}`, token)
	decodeData(t, f.post(t, "/api/rpc/mail", body, nil))

	last := f.mail.queries[len(f.mail.queries)-1]
	assert.Equal(t, "from:ada", last, "snapshot replay must pin the original query")
}

func TestMailSearch_unknownSnapshotToken(t *testing.T) {
	f := newFixture(t)

	w := f.post(t, "/api/rpc/mail", `{"op":"search","params":{"query":"x","snapshotToken":"nope"}}`, nil)

	require.Equal(t, 400, w.Code)
	var resp model.ErrorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, model.CodeSnapshotNotFound, resp.Code)
}

func TestTasksComplete_redirectsToActionEndpoint(t *testing.T) {
	f := newFixture(t)

	w := f.post(t, "/api/rpc/tasks", `{"op":"complete","params":{"taskId":"t1"}}`, nil)

	require.Equal(t, http.StatusGone, w.Code)
	var resp model.ErrorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, model.CodeTasksMutationDisabled, resp.Code)

	endpoints, _ := resp.Details["endpoints"].(map[string]any)
	assert.Equal(t, "/api/tasks/actions/modify", endpoints["modify"])
	assert.Contains(t, resp.Details["hint"], `status: "completed"`)
	assert.Zero(t, f.tasks.updates, "deprecated RPC op must not mutate")
}

func TestTasksComplete_viaActionFacade(t *testing.T) {
	f := newFixture(t)

	body := `{"taskId":"t1","updates":{"status":"completed"}}`
	header := http.Header{}
	header.Set("X-Idempotency-Key", "complete-t1")

	data := decodeData(t, f.post(t, "/api/tasks/actions/modify", body, header))
	assert.Equal(t, "completed", data["status"])
	assert.Equal(t, 1, f.tasks.updates)

	// Same key + same body replays without a second mutation.
	replay := decodeData(t, f.post(t, "/api/tasks/actions/modify", body, header))
	assert.Equal(t, "completed", replay["status"])
	assert.Equal(t, 1, f.tasks.updates)

	// The completed task now only shows up when asked for.
	defaultList := decodeData(t, f.post(t, "/api/rpc/tasks", `{"op":"list"}`, nil))
	assert.Empty(t, defaultList["items"])

	withCompleted := decodeData(t, f.post(t, "/api/rpc/tasks", `{"op":"list","params":{"showCompleted":true}}`, nil))
	assert.Len(t, withCompleted["items"].([]any), 1)
}

func TestContactsBulkDelete_rpcRedirectThenFacade(t *testing.T) {
	f := newFixture(t)

	w := f.post(t, "/api/rpc/contacts", `{"op":"bulkDelete","params":{"emails":["a@x.test"]}}`, nil)
	require.Equal(t, http.StatusGone, w.Code)
	var resp model.ErrorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, model.CodeContactsMutationDisabled, resp.Code)

	endpoints, _ := resp.Details["endpoints"].(map[string]any)
	target, _ := endpoints["bulkDelete"].(string)
	require.Equal(t, "/api/contacts/actions/bulkDelete", target)

	data := decodeData(t, f.post(t, target, `{"emails":["a@x.test","b@x.test"]}`, nil))
	assert.Equal(t, float64(2), data["deleted"])
}

func TestQueryParamsMergeWithBodyPrecedence(t *testing.T) {
	f := newFixture(t)

	// maxResults arrives via query string; body carries only op and query.
	data := decodeData(t, f.post(t, "/api/rpc/mail?maxResults=2", `{"op":"search","query":"x"}`, nil))
	assert.Len(t, data["items"].([]any), 2)

	// Body value wins over the query string.
	data = decodeData(t, f.post(t, "/api/rpc/mail?maxResults=2", `{"op":"search","query":"x","maxResults":4}`, nil))
	assert.Len(t, data["items"].([]any), 4)
}
