package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fieldline/workspace-bff/internal/idempotency"
	"github.com/fieldline/workspace-bff/internal/rpc"
	"github.com/fieldline/workspace-bff/model"
)

type fakeContacts struct {
	rpc.ContactsService

	updateCalls []rpc.Contact
	deleted     []string
	bulkDeleted [][]string
}

func (f *fakeContacts) UpdateContact(_ context.Context, _ model.Identity, c rpc.Contact) (map[string]any, error) {
	f.updateCalls = append(f.updateCalls, c)
	return map[string]any{"email": c.Email, "updated": true}, nil
}

func (f *fakeContacts) DeleteContact(_ context.Context, _ model.Identity, email string) error {
	f.deleted = append(f.deleted, email)
	return nil
}

func (f *fakeContacts) BulkDeleteContacts(_ context.Context, _ model.Identity, emails []string) (map[string]any, error) {
	f.bulkDeleted = append(f.bulkDeleted, emails)
	return map[string]any{"deleted": len(emails)}, nil
}

type fakeTasks struct {
	rpc.TasksService

	created     []rpc.TaskInput
	createLists []string
	updates     []map[string]any
	updateLists []string
	deletedIDs  []string
}

func (f *fakeTasks) CreateTask(_ context.Context, _ model.Identity, listID string, in rpc.TaskInput) (map[string]any, error) {
	f.createLists = append(f.createLists, listID)
	f.created = append(f.created, in)
	return map[string]any{"id": "t1", "title": in.Title}, nil
}

func (f *fakeTasks) UpdateTask(_ context.Context, _ model.Identity, listID, taskID string, updates map[string]any) (map[string]any, error) {
	f.updateLists = append(f.updateLists, listID)
	f.updates = append(f.updates, updates)
	return map[string]any{"id": taskID, "status": updates["status"]}, nil
}

func (f *fakeTasks) DeleteTask(_ context.Context, _ model.Identity, _, taskID string) error {
	f.deletedIDs = append(f.deletedIDs, taskID)
	return nil
}

func newActionHandlers(contacts *fakeContacts, tasks *fakeTasks) *ActionHandlers {
	return &ActionHandlers{
		Contacts: contacts,
		Tasks:    tasks,
		Idem:     idempotency.NewMemoryStore(),
	}
}

func serveAction(t *testing.T, handler http.HandlerFunc, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	wrapped := StaticAuthenticator(rpcTestIdentity)(handler)
	req := httptest.NewRequest("POST", "/api/actions/test", strings.NewReader(body))
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)
	return w
}

func decodeOK(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	if w.Code != 200 {
		t.Fatalf("status = %d, want 200; body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		OK   bool           `json:"ok"`
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.OK {
		t.Fatal("ok = false, want true")
	}
	return resp.Data
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder, wantStatus int) model.ErrorBody {
	t.Helper()
	if w.Code != wantStatus {
		t.Fatalf("status = %d, want %d; body = %s", w.Code, wantStatus, w.Body.String())
	}
	var resp model.ErrorBody
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestContactsModify_mapsLegacyRealEstateSpelling(t *testing.T) {
	contacts := &fakeContacts{}
	h := newActionHandlers(contacts, &fakeTasks{})

	w := serveAction(t, h.HandleContactsModify(),
		`{"email":"a@example.test","name":"Ada","realestate":"123 Main St"}`, nil)

	data := decodeOK(t, w)
	if data["updated"] != true {
		t.Errorf("data = %v", data)
	}
	if len(contacts.updateCalls) != 1 {
		t.Fatalf("UpdateContact calls = %d, want exactly 1", len(contacts.updateCalls))
	}
	if got := contacts.updateCalls[0].RealEstate; got != "123 Main St" {
		t.Errorf("RealEstate = %q, legacy spelling should map through", got)
	}
}

func TestContactsModify_canonicalSpellingWins(t *testing.T) {
	contacts := &fakeContacts{}
	h := newActionHandlers(contacts, &fakeTasks{})

	serveAction(t, h.HandleContactsModify(),
		`{"email":"a@example.test","realEstate":"canonical","realestate":"legacy"}`, nil)

	if got := contacts.updateCalls[0].RealEstate; got != "canonical" {
		t.Errorf("RealEstate = %q, want canonical spelling to take precedence", got)
	}
}

func TestContactsModify_missingEmail(t *testing.T) {
	contacts := &fakeContacts{}
	h := newActionHandlers(contacts, &fakeTasks{})

	w := serveAction(t, h.HandleContactsModify(), `{"name":"Ada"}`, nil)

	resp := decodeErr(t, w, 400)
	if resp.Code != model.CodeTargetRequired {
		t.Errorf("code = %q, want TARGET_REQUIRED", resp.Code)
	}
	if len(contacts.updateCalls) != 0 {
		t.Error("backend must not be called without a target")
	}
}

func TestContactsDelete(t *testing.T) {
	contacts := &fakeContacts{}
	h := newActionHandlers(contacts, &fakeTasks{})

	w := serveAction(t, h.HandleContactsDelete(), `{"email":"gone@example.test"}`, nil)

	data := decodeOK(t, w)
	if data["deleted"] != true || data["email"] != "gone@example.test" {
		t.Errorf("data = %v", data)
	}
	if len(contacts.deleted) != 1 || contacts.deleted[0] != "gone@example.test" {
		t.Errorf("deleted = %v", contacts.deleted)
	}
}

func TestContactsBulkDelete_requiresNonEmptyEmails(t *testing.T) {
	contacts := &fakeContacts{}
	h := newActionHandlers(contacts, &fakeTasks{})

	for _, body := range []string{`{}`, `{"emails":[]}`} {
		w := serveAction(t, h.HandleContactsBulkDelete(), body, nil)
		resp := decodeErr(t, w, 400)
		if resp.Code != model.CodeTargetRequired {
			t.Errorf("body %s: code = %q, want TARGET_REQUIRED", body, resp.Code)
		}
	}
	if len(contacts.bulkDeleted) != 0 {
		t.Error("backend must not be called with an empty target list")
	}

	w := serveAction(t, h.HandleContactsBulkDelete(), `{"emails":["a@x.test","b@x.test"]}`, nil)
	decodeOK(t, w)
	if len(contacts.bulkDeleted) != 1 || len(contacts.bulkDeleted[0]) != 2 {
		t.Errorf("bulkDeleted = %v", contacts.bulkDeleted)
	}
}

func TestTasksCreate_defaultsTaskList(t *testing.T) {
	tasks := &fakeTasks{}
	h := newActionHandlers(&fakeContacts{}, tasks)

	w := serveAction(t, h.HandleTasksCreate(), `{"title":"buy milk","notes":"2%"}`, nil)

	data := decodeOK(t, w)
	if data["title"] != "buy milk" {
		t.Errorf("data = %v", data)
	}
	if tasks.createLists[0] != "@default" {
		t.Errorf("list = %q, want @default", tasks.createLists[0])
	}
}

func TestTasksCreate_missingTitle(t *testing.T) {
	tasks := &fakeTasks{}
	h := newActionHandlers(&fakeContacts{}, tasks)

	w := serveAction(t, h.HandleTasksCreate(), `{"notes":"no title"}`, nil)

	resp := decodeErr(t, w, 400)
	if resp.Code != model.CodeInvalidParam {
		t.Errorf("code = %q, want INVALID_PARAM", resp.Code)
	}
	if len(tasks.created) != 0 {
		t.Error("backend must not be called without a title")
	}
}

func TestTasksModify_statusValidation(t *testing.T) {
	tasks := &fakeTasks{}
	h := newActionHandlers(&fakeContacts{}, tasks)

	w := serveAction(t, h.HandleTasksModify(),
		`{"taskId":"t1","updates":{"status":"done"}}`, nil)
	resp := decodeErr(t, w, 400)
	if resp.Code != model.CodeInvalidParam {
		t.Errorf("code = %q, want INVALID_PARAM", resp.Code)
	}
	if len(tasks.updates) != 0 {
		t.Fatal("invalid status must not reach the backend")
	}

	for _, status := range []string{"completed", "needsAction"} {
		w := serveAction(t, h.HandleTasksModify(),
			`{"taskId":"t1","updates":{"status":"`+status+`"}}`, nil)
		data := decodeOK(t, w)
		if data["status"] != status {
			t.Errorf("status = %v, want %q", data["status"], status)
		}
	}
	if len(tasks.updates) != 2 {
		t.Errorf("updates = %d, want 2", len(tasks.updates))
	}
}

func TestTasksModify_requiresTaskIDAndUpdates(t *testing.T) {
	tasks := &fakeTasks{}
	h := newActionHandlers(&fakeContacts{}, tasks)

	w := serveAction(t, h.HandleTasksModify(), `{"updates":{"title":"x"}}`, nil)
	if resp := decodeErr(t, w, 400); resp.Code != model.CodeTargetRequired {
		t.Errorf("code = %q, want TARGET_REQUIRED", resp.Code)
	}

	w = serveAction(t, h.HandleTasksModify(), `{"taskId":"t1"}`, nil)
	if resp := decodeErr(t, w, 400); resp.Code != model.CodeInvalidParam {
		t.Errorf("code = %q, want INVALID_PARAM", resp.Code)
	}
}

func TestTasksDelete(t *testing.T) {
	tasks := &fakeTasks{}
	h := newActionHandlers(&fakeContacts{}, tasks)

	w := serveAction(t, h.HandleTasksDelete(), `{"taskId":"t9"}`, nil)

	data := decodeOK(t, w)
	if data["deleted"] != true || data["taskId"] != "t9" {
		t.Errorf("data = %v", data)
	}
}

func TestActions_idempotentReplaySkipsBackend(t *testing.T) {
	tasks := &fakeTasks{}
	h := newActionHandlers(&fakeContacts{}, tasks)

	header := http.Header{}
	header.Set("X-Idempotency-Key", "abc-123")
	body := `{"title":"once"}`

	first := serveAction(t, h.HandleTasksCreate(), body, header)
	firstData := decodeOK(t, first)

	second := serveAction(t, h.HandleTasksCreate(), body, header)
	secondData := decodeOK(t, second)

	if len(tasks.created) != 1 {
		t.Fatalf("CreateTask calls = %d, replay must not re-execute", len(tasks.created))
	}
	if firstData["title"] != secondData["title"] {
		t.Errorf("replay data %v != original %v", secondData, firstData)
	}
}

func TestActions_keyReuseWithDifferentInputConflicts(t *testing.T) {
	tasks := &fakeTasks{}
	h := newActionHandlers(&fakeContacts{}, tasks)

	header := http.Header{}
	header.Set("X-Idempotency-Key", "abc-123")

	decodeOK(t, serveAction(t, h.HandleTasksCreate(), `{"title":"first"}`, header))

	w := serveAction(t, h.HandleTasksCreate(), `{"title":"second"}`, header)
	resp := decodeErr(t, w, 409)
	if resp.Code != model.CodeIdempotencyReplay {
		t.Errorf("code = %q, want IDEMPOTENCY_KEY_REUSED", resp.Code)
	}
	if len(tasks.created) != 1 {
		t.Errorf("CreateTask calls = %d, conflicting reuse must not execute", len(tasks.created))
	}
}

func TestActions_keysScopedPerAction(t *testing.T) {
	contacts := &fakeContacts{}
	tasks := &fakeTasks{}
	h := newActionHandlers(contacts, tasks)

	header := http.Header{}
	header.Set("X-Idempotency-Key", "shared-key")

	decodeOK(t, serveAction(t, h.HandleTasksCreate(), `{"title":"t"}`, header))
	decodeOK(t, serveAction(t, h.HandleContactsDelete(), `{"email":"a@x.test"}`, header))

	if len(tasks.created) != 1 || len(contacts.deleted) != 1 {
		t.Error("the same key on different actions must not collide")
	}
}

func TestActions_missingIdentity(t *testing.T) {
	h := newActionHandlers(&fakeContacts{}, &fakeTasks{})

	w := httptest.NewRecorder()
	h.HandleTasksDelete().ServeHTTP(w, httptest.NewRequest("POST", "/api/tasks/actions/delete", strings.NewReader(`{"taskId":"t1"}`)))

	if w.Code != 401 {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
