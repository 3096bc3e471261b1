package rpc

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldline/workspace-bff/model"
)

type calendarStub struct {
	mu      sync.Mutex
	calls   []string
	created int

	conflicts []map[string]any
}

func (s *calendarStub) record(name string) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
}

func (s *calendarStub) ListEvents(_ context.Context, _ model.Identity, _ EventWindow, _ PageRequest) (Page, error) {
	s.record("ListEvents")
	return Page{Items: []map[string]any{{"id": "ev1"}}}, nil
}

func (s *calendarStub) GetEvent(_ context.Context, _ model.Identity, eventID string) (map[string]any, error) {
	s.record("GetEvent")
	return map[string]any{"id": eventID}, nil
}

func (s *calendarStub) CreateEvent(_ context.Context, _ model.Identity, in EventInput) (map[string]any, error) {
	s.record("CreateEvent")
	s.created++
	return map[string]any{"id": "new", "summary": in.Summary}, nil
}

func (s *calendarStub) UpdateEvent(_ context.Context, _ model.Identity, eventID string, _ map[string]any) (map[string]any, error) {
	s.record("UpdateEvent")
	return map[string]any{"id": eventID}, nil
}

func (s *calendarStub) DeleteEvent(_ context.Context, _ model.Identity, _ string) error {
	s.record("DeleteEvent")
	return nil
}

func (s *calendarStub) FindConflicts(_ context.Context, _ model.Identity, _, _ EventTime, _ string) ([]map[string]any, error) {
	s.record("FindConflicts")
	return s.conflicts, nil
}

func validTimes() Params {
	return Params{
		"summary": "standup",
		"start":   map[string]any{"dateTime": "2026-02-10T09:00:00-07:00", "timeZone": "America/Denver"},
		"end":     map[string]any{"dateTime": "2026-02-10T09:30:00-07:00", "timeZone": "America/Denver"},
	}
}

func TestCalendarCreateBlockedByConflict(t *testing.T) {
	stub := &calendarStub{conflicts: []map[string]any{{"id": "busy1"}}}
	d := NewCalendar(stub, testDeps())

	p := validTimes()
	p["checkConflicts"] = true
	_, apiErr := d.Dispatch(context.Background(), testIdentity, Request{Op: "create", Params: p})
	require.NotNil(t, apiErr)
	assert.Equal(t, 409, apiErr.StatusCode)
	assert.Equal(t, true, apiErr.Details["blocked"])
	assert.Equal(t, 1, apiErr.Details["conflictsCount"])
	assert.Zero(t, stub.created, "blocked create must not mutate")
}

func TestCalendarCreateForcedPastConflict(t *testing.T) {
	stub := &calendarStub{conflicts: []map[string]any{{"id": "busy1"}}}
	d := NewCalendar(stub, testDeps())

	p := validTimes()
	p["checkConflicts"] = true
	p["force"] = true
	data, apiErr := d.Dispatch(context.Background(), testIdentity, Request{Op: "create", Params: p})
	require.Nil(t, apiErr)
	out := data.(map[string]any)
	assert.Equal(t, true, out["conflictsAccepted"])
	assert.Equal(t, 1, out["conflictsCount"])
	assert.Equal(t, 1, stub.created)
}

func TestCalendarCreateNoConflictsPlainResult(t *testing.T) {
	stub := &calendarStub{}
	d := NewCalendar(stub, testDeps())

	p := validTimes()
	p["checkConflicts"] = true
	data, apiErr := d.Dispatch(context.Background(), testIdentity, Request{Op: "create", Params: p})
	require.Nil(t, apiErr)
	assert.Equal(t, "new", data.(map[string]any)["id"])
}

func TestCalendarPartialTimeObject(t *testing.T) {
	d := NewCalendar(&calendarStub{}, testDeps())

	p := validTimes()
	p["start"] = map[string]any{"dateTime": "2026-02-10T09:00:00-07:00"}
	_, apiErr := d.Dispatch(context.Background(), testIdentity, Request{Op: "create", Params: p})
	require.NotNil(t, apiErr)
	assert.Equal(t, 400, apiErr.StatusCode)
	assert.Equal(t, model.CodeInvalidTimeFormat, apiErr.Code)
	require.NotNil(t, apiErr.Details["expectedFormat"])
}

func TestCalendarUpdateValidation(t *testing.T) {
	stub := &calendarStub{}
	d := NewCalendar(stub, testDeps())

	_, apiErr := d.Dispatch(context.Background(), testIdentity, Request{Op: "update", Params: Params{"eventId": "ev1"}})
	require.NotNil(t, apiErr)
	assert.Equal(t, model.CodeInvalidParam, apiErr.Code)

	_, apiErr = d.Dispatch(context.Background(), testIdentity, Request{
		Op: "update",
		Params: Params{
			"eventId": "ev1",
			"updates": map[string]any{"start": map[string]any{"timeZone": "America/Denver"}},
		},
	})
	require.NotNil(t, apiErr)
	assert.Equal(t, model.CodeInvalidTimeFormat, apiErr.Code)
	assert.Zero(t, len(stub.calls))

	data, apiErr := d.Dispatch(context.Background(), testIdentity, Request{
		Op:     "update",
		Params: Params{"eventId": "ev1", "updates": map[string]any{"summary": "renamed"}},
	})
	require.Nil(t, apiErr)
	assert.Equal(t, "ev1", data.(map[string]any)["id"])
}

func TestCalendarCheckConflictsOp(t *testing.T) {
	stub := &calendarStub{}
	d := NewCalendar(stub, testDeps())

	p := validTimes()
	data, apiErr := d.Dispatch(context.Background(), testIdentity, Request{Op: "checkConflicts", Params: p})
	require.Nil(t, apiErr)
	out := data.(map[string]any)
	assert.Equal(t, 0, out["conflictsCount"])
	assert.NotNil(t, out["conflicts"])
}

func TestCalendarDelete(t *testing.T) {
	stub := &calendarStub{}
	d := NewCalendar(stub, testDeps())

	data, apiErr := d.Dispatch(context.Background(), testIdentity, Request{Op: "delete", Params: Params{"eventId": "ev1"}})
	require.Nil(t, apiErr)
	assert.Equal(t, true, data.(map[string]any)["deleted"])
}
