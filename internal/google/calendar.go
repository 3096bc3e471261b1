package google

import (
	"context"

	"google.golang.org/api/calendar/v3"

	"github.com/fieldline/workspace-bff/internal/rpc"
	"github.com/fieldline/workspace-bff/model"
)

// CalendarAPI implements the calendar service surface on the user's primary
// calendar.
type CalendarAPI struct {
	provider *Provider
}

// NewCalendarAPI builds the Calendar adapter.
func NewCalendarAPI(provider *Provider) *CalendarAPI {
	return &CalendarAPI{provider: provider}
}

func (c *CalendarAPI) svc(ctx context.Context, id model.Identity) (*calendar.Service, error) {
	clients, err := c.provider.clients(ctx, id)
	if err != nil {
		return nil, err
	}
	return clients.calendar, nil
}

func (c *CalendarAPI) ListEvents(ctx context.Context, id model.Identity, window rpc.EventWindow, page rpc.PageRequest) (rpc.Page, error) {
	svc, err := c.svc(ctx, id)
	if err != nil {
		return rpc.Page{}, err
	}

	call := svc.Events.List("primary").
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(int64(page.MaxResults))
	if window.TimeMin != "" {
		call = call.TimeMin(window.TimeMin)
	}
	if window.TimeMax != "" {
		call = call.TimeMax(window.TimeMax)
	}
	if window.Query != "" {
		call = call.Q(window.Query)
	}
	if page.PageToken != "" {
		call = call.PageToken(page.PageToken)
	}

	res, err := call.Context(ctx).Do()
	if err != nil {
		return rpc.Page{}, wrapError(err)
	}

	items := make([]map[string]any, 0, len(res.Items))
	for _, ev := range res.Items {
		items = append(items, simplifyEvent(ev))
	}
	return rpc.Page{Items: items, NextPageToken: res.NextPageToken}, nil
}

func (c *CalendarAPI) GetEvent(ctx context.Context, id model.Identity, eventID string) (map[string]any, error) {
	svc, err := c.svc(ctx, id)
	if err != nil {
		return nil, err
	}
	ev, err := svc.Events.Get("primary", eventID).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	return simplifyEvent(ev), nil
}

func (c *CalendarAPI) CreateEvent(ctx context.Context, id model.Identity, in rpc.EventInput) (map[string]any, error) {
	svc, err := c.svc(ctx, id)
	if err != nil {
		return nil, err
	}

	ev := &calendar.Event{
		Summary:     in.Summary,
		Description: in.Description,
		Location:    in.Location,
		Start:       &calendar.EventDateTime{DateTime: in.Start.DateTime, TimeZone: in.Start.TimeZone},
		End:         &calendar.EventDateTime{DateTime: in.End.DateTime, TimeZone: in.End.TimeZone},
	}
	for _, email := range in.Attendees {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{Email: email})
	}

	created, err := svc.Events.Insert("primary", ev).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	return simplifyEvent(created), nil
}

// UpdateEvent patches only the supplied fields. Time objects arrive already
// validated by the dispatcher.
func (c *CalendarAPI) UpdateEvent(ctx context.Context, id model.Identity, eventID string, updates map[string]any) (map[string]any, error) {
	svc, err := c.svc(ctx, id)
	if err != nil {
		return nil, err
	}

	patch := &calendar.Event{}
	if v, ok := updates["summary"].(string); ok {
		patch.Summary = v
	}
	if v, ok := updates["description"].(string); ok {
		patch.Description = v
	}
	if v, ok := updates["location"].(string); ok {
		patch.Location = v
	}
	if raw, ok := updates["start"].(map[string]any); ok {
		patch.Start = eventDateTime(raw)
	}
	if raw, ok := updates["end"].(map[string]any); ok {
		patch.End = eventDateTime(raw)
	}
	if raw, ok := updates["attendees"].([]any); ok {
		for _, el := range raw {
			if email, ok := el.(string); ok {
				patch.Attendees = append(patch.Attendees, &calendar.EventAttendee{Email: email})
			}
		}
	}

	updated, err := svc.Events.Patch("primary", eventID, patch).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	return simplifyEvent(updated), nil
}

func (c *CalendarAPI) DeleteEvent(ctx context.Context, id model.Identity, eventID string) error {
	svc, err := c.svc(ctx, id)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete("primary", eventID).Context(ctx).Do(); err != nil {
		return wrapError(err)
	}
	return nil
}

// FindConflicts lists events overlapping [start, end), excluding cancelled
// events and, on update, the event being modified.
func (c *CalendarAPI) FindConflicts(ctx context.Context, id model.Identity, start, end rpc.EventTime, excludeEventID string) ([]map[string]any, error) {
	svc, err := c.svc(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := svc.Events.List("primary").
		SingleEvents(true).
		TimeMin(start.DateTime).
		TimeMax(end.DateTime).
		Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}

	conflicts := []map[string]any{}
	for _, ev := range res.Items {
		if ev.Id == excludeEventID || ev.Status == "cancelled" {
			continue
		}
		// All-day events (date only, no dateTime) don't block scheduling.
		if ev.Start == nil || ev.Start.DateTime == "" {
			continue
		}
		conflicts = append(conflicts, simplifyEvent(ev))
	}
	return conflicts, nil
}

func eventDateTime(raw map[string]any) *calendar.EventDateTime {
	dt, _ := raw["dateTime"].(string)
	tz, _ := raw["timeZone"].(string)
	return &calendar.EventDateTime{DateTime: dt, TimeZone: tz}
}

func simplifyEvent(ev *calendar.Event) map[string]any {
	out := map[string]any{
		"id":      ev.Id,
		"summary": ev.Summary,
		"status":  ev.Status,
	}
	if ev.Description != "" {
		out["description"] = ev.Description
	}
	if ev.Location != "" {
		out["location"] = ev.Location
	}
	if ev.Start != nil {
		out["start"] = map[string]any{"dateTime": ev.Start.DateTime, "date": ev.Start.Date, "timeZone": ev.Start.TimeZone}
	}
	if ev.End != nil {
		out["end"] = map[string]any{"dateTime": ev.End.DateTime, "date": ev.End.Date, "timeZone": ev.End.TimeZone}
	}
	if len(ev.Attendees) > 0 {
		attendees := make([]map[string]any, 0, len(ev.Attendees))
		for _, a := range ev.Attendees {
			attendees = append(attendees, map[string]any{"email": a.Email, "responseStatus": a.ResponseStatus})
		}
		out["attendees"] = attendees
	}
	if ev.HtmlLink != "" {
		out["htmlLink"] = ev.HtmlLink
	}
	return out
}
