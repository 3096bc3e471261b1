package rpc

import (
	"context"

	"github.com/fieldline/workspace-bff/internal/shape"
	"github.com/fieldline/workspace-bff/model"
)

// Calendar dispatches the calendar-domain operations.
type Calendar struct {
	svc  CalendarService
	deps Deps
}

// NewCalendar builds the calendar dispatcher.
func NewCalendar(svc CalendarService, deps Deps) *Calendar {
	return &Calendar{svc: svc, deps: deps}
}

// Dispatch runs one calendar operation.
func (d *Calendar) Dispatch(ctx context.Context, id model.Identity, req Request) (any, *model.APIError) {
	p := req.Params

	var result any
	var err error

	switch req.Op {
	case "list":
		result, err = d.list(ctx, id, p)
	case "get":
		result, err = d.get(ctx, id, p)
	case "create":
		result, err = d.create(ctx, id, p)
	case "update":
		result, err = d.update(ctx, id, p)
	case "delete":
		result, err = d.delete(ctx, id, p)
	case "checkConflicts":
		result, err = d.checkConflicts(ctx, id, p)
	default:
		return nil, model.NewInvalidParamf("Unknown calendar operation %q", req.Op)
	}

	if err != nil {
		return nil, Translate(err, model.CodeCalendarRPCError)
	}
	if result == nil {
		return nil, model.NewUndefinedResult(req.Op)
	}
	return result, nil
}

func (d *Calendar) list(ctx context.Context, id model.Identity, p Params) (any, error) {
	query := map[string]any{
		"timeMin": p.String("timeMin"),
		"timeMax": p.String("timeMax"),
		"query":   p.String("query"),
	}
	env, err := d.deps.runList(ctx, "calendar", id, p, query, calendarAggregateCap,
		func(q map[string]any) shape.PageFunc {
			window := EventWindow{}
			window.TimeMin, _ = q["timeMin"].(string)
			window.TimeMax, _ = q["timeMax"].(string)
			window.Query, _ = q["query"].(string)
			return func(ctx context.Context, token string, size int) ([]map[string]any, string, error) {
				page, err := d.svc.ListEvents(ctx, id, window, PageRequest{MaxResults: size, PageToken: token})
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

func (d *Calendar) get(ctx context.Context, id model.Identity, p Params) (any, error) {
	eventID := p.String("eventId")
	if eventID == "" {
		return nil, model.NewInvalidParam("Missing required field: eventId")
	}
	return d.svc.GetEvent(ctx, id, eventID)
}

// eventTime validates one calendar boundary object. Both dateTime and
// timeZone must be present.
func eventTime(field string, raw map[string]any) (EventTime, error) {
	if raw == nil {
		return EventTime{}, model.NewInvalidParamf("Missing required field: %s", field)
	}
	dt, _ := raw["dateTime"].(string)
	tz, _ := raw["timeZone"].(string)
	if dt == "" || tz == "" {
		return EventTime{}, model.NewInvalidTimeFormat(field)
	}
	return EventTime{DateTime: dt, TimeZone: tz}, nil
}

func (d *Calendar) create(ctx context.Context, id model.Identity, p Params) (any, error) {
	summary := p.String("summary")
	if summary == "" {
		return nil, model.NewInvalidParam("Missing required field: summary")
	}
	start, err := eventTime("start", p.Map("start"))
	if err != nil {
		return nil, err
	}
	end, err := eventTime("end", p.Map("end"))
	if err != nil {
		return nil, err
	}

	in := EventInput{
		Summary:     summary,
		Description: p.String("description"),
		Location:    p.String("location"),
		Start:       start,
		End:         end,
		Attendees:   p.StringSlice("attendees"),
	}

	if p.Bool("checkConflicts") {
		conflicts, err := d.svc.FindConflicts(ctx, id, start, end, "")
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 && !p.Bool("force") {
			return nil, model.NewConflict("The requested time overlaps existing events", map[string]any{
				"blocked":        true,
				"conflictsCount": len(conflicts),
				"conflicts":      conflicts,
			})
		}
		created, err := d.svc.CreateEvent(ctx, id, in)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			return map[string]any{
				"event":             created,
				"conflictsAccepted": true,
				"conflictsCount":    len(conflicts),
				"conflicts":         conflicts,
			}, nil
		}
		return created, nil
	}

	return d.svc.CreateEvent(ctx, id, in)
}

func (d *Calendar) update(ctx context.Context, id model.Identity, p Params) (any, error) {
	eventID := p.String("eventId")
	if eventID == "" {
		return nil, model.NewInvalidParam("Missing required field: eventId")
	}
	updates := p.Map("updates")
	if len(updates) == 0 {
		return nil, model.NewInvalidParam("update requires a non-empty updates object")
	}

	var start, end EventTime
	var haveStart, haveEnd bool
	if _, present := updates["start"]; present {
		raw, _ := updates["start"].(map[string]any)
		if raw == nil {
			return nil, model.NewInvalidTimeFormat("updates.start")
		}
		t, err := eventTime("updates.start", raw)
		if err != nil {
			return nil, err
		}
		start, haveStart = t, true
	}
	if _, present := updates["end"]; present {
		raw, _ := updates["end"].(map[string]any)
		if raw == nil {
			return nil, model.NewInvalidTimeFormat("updates.end")
		}
		t, err := eventTime("updates.end", raw)
		if err != nil {
			return nil, err
		}
		end, haveEnd = t, true
	}

	if p.Bool("checkConflicts") && haveStart && haveEnd {
		conflicts, err := d.svc.FindConflicts(ctx, id, start, end, eventID)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 && !p.Bool("force") {
			return nil, model.NewConflict("The updated time overlaps existing events", map[string]any{
				"blocked":        true,
				"conflictsCount": len(conflicts),
				"conflicts":      conflicts,
			})
		}
		updated, err := d.svc.UpdateEvent(ctx, id, eventID, updates)
		if err != nil {
			return nil, err
		}
		if len(conflicts) > 0 {
			return map[string]any{
				"event":             updated,
				"conflictsAccepted": true,
				"conflictsCount":    len(conflicts),
				"conflicts":         conflicts,
			}, nil
		}
		return updated, nil
	}

	return d.svc.UpdateEvent(ctx, id, eventID, updates)
}

func (d *Calendar) delete(ctx context.Context, id model.Identity, p Params) (any, error) {
	eventID := p.String("eventId")
	if eventID == "" {
		return nil, model.NewInvalidParam("Missing required field: eventId")
	}
	if err := d.svc.DeleteEvent(ctx, id, eventID); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": true, "eventId": eventID}, nil
}

func (d *Calendar) checkConflicts(ctx context.Context, id model.Identity, p Params) (any, error) {
	start, err := eventTime("start", p.Map("start"))
	if err != nil {
		return nil, err
	}
	end, err := eventTime("end", p.Map("end"))
	if err != nil {
		return nil, err
	}
	conflicts, err := d.svc.FindConflicts(ctx, id, start, end, p.String("excludeEventId"))
	if err != nil {
		return nil, err
	}
	if conflicts == nil {
		conflicts = []map[string]any{}
	}
	return map[string]any{
		"conflictsCount": len(conflicts),
		"conflicts":      conflicts,
	}, nil
}
