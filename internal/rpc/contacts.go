package rpc

import (
	"context"

	"github.com/fieldline/workspace-bff/internal/shape"
	"github.com/fieldline/workspace-bff/model"
)

// Contacts dispatches the contacts-domain operations. Mutating ops beyond
// add and bulkUpsert are disabled here; the redirect table answers for them
// before any validation runs.
type Contacts struct {
	svc  ContactsService
	deps Deps
}

// NewContacts builds the contacts dispatcher.
func NewContacts(svc ContactsService, deps Deps) *Contacts {
	return &Contacts{svc: svc, deps: deps}
}

// Dispatch runs one contacts operation.
func (d *Contacts) Dispatch(ctx context.Context, id model.Identity, req Request) (any, *model.APIError) {
	if redirect := contactsRedirect(req.Op); redirect != nil {
		return nil, redirect
	}

	p := req.Params

	var result any
	var err error

	switch req.Op {
	case "list":
		result, err = d.list(ctx, id, p)
	case "search":
		result, err = d.search(ctx, id, p)
	case "add":
		result, err = d.add(ctx, id, p)
	case "dedupe":
		result, err = d.dedupe(ctx, id)
	case "bulkUpsert":
		result, err = d.bulkUpsert(ctx, id, p)
	case "addressSuggest":
		result, err = d.addressSuggest(ctx, id, p)
	default:
		return nil, model.NewInvalidParamf("Unknown contacts operation %q", req.Op)
	}

	if err != nil {
		return nil, Translate(err, model.CodeContactsRPCError)
	}
	if result == nil {
		return nil, model.NewUndefinedResult(req.Op)
	}
	return result, nil
}

func (d *Contacts) list(ctx context.Context, id model.Identity, p Params) (any, error) {
	env, err := d.deps.runList(ctx, "contacts", id, p, map[string]any{"kind": "contacts"}, contactsAggregateCap,
		func(map[string]any) shape.PageFunc {
			return func(ctx context.Context, token string, size int) ([]map[string]any, string, error) {
				page, err := d.svc.ListContacts(ctx, id, PageRequest{MaxResults: size, PageToken: token})
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

func (d *Contacts) search(ctx context.Context, id model.Identity, p Params) (any, error) {
	query := p.String("query")
	if query == "" {
		query = p.String("q")
	}
	if query == "" {
		return nil, model.NewInvalidParam("Missing required field: query")
	}
	matches, err := d.svc.SearchContacts(ctx, id, query)
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []map[string]any{}
	}
	return map[string]any{"contacts": matches, "count": len(matches)}, nil
}

// contactFromParams builds a Contact from a flat param bag, accepting the
// historical lowercase realestate spelling alongside the canonical one.
func contactFromParams(p Params) Contact {
	realEstate := p.String("realEstate")
	if realEstate == "" {
		realEstate = p.String("realestate")
	}
	return Contact{
		Name:       p.String("name"),
		Email:      p.String("email"),
		Phone:      p.String("phone"),
		RealEstate: realEstate,
		Notes:      p.String("notes"),
	}
}

func (d *Contacts) add(ctx context.Context, id model.Identity, p Params) (any, error) {
	c := contactFromParams(p)
	if c.Name == "" || c.Email == "" {
		return nil, model.NewInvalidParam("add requires name and email")
	}
	return d.svc.AddContact(ctx, id, c)
}

func (d *Contacts) dedupe(ctx context.Context, id model.Identity) (any, error) {
	groups, err := d.svc.FindDuplicates(ctx, id)
	if err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []map[string]any{}
	}
	return map[string]any{"duplicateGroups": groups, "count": len(groups)}, nil
}

func (d *Contacts) bulkUpsert(ctx context.Context, id model.Identity, p Params) (any, error) {
	raw, ok := p["contacts"].([]any)
	if !ok || len(raw) == 0 {
		return nil, model.NewInvalidParam("bulkUpsert requires a non-empty contacts array")
	}
	contacts := make([]Contact, 0, len(raw))
	for i, el := range raw {
		m, ok := el.(map[string]any)
		if !ok {
			return nil, model.NewInvalidParamf("contacts[%d] must be an object", i)
		}
		c := contactFromParams(Params(m))
		if c.Email == "" {
			return nil, model.NewInvalidParamf("contacts[%d] is missing email", i)
		}
		contacts = append(contacts, c)
	}
	return d.svc.BulkUpsert(ctx, id, contacts)
}

func (d *Contacts) addressSuggest(ctx context.Context, id model.Identity, p Params) (any, error) {
	query := p.String("query")
	if query == "" {
		query = p.String("q")
	}
	if query == "" {
		return nil, model.NewInvalidParam("Missing required field: query")
	}
	suggestions, err := d.svc.AddressSuggestions(ctx, id, query)
	if err != nil {
		return nil, err
	}
	if suggestions == nil {
		suggestions = []map[string]any{}
	}
	return map[string]any{"suggestions": suggestions}, nil
}
