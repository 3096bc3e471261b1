package rpc

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/fieldline/workspace-bff/internal/shape"
	"github.com/fieldline/workspace-bff/model"
)

// readFanoutLimit bounds the parallel fetches of a multi-id read.
const readFanoutLimit = 5

// Mail dispatches the mail-domain operations.
type Mail struct {
	svc  MailService
	deps Deps
}

// NewMail builds the mail dispatcher.
func NewMail(svc MailService, deps Deps) *Mail {
	return &Mail{svc: svc, deps: deps}
}

// Dispatch runs one mail operation. Validation failures are returned at this
// boundary; backing-service errors pass through the shared translator.
func (d *Mail) Dispatch(ctx context.Context, id model.Identity, req Request) (any, *model.APIError) {
	p := req.Params

	var result any
	var err error

	switch req.Op {
	case "search":
		result, err = d.search(ctx, id, p)
	case "read":
		result, err = d.read(ctx, id, p)
	case "send":
		result, err = d.send(ctx, id, p)
	case "createDraft":
		result, err = d.createDraft(ctx, id, p)
	case "updateDraft":
		result, err = d.updateDraft(ctx, id, p)
	case "listDrafts":
		result, err = d.listDrafts(ctx, id, p)
	case "getDraft":
		result, err = d.getDraft(ctx, id, p)
	case "reply":
		result, err = d.reply(ctx, id, p)
	case "modify":
		result, err = d.modify(ctx, id, p)
	case "labels":
		result, err = d.labels(ctx, id, p)
	case "attachmentPreview":
		result, err = d.attachmentPreview(ctx, id, p)
	default:
		return nil, model.NewInvalidParamf("Unknown mail operation %q", req.Op)
	}

	if err != nil {
		return nil, Translate(err, model.CodeMailRPCError)
	}
	if result == nil {
		return nil, model.NewUndefinedResult(req.Op)
	}
	return result, nil
}

func (d *Mail) search(ctx context.Context, id model.Identity, p Params) (any, error) {
	query := p.String("query")
	if query == "" {
		query = p.String("q")
	}
	env, err := d.deps.runList(ctx, "mail", id, p, map[string]any{"query": query}, mailAggregateCap,
		func(q map[string]any) shape.PageFunc {
			qs, _ := q["query"].(string)
			return func(ctx context.Context, token string, size int) ([]map[string]any, string, error) {
				page, err := d.svc.SearchEmails(ctx, id, qs, PageRequest{MaxResults: size, PageToken: token})
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

// read resolves either a single message or an ordered batch. With neither
// ids nor a query fallback the branch produces no result; the dispatch guard
// reports that as UNDEFINED_RESULT.
func (d *Mail) read(ctx context.Context, id model.Identity, p Params) (any, error) {
	ids := p.StringSlice("ids")
	if len(ids) == 0 {
		if single := p.String("id"); single != "" {
			ids = []string{single}
		} else if single := p.String("messageId"); single != "" {
			ids = []string{single}
		}
	}

	if len(ids) == 1 {
		return d.svc.ReadEmail(ctx, id, ids[0])
	}
	if len(ids) > 1 {
		return d.readBatch(ctx, id, ids)
	}

	query := p.String("query")
	if query == "" {
		query = p.String("q")
	}
	if query != "" {
		page, err := d.svc.SearchEmails(ctx, id, query, PageRequest{MaxResults: 1})
		if err != nil {
			return nil, err
		}
		if len(page.Items) == 0 {
			return nil, model.NewInvalidParamf("No message matched query %q", query)
		}
		msgID, _ := page.Items[0]["id"].(string)
		return d.svc.ReadEmail(ctx, id, msgID)
	}

	return nil, nil
}

// readBatch fetches every id in parallel but keeps results in input order.
// Any single failure fails the whole batch.
func (d *Mail) readBatch(ctx context.Context, id model.Identity, ids []string) ([]map[string]any, error) {
	results := make([]map[string]any, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readFanoutLimit)
	for i, messageID := range ids {
		g.Go(func() error {
			msg, err := d.svc.ReadEmail(gctx, id, messageID)
			if err != nil {
				return err
			}
			results[i] = msg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (d *Mail) send(ctx context.Context, id model.Identity, p Params) (any, error) {
	draftID := p.String("draftId")
	to := p.String("to")
	subject := p.String("subject")
	body := p.RawString("body")

	hasTriple := to != "" && subject != "" && body != ""
	if draftID != "" && hasTriple {
		return nil, model.NewInvalidParam("Provide either draftId or to+subject+body, not both")
	}
	if draftID == "" && !hasTriple {
		return nil, model.NewInvalidParam("Provide either draftId (send an existing draft) or all of to, subject, body (send a new message)")
	}

	if hasTriple && id.IsSelf(to) && !p.Bool("confirmSendToSelf") {
		return nil, &model.APIError{
			StatusCode: 400,
			Code:       model.CodeConfirmSelfSend,
			Message:    "Recipient is your own address; set confirmSendToSelf to true to proceed",
		}
	}

	return d.svc.SendEmail(ctx, id, SendInput{
		DraftID:  draftID,
		To:       to,
		Cc:       p.String("cc"),
		Bcc:      p.String("bcc"),
		Subject:  subject,
		Body:     body,
		ThreadID: p.String("threadId"),
	})
}

// draftInput validates the shared createDraft/updateDraft payload. to and
// subject must be non-empty after trimming; body must be non-empty but keeps
// its whitespace. cc, bcc and threadId are forwarded only when non-empty
// after trimming.
func draftInput(p Params) (DraftInput, error) {
	to := p.String("to")
	subject := p.String("subject")
	body := p.RawString("body")

	missing := []string{}
	if to == "" {
		missing = append(missing, "to")
	}
	if subject == "" {
		missing = append(missing, "subject")
	}
	if body == "" {
		missing = append(missing, "body")
	}
	if len(missing) > 0 {
		return DraftInput{}, model.NewInvalidParam("Missing required field(s): " + strings.Join(missing, ", "))
	}

	return DraftInput{
		To:       to,
		Cc:       p.String("cc"),
		Bcc:      p.String("bcc"),
		Subject:  subject,
		Body:     body,
		ThreadID: p.String("threadId"),
	}, nil
}

func (d *Mail) createDraft(ctx context.Context, id model.Identity, p Params) (any, error) {
	in, err := draftInput(p)
	if err != nil {
		return nil, err
	}
	return d.svc.CreateDraft(ctx, id, in)
}

func (d *Mail) updateDraft(ctx context.Context, id model.Identity, p Params) (any, error) {
	draftID := p.String("draftId")
	if draftID == "" {
		return nil, model.NewInvalidParam("Missing required field: draftId")
	}
	in, err := draftInput(p)
	if err != nil {
		return nil, err
	}
	return d.svc.UpdateDraft(ctx, id, draftID, in)
}

func (d *Mail) listDrafts(ctx context.Context, id model.Identity, p Params) (any, error) {
	env, err := d.deps.runList(ctx, "mail", id, p, map[string]any{"kind": "drafts"}, mailAggregateCap,
		func(map[string]any) shape.PageFunc {
			return func(ctx context.Context, token string, size int) ([]map[string]any, string, error) {
				page, err := d.svc.ListDrafts(ctx, id, PageRequest{MaxResults: size, PageToken: token})
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

func (d *Mail) getDraft(ctx context.Context, id model.Identity, p Params) (any, error) {
	draftID := p.String("draftId")
	if draftID == "" {
		draftID = p.String("id")
	}
	if draftID == "" {
		return nil, model.NewInvalidParam("Missing required field: draftId")
	}
	return d.svc.GetDraft(ctx, id, draftID)
}

func (d *Mail) reply(ctx context.Context, id model.Identity, p Params) (any, error) {
	messageID := p.String("messageId")
	if messageID == "" {
		messageID = p.String("id")
	}
	body := p.RawString("body")
	if messageID == "" || body == "" {
		return nil, model.NewInvalidParam("reply requires messageId and a non-empty body")
	}
	return d.svc.ReplyToEmail(ctx, id, ReplyInput{
		MessageID: messageID,
		Body:      body,
		ReplyAll:  p.Bool("replyAll"),
	})
}

func (d *Mail) modify(ctx context.Context, id model.Identity, p Params) (any, error) {
	messageID := p.String("messageId")
	if messageID == "" {
		messageID = p.String("id")
	}
	if messageID == "" {
		return nil, model.NewInvalidParam("Missing required field: messageId")
	}
	add := p.StringSlice("add")
	remove := p.StringSlice("remove")
	if len(add) == 0 && len(remove) == 0 {
		return nil, model.NewInvalidParam("modify requires at least one of add or remove label lists")
	}
	return d.svc.ModifyMessageLabels(ctx, id, messageID, add, remove)
}

// labels multiplexes the label sub-operations. Exactly one of list, resolve,
// modify or create must be present.
func (d *Mail) labels(ctx context.Context, id model.Identity, p Params) (any, error) {
	present := 0
	for _, key := range []string{"list", "resolve", "modify", "create"} {
		if p.Has(key) {
			present++
		}
	}
	if present != 1 {
		return nil, model.NewInvalidParam("labels requires exactly one of: list, resolve, modify, create")
	}

	switch {
	case p.Has("list"):
		labels, err := d.svc.ListLabels(ctx, id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"labels": labels}, nil

	case p.Has("resolve"):
		name := p.String("resolve")
		if name == "" {
			if m := p.Map("resolve"); m != nil {
				name, _ = m["name"].(string)
			}
		}
		if name == "" {
			return nil, model.NewInvalidParam("labels.resolve requires a label name")
		}
		labels, err := d.svc.ListLabels(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, l := range labels {
			if ln, _ := l["name"].(string); ln == name {
				return l, nil
			}
		}
		return nil, model.NewInvalidParamf("No label named %q", name)

	case p.Has("create"):
		name := p.String("create")
		if name == "" {
			if m := p.Map("create"); m != nil {
				name, _ = m["name"].(string)
			}
		}
		if name == "" {
			return nil, model.NewInvalidParam("labels.create requires a label name")
		}
		return d.svc.CreateLabel(ctx, id, name)

	default: // modify
		spec := Params(p.Map("modify"))
		if spec == nil {
			return nil, model.NewInvalidParam("labels.modify requires an object with targets and add/remove lists")
		}
		return d.labelsModify(ctx, id, spec)
	}
}

// labelsModify applies label changes to one message or a batch. Batch mode
// fans out in parallel and fails whole on any sub-failure.
func (d *Mail) labelsModify(ctx context.Context, id model.Identity, spec Params) (any, error) {
	add := spec.StringSlice("add")
	remove := spec.StringSlice("remove")
	if len(add) == 0 && len(remove) == 0 {
		return nil, model.NewInvalidParam("labels.modify requires at least one of add or remove")
	}

	ids := spec.StringSlice("ids")
	if len(ids) > 1 {
		results := make([]map[string]any, len(ids))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(readFanoutLimit)
		for i, messageID := range ids {
			g.Go(func() error {
				out, err := d.svc.ModifyMessageLabels(gctx, id, messageID, add, remove)
				if err != nil {
					return err
				}
				results[i] = out
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return map[string]any{"modified": len(results), "results": results}, nil
	}

	target := spec.String("messageId")
	if target == "" && len(ids) == 1 {
		target = ids[0]
	}
	if target == "" {
		return nil, model.NewInvalidParam("labels.modify requires messageId or a non-empty ids list")
	}
	return d.svc.ModifyMessageLabels(ctx, id, target, add, remove)
}

func (d *Mail) attachmentPreview(ctx context.Context, id model.Identity, p Params) (any, error) {
	messageID := p.String("messageId")
	attachmentID := p.String("attachmentId")
	if messageID == "" || attachmentID == "" {
		return nil, model.NewInvalidParam("attachmentPreview requires messageId and attachmentId")
	}
	switch mode := p.String("mode"); mode {
	case "", "text":
		return d.svc.PreviewAttachmentText(ctx, id, messageID, attachmentID)
	case "table":
		return d.svc.PreviewAttachmentTable(ctx, id, messageID, attachmentID)
	default:
		return nil, model.NewInvalidParamf("Unknown attachment preview mode %q; use text or table", mode)
	}
}
