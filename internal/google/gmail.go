package google

import (
	"context"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"google.golang.org/api/gmail/v1"

	"github.com/fieldline/workspace-bff/internal/rpc"
	"github.com/fieldline/workspace-bff/model"
)

const (
	// previewTextLimit caps how much decoded attachment text is returned.
	previewTextLimit = 10000
	// previewRowLimit caps how many CSV rows a table preview returns.
	previewRowLimit = 50
)

// MailAPI implements the mail service surface on top of the Gmail API.
type MailAPI struct {
	provider *Provider
}

// NewMailAPI builds the Gmail adapter.
func NewMailAPI(provider *Provider) *MailAPI {
	return &MailAPI{provider: provider}
}

func (m *MailAPI) svc(ctx context.Context, id model.Identity) (*gmail.Service, error) {
	c, err := m.provider.clients(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.gmail, nil
}

func (m *MailAPI) SearchEmails(ctx context.Context, id model.Identity, query string, page rpc.PageRequest) (rpc.Page, error) {
	svc, err := m.svc(ctx, id)
	if err != nil {
		return rpc.Page{}, err
	}

	call := svc.Users.Messages.List("me").MaxResults(int64(page.MaxResults))
	if query != "" {
		call = call.Q(query)
	}
	if page.PageToken != "" {
		call = call.PageToken(page.PageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return rpc.Page{}, wrapError(err)
	}

	items := make([]map[string]any, 0, len(res.Messages))
	for _, ref := range res.Messages {
		msg, err := svc.Users.Messages.Get("me", ref.Id).
			Format("metadata").
			MetadataHeaders("Subject", "From", "To", "Date").
			Context(ctx).Do()
		if err != nil {
			return rpc.Page{}, wrapError(err)
		}
		items = append(items, map[string]any{
			"id":       msg.Id,
			"threadId": msg.ThreadId,
			"subject":  headerValue(msg.Payload, "Subject"),
			"from":     headerValue(msg.Payload, "From"),
			"to":       headerValue(msg.Payload, "To"),
			"date":     headerValue(msg.Payload, "Date"),
			"snippet":  msg.Snippet,
			"labelIds": msg.LabelIds,
		})
	}
	return rpc.Page{Items: items, NextPageToken: res.NextPageToken}, nil
}

func (m *MailAPI) ReadEmail(ctx context.Context, id model.Identity, messageID string) (map[string]any, error) {
	svc, err := m.svc(ctx, id)
	if err != nil {
		return nil, err
	}
	msg, err := svc.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	return simplifyMessage(msg), nil
}

func (m *MailAPI) SendEmail(ctx context.Context, id model.Identity, in rpc.SendInput) (map[string]any, error) {
	svc, err := m.svc(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.DraftID != "" {
		sent, err := svc.Users.Drafts.Send("me", &gmail.Draft{Id: in.DraftID}).Context(ctx).Do()
		if err != nil {
			return nil, wrapError(err)
		}
		return map[string]any{"id": sent.Id, "threadId": sent.ThreadId, "sentFromDraft": in.DraftID}, nil
	}

	raw := encodeRFC822(in.To, in.Cc, in.Bcc, in.Subject, in.Body, nil)
	msg := &gmail.Message{Raw: raw}
	if in.ThreadID != "" {
		msg.ThreadId = in.ThreadID
	}
	sent, err := svc.Users.Messages.Send("me", msg).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	return map[string]any{"id": sent.Id, "threadId": sent.ThreadId}, nil
}

func (m *MailAPI) CreateDraft(ctx context.Context, id model.Identity, in rpc.DraftInput) (map[string]any, error) {
	svc, err := m.svc(ctx, id)
	if err != nil {
		return nil, err
	}
	draft, err := svc.Users.Drafts.Create("me", draftPayload(in)).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	return draftItem(draft), nil
}

func (m *MailAPI) UpdateDraft(ctx context.Context, id model.Identity, draftID string, in rpc.DraftInput) (map[string]any, error) {
	svc, err := m.svc(ctx, id)
	if err != nil {
		return nil, err
	}
	draft, err := svc.Users.Drafts.Update("me", draftID, draftPayload(in)).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	return draftItem(draft), nil
}

// draftItem flattens a draft reference. Message can be absent on mutation
// responses, so it is never dereferenced unconditionally.
func draftItem(draft *gmail.Draft) map[string]any {
	out := map[string]any{"id": draft.Id}
	if draft.Message != nil {
		out["messageId"] = draft.Message.Id
	}
	return out
}

func (m *MailAPI) ListDrafts(ctx context.Context, id model.Identity, page rpc.PageRequest) (rpc.Page, error) {
	svc, err := m.svc(ctx, id)
	if err != nil {
		return rpc.Page{}, err
	}
	call := svc.Users.Drafts.List("me").MaxResults(int64(page.MaxResults))
	if page.PageToken != "" {
		call = call.PageToken(page.PageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return rpc.Page{}, wrapError(err)
	}
	items := make([]map[string]any, 0, len(res.Drafts))
	for _, d := range res.Drafts {
		item := map[string]any{"id": d.Id}
		if d.Message != nil {
			item["messageId"] = d.Message.Id
			item["threadId"] = d.Message.ThreadId
		}
		items = append(items, item)
	}
	return rpc.Page{Items: items, NextPageToken: res.NextPageToken}, nil
}

func (m *MailAPI) GetDraft(ctx context.Context, id model.Identity, draftID string) (map[string]any, error) {
	svc, err := m.svc(ctx, id)
	if err != nil {
		return nil, err
	}
	draft, err := svc.Users.Drafts.Get("me", draftID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	out := map[string]any{"id": draft.Id}
	if draft.Message != nil {
		out["message"] = simplifyMessage(draft.Message)
	}
	return out, nil
}

func (m *MailAPI) ReplyToEmail(ctx context.Context, id model.Identity, in rpc.ReplyInput) (map[string]any, error) {
	svc, err := m.svc(ctx, id)
	if err != nil {
		return nil, err
	}

	orig, err := svc.Users.Messages.Get("me", in.MessageID).
		Format("metadata").
		MetadataHeaders("Subject", "From", "To", "Cc", "Message-ID", "References").
		Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}

	subject := headerValue(orig.Payload, "Subject")
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	to := headerValue(orig.Payload, "From")
	cc := ""
	if in.ReplyAll {
		others := []string{}
		for _, addr := range splitAddresses(headerValue(orig.Payload, "To")) {
			if !id.IsSelf(addr) {
				others = append(others, addr)
			}
		}
		for _, addr := range splitAddresses(headerValue(orig.Payload, "Cc")) {
			if !id.IsSelf(addr) {
				others = append(others, addr)
			}
		}
		cc = strings.Join(others, ", ")
	}

	origID := headerValue(orig.Payload, "Message-ID")
	references := strings.TrimSpace(headerValue(orig.Payload, "References") + " " + origID)
	extra := map[string]string{}
	if origID != "" {
		extra["In-Reply-To"] = origID
		extra["References"] = references
	}

	raw := encodeRFC822(to, cc, "", subject, in.Body, extra)
	sent, err := svc.Users.Messages.Send("me", &gmail.Message{Raw: raw, ThreadId: orig.ThreadId}).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	return map[string]any{"id": sent.Id, "threadId": sent.ThreadId, "inReplyTo": in.MessageID}, nil
}

func (m *MailAPI) ModifyMessageLabels(ctx context.Context, id model.Identity, messageID string, add, remove []string) (map[string]any, error) {
	svc, err := m.svc(ctx, id)
	if err != nil {
		return nil, err
	}
	msg, err := svc.Users.Messages.Modify("me", messageID, &gmail.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	return map[string]any{"id": msg.Id, "labelIds": msg.LabelIds}, nil
}

func (m *MailAPI) ListLabels(ctx context.Context, id model.Identity) ([]map[string]any, error) {
	svc, err := m.svc(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := svc.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	labels := make([]map[string]any, 0, len(res.Labels))
	for _, l := range res.Labels {
		labels = append(labels, map[string]any{
			"id":   l.Id,
			"name": l.Name,
			"type": l.Type,
		})
	}
	return labels, nil
}

func (m *MailAPI) CreateLabel(ctx context.Context, id model.Identity, name string) (map[string]any, error) {
	svc, err := m.svc(ctx, id)
	if err != nil {
		return nil, err
	}
	created, err := svc.Users.Labels.Create("me", &gmail.Label{Name: name}).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	return map[string]any{"id": created.Id, "name": created.Name}, nil
}

func (m *MailAPI) PreviewAttachmentText(ctx context.Context, id model.Identity, messageID, attachmentID string) (map[string]any, error) {
	data, err := m.attachmentData(ctx, id, messageID, attachmentID)
	if err != nil {
		return nil, err
	}
	text := string(data)
	truncated := false
	if len(text) > previewTextLimit {
		text = truncateOnRune(text, previewTextLimit)
		truncated = true
	}
	return map[string]any{
		"messageId":    messageID,
		"attachmentId": attachmentID,
		"text":         text,
		"truncated":    truncated,
	}, nil
}

func (m *MailAPI) PreviewAttachmentTable(ctx context.Context, id model.Identity, messageID, attachmentID string) (map[string]any, error) {
	data, err := m.attachmentData(ctx, id, messageID, attachmentID)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1

	var headers []string
	rows := [][]string{}
	truncated := false
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, model.NewInvalidParam("Attachment is not parseable as CSV")
		}
		if headers == nil {
			headers = record
			continue
		}
		if len(rows) >= previewRowLimit {
			truncated = true
			break
		}
		rows = append(rows, record)
	}

	return map[string]any{
		"messageId":    messageID,
		"attachmentId": attachmentID,
		"headers":      headers,
		"rows":         rows,
		"rowCount":     len(rows),
		"truncated":    truncated,
	}, nil
}

// truncateOnRune cuts s to at most limit bytes without splitting a rune.
func truncateOnRune(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

func (m *MailAPI) attachmentData(ctx context.Context, id model.Identity, messageID, attachmentID string) ([]byte, error) {
	svc, err := m.svc(ctx, id)
	if err != nil {
		return nil, err
	}
	att, err := svc.Users.Messages.Attachments.Get("me", messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	data, err := base64.URLEncoding.DecodeString(att.Data)
	if err != nil {
		return nil, fmt.Errorf("decode attachment %s: %w", attachmentID, err)
	}
	return data, nil
}

// --- message helpers ---

func headerValue(payload *gmail.MessagePart, name string) string {
	if payload == nil {
		return ""
	}
	for _, h := range payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func splitAddresses(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// simplifyMessage flattens a Gmail message into the shape the client
// consumes: headers, a best-effort plain-text body, and attachment stubs.
func simplifyMessage(msg *gmail.Message) map[string]any {
	out := map[string]any{
		"id":       msg.Id,
		"threadId": msg.ThreadId,
		"snippet":  msg.Snippet,
		"labelIds": msg.LabelIds,
	}
	if msg.Payload == nil {
		return out
	}
	out["subject"] = headerValue(msg.Payload, "Subject")
	out["from"] = headerValue(msg.Payload, "From")
	out["to"] = headerValue(msg.Payload, "To")
	out["cc"] = headerValue(msg.Payload, "Cc")
	out["date"] = headerValue(msg.Payload, "Date")
	out["body"] = extractBody(msg.Payload)

	attachments := []map[string]any{}
	collectAttachments(msg.Payload, &attachments)
	out["attachments"] = attachments
	return out
}

// extractBody walks the MIME tree preferring text/plain over text/html.
func extractBody(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if text := findBodyByMIME(part, "text/plain"); text != "" {
		return text
	}
	return findBodyByMIME(part, "text/html")
}

func findBodyByMIME(part *gmail.MessagePart, mimeType string) string {
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		decoded, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return ""
		}
		return string(decoded)
	}
	for _, child := range part.Parts {
		if text := findBodyByMIME(child, mimeType); text != "" {
			return text
		}
	}
	return ""
}

func collectAttachments(part *gmail.MessagePart, out *[]map[string]any) {
	if part == nil {
		return
	}
	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		*out = append(*out, map[string]any{
			"attachmentId": part.Body.AttachmentId,
			"filename":     part.Filename,
			"mimeType":     part.MimeType,
			"size":         part.Body.Size,
		})
	}
	for _, child := range part.Parts {
		collectAttachments(child, out)
	}
}

func draftPayload(in rpc.DraftInput) *gmail.Draft {
	raw := encodeRFC822(in.To, in.Cc, in.Bcc, in.Subject, in.Body, nil)
	msg := &gmail.Message{Raw: raw}
	if in.ThreadID != "" {
		msg.ThreadId = in.ThreadID
	}
	return &gmail.Draft{Message: msg}
}

// encodeRFC822 assembles a minimal RFC 822 message and encodes it the way
// the Gmail API expects (URL-safe base64, no padding concerns here since
// URLEncoding emits padding which Gmail accepts).
func encodeRFC822(to, cc, bcc, subject, body string, extra map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", to)
	if cc != "" {
		fmt.Fprintf(&b, "Cc: %s\r\n", cc)
	}
	if bcc != "" {
		fmt.Fprintf(&b, "Bcc: %s\r\n", bcc)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	for name, value := range extra {
		fmt.Fprintf(&b, "%s: %s\r\n", name, value)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}
