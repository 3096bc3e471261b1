// Package rpc implements the operation-by-name protocol layer: payload
// normalization, the per-domain dispatchers, the deprecation redirects, and
// the error translation applied at every dispatcher boundary.
package rpc

import (
	"context"

	"github.com/fieldline/workspace-bff/model"
)

// PageRequest carries pagination through to a backing service.
type PageRequest struct {
	MaxResults int
	PageToken  string
}

// Page is one upstream page of results.
type Page struct {
	Items         []map[string]any
	NextPageToken string
}

// SendInput describes an outgoing message. Exactly one of DraftID or the
// To/Subject/Body triple is set by the time a service sees it.
type SendInput struct {
	DraftID  string
	To       string
	Cc       string
	Bcc      string
	Subject  string
	Body     string
	ThreadID string
}

// DraftInput describes a draft create or update.
type DraftInput struct {
	To       string
	Cc       string
	Bcc      string
	Subject  string
	Body     string
	ThreadID string
}

// ReplyInput describes a reply to an existing message.
type ReplyInput struct {
	MessageID string
	Body      string
	ReplyAll  bool
}

// EventTime is a calendar boundary: both halves are always present once a
// request has passed validation.
type EventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// EventInput describes a calendar event create.
type EventInput struct {
	Summary     string
	Description string
	Location    string
	Start       EventTime
	End         EventTime
	Attendees   []string
}

// EventWindow scopes an event listing.
type EventWindow struct {
	TimeMin string
	TimeMax string
	Query   string
}

// Contact is one row of the spreadsheet-backed address book.
type Contact struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	RealEstate string `json:"realEstate,omitempty"`
	Notes      string `json:"notes,omitempty"`
	RowIndex   int    `json:"rowIndex,omitempty"`
}

// TaskInput describes a task create.
type TaskInput struct {
	Title string
	Notes string
	Due   string
}

// MailService is the Gmail surface the mail dispatcher needs.
type MailService interface {
	SearchEmails(ctx context.Context, id model.Identity, query string, page PageRequest) (Page, error)
	ReadEmail(ctx context.Context, id model.Identity, messageID string) (map[string]any, error)
	SendEmail(ctx context.Context, id model.Identity, in SendInput) (map[string]any, error)
	CreateDraft(ctx context.Context, id model.Identity, in DraftInput) (map[string]any, error)
	UpdateDraft(ctx context.Context, id model.Identity, draftID string, in DraftInput) (map[string]any, error)
	ListDrafts(ctx context.Context, id model.Identity, page PageRequest) (Page, error)
	GetDraft(ctx context.Context, id model.Identity, draftID string) (map[string]any, error)
	ReplyToEmail(ctx context.Context, id model.Identity, in ReplyInput) (map[string]any, error)
	ModifyMessageLabels(ctx context.Context, id model.Identity, messageID string, add, remove []string) (map[string]any, error)
	ListLabels(ctx context.Context, id model.Identity) ([]map[string]any, error)
	CreateLabel(ctx context.Context, id model.Identity, name string) (map[string]any, error)
	PreviewAttachmentText(ctx context.Context, id model.Identity, messageID, attachmentID string) (map[string]any, error)
	PreviewAttachmentTable(ctx context.Context, id model.Identity, messageID, attachmentID string) (map[string]any, error)
}

// CalendarService is the Calendar surface the calendar dispatcher needs.
type CalendarService interface {
	ListEvents(ctx context.Context, id model.Identity, window EventWindow, page PageRequest) (Page, error)
	GetEvent(ctx context.Context, id model.Identity, eventID string) (map[string]any, error)
	CreateEvent(ctx context.Context, id model.Identity, in EventInput) (map[string]any, error)
	UpdateEvent(ctx context.Context, id model.Identity, eventID string, updates map[string]any) (map[string]any, error)
	DeleteEvent(ctx context.Context, id model.Identity, eventID string) error
	FindConflicts(ctx context.Context, id model.Identity, start, end EventTime, excludeEventID string) ([]map[string]any, error)
}

// ContactsService is the spreadsheet-backed address book surface. The
// mutation methods beyond AddContact/BulkUpsert are reachable only through
// the dedicated action endpoints, never through RPC dispatch.
type ContactsService interface {
	ListContacts(ctx context.Context, id model.Identity, page PageRequest) (Page, error)
	SearchContacts(ctx context.Context, id model.Identity, query string) ([]map[string]any, error)
	AddContact(ctx context.Context, id model.Identity, c Contact) (map[string]any, error)
	FindDuplicates(ctx context.Context, id model.Identity) ([]map[string]any, error)
	BulkUpsert(ctx context.Context, id model.Identity, contacts []Contact) (map[string]any, error)
	AddressSuggestions(ctx context.Context, id model.Identity, query string) ([]map[string]any, error)
	UpdateContact(ctx context.Context, id model.Identity, c Contact) (map[string]any, error)
	DeleteContact(ctx context.Context, id model.Identity, email string) error
	BulkDeleteContacts(ctx context.Context, id model.Identity, emails []string) (map[string]any, error)
}

// TasksService is the Tasks surface. Mutations are reachable only through
// the dedicated action endpoints.
type TasksService interface {
	ListTasks(ctx context.Context, id model.Identity, taskListID string, showCompleted bool, page PageRequest) (Page, error)
	CreateTask(ctx context.Context, id model.Identity, taskListID string, in TaskInput) (map[string]any, error)
	UpdateTask(ctx context.Context, id model.Identity, taskListID, taskID string, updates map[string]any) (map[string]any, error)
	DeleteTask(ctx context.Context, id model.Identity, taskListID, taskID string) error
}
