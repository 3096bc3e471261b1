package google

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/api/sheets/v4"

	"github.com/fieldline/workspace-bff/internal/rpc"
	"github.com/fieldline/workspace-bff/model"
)

// Column layout of the contacts sheet. Row 1 is the header; data starts at
// row 2. Columns: Name, Email, Phone, RealEstate, Notes.
const (
	contactColumns    = 5
	contactsFirstRow  = 2
	contactsDataRange = "!A2:E"
)

// ContactsSheet implements the contacts service surface over a user-owned
// spreadsheet. Every read loads the full sheet; the data is small (hundreds
// of rows) and the spreadsheet is the single source of truth.
type ContactsSheet struct {
	provider      *Provider
	spreadsheetID string
	sheetName     string
}

// NewContactsSheet builds the spreadsheet-backed contacts adapter.
func NewContactsSheet(provider *Provider, spreadsheetID, sheetName string) *ContactsSheet {
	if sheetName == "" {
		sheetName = "Contacts"
	}
	return &ContactsSheet{provider: provider, spreadsheetID: spreadsheetID, sheetName: sheetName}
}

func (s *ContactsSheet) svc(ctx context.Context, id model.Identity) (*sheets.Service, error) {
	clients, err := s.provider.clients(ctx, id)
	if err != nil {
		return nil, err
	}
	return clients.sheets, nil
}

func (s *ContactsSheet) dataRange() string {
	return s.sheetName + contactsDataRange
}

// loadAll reads every contact row. RowIndex is the 1-based sheet row.
func (s *ContactsSheet) loadAll(ctx context.Context, id model.Identity) ([]rpc.Contact, error) {
	svc, err := s.svc(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := svc.Spreadsheets.Values.Get(s.spreadsheetID, s.dataRange()).Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}

	contacts := make([]rpc.Contact, 0, len(res.Values))
	for i, row := range res.Values {
		c := rpc.Contact{RowIndex: contactsFirstRow + i}
		for col, cell := range row {
			v, _ := cell.(string)
			v = strings.TrimSpace(v)
			switch col {
			case 0:
				c.Name = v
			case 1:
				c.Email = v
			case 2:
				c.Phone = v
			case 3:
				c.RealEstate = v
			case 4:
				c.Notes = v
			}
		}
		if c.Name == "" && c.Email == "" {
			continue
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

func contactRow(c rpc.Contact) []any {
	return []any{c.Name, c.Email, c.Phone, c.RealEstate, c.Notes}
}

func contactItem(c rpc.Contact) map[string]any {
	item := map[string]any{
		"name":     c.Name,
		"email":    c.Email,
		"rowIndex": c.RowIndex,
	}
	if c.Phone != "" {
		item["phone"] = c.Phone
	}
	if c.RealEstate != "" {
		item["realEstate"] = c.RealEstate
	}
	if c.Notes != "" {
		item["notes"] = c.Notes
	}
	return item
}

// ListContacts pages through the sheet with an offset-based token.
func (s *ContactsSheet) ListContacts(ctx context.Context, id model.Identity, page rpc.PageRequest) (rpc.Page, error) {
	contacts, err := s.loadAll(ctx, id)
	if err != nil {
		return rpc.Page{}, err
	}

	offset := 0
	if page.PageToken != "" {
		offset, err = strconv.Atoi(page.PageToken)
		if err != nil || offset < 0 {
			return rpc.Page{}, model.NewInvalidParam("Malformed pageToken")
		}
	}
	if offset > len(contacts) {
		offset = len(contacts)
	}

	end := offset + page.MaxResults
	if page.MaxResults <= 0 || end > len(contacts) {
		end = len(contacts)
	}

	items := make([]map[string]any, 0, end-offset)
	for _, c := range contacts[offset:end] {
		items = append(items, contactItem(c))
	}

	next := ""
	if end < len(contacts) {
		next = strconv.Itoa(end)
	}
	return rpc.Page{Items: items, NextPageToken: next}, nil
}

// SearchContacts matches the query against name, email and property fields.
func (s *ContactsSheet) SearchContacts(ctx context.Context, id model.Identity, query string) ([]map[string]any, error) {
	contacts, err := s.loadAll(ctx, id)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	matches := []map[string]any{}
	for _, c := range contacts {
		haystack := strings.ToLower(c.Name + " " + c.Email + " " + c.Phone + " " + c.RealEstate)
		if strings.Contains(haystack, q) {
			matches = append(matches, contactItem(c))
		}
	}
	return matches, nil
}

func (s *ContactsSheet) AddContact(ctx context.Context, id model.Identity, c rpc.Contact) (map[string]any, error) {
	svc, err := s.svc(ctx, id)
	if err != nil {
		return nil, err
	}
	_, err = svc.Spreadsheets.Values.Append(s.spreadsheetID, s.dataRange(), &sheets.ValueRange{
		Values: [][]any{contactRow(c)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	return map[string]any{
		"added":      true,
		"name":       c.Name,
		"email":      c.Email,
		"realEstate": c.RealEstate,
	}, nil
}

// FindDuplicates groups contacts sharing an email address (case-insensitive)
// or an identical normalized name.
func (s *ContactsSheet) FindDuplicates(ctx context.Context, id model.Identity) ([]map[string]any, error) {
	contacts, err := s.loadAll(ctx, id)
	if err != nil {
		return nil, err
	}

	byKey := map[string][]rpc.Contact{}
	order := []string{}
	for _, c := range contacts {
		key := strings.ToLower(c.Email)
		if key == "" {
			key = "name:" + strings.ToLower(strings.Join(strings.Fields(c.Name), " "))
		}
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], c)
	}

	groups := []map[string]any{}
	for _, key := range order {
		group := byKey[key]
		if len(group) < 2 {
			continue
		}
		members := make([]map[string]any, 0, len(group))
		for _, c := range group {
			members = append(members, contactItem(c))
		}
		groups = append(groups, map[string]any{"key": key, "contacts": members})
	}
	return groups, nil
}

// BulkUpsert updates rows whose email already exists and appends the rest.
func (s *ContactsSheet) BulkUpsert(ctx context.Context, id model.Identity, incoming []rpc.Contact) (map[string]any, error) {
	existing, err := s.loadAll(ctx, id)
	if err != nil {
		return nil, err
	}
	svc, err := s.svc(ctx, id)
	if err != nil {
		return nil, err
	}

	rowByEmail := map[string]int{}
	for _, c := range existing {
		rowByEmail[strings.ToLower(c.Email)] = c.RowIndex
	}

	updated, added := 0, 0
	var appendRows [][]any
	for _, c := range incoming {
		row, exists := rowByEmail[strings.ToLower(c.Email)]
		if !exists {
			appendRows = append(appendRows, contactRow(c))
			added++
			continue
		}
		rangeRef := fmt.Sprintf("%s!A%d:E%d", s.sheetName, row, row)
		_, err := svc.Spreadsheets.Values.Update(s.spreadsheetID, rangeRef, &sheets.ValueRange{
			Values: [][]any{contactRow(c)},
		}).ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return nil, wrapError(err)
		}
		updated++
	}

	if len(appendRows) > 0 {
		_, err := svc.Spreadsheets.Values.Append(s.spreadsheetID, s.dataRange(), &sheets.ValueRange{
			Values: appendRows,
		}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		if err != nil {
			return nil, wrapError(err)
		}
	}

	return map[string]any{"updated": updated, "added": added, "total": updated + added}, nil
}

// AddressSuggestions returns contacts whose property field matches the query.
func (s *ContactsSheet) AddressSuggestions(ctx context.Context, id model.Identity, query string) ([]map[string]any, error) {
	contacts, err := s.loadAll(ctx, id)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	suggestions := []map[string]any{}
	for _, c := range contacts {
		if c.RealEstate == "" {
			continue
		}
		if strings.Contains(strings.ToLower(c.RealEstate), q) ||
			strings.Contains(strings.ToLower(c.Name), q) {
			suggestions = append(suggestions, map[string]any{
				"address": c.RealEstate,
				"name":    c.Name,
				"email":   c.Email,
			})
		}
	}
	return suggestions, nil
}

// UpdateContact rewrites the row identified by email. Only non-empty fields
// of the incoming contact replace existing values.
func (s *ContactsSheet) UpdateContact(ctx context.Context, id model.Identity, in rpc.Contact) (map[string]any, error) {
	existing, err := s.loadAll(ctx, id)
	if err != nil {
		return nil, err
	}

	var current *rpc.Contact
	for i := range existing {
		if strings.EqualFold(existing[i].Email, in.Email) {
			current = &existing[i]
			break
		}
	}
	if current == nil {
		return nil, &model.APIError{
			StatusCode: 404,
			Code:       "CONTACT_NOT_FOUND",
			Message:    fmt.Sprintf("No contact with email %q", in.Email),
		}
	}

	merged := *current
	if in.Name != "" {
		merged.Name = in.Name
	}
	if in.Phone != "" {
		merged.Phone = in.Phone
	}
	if in.RealEstate != "" {
		merged.RealEstate = in.RealEstate
	}
	if in.Notes != "" {
		merged.Notes = in.Notes
	}

	svc, err := s.svc(ctx, id)
	if err != nil {
		return nil, err
	}
	rangeRef := fmt.Sprintf("%s!A%d:E%d", s.sheetName, current.RowIndex, current.RowIndex)
	_, err = svc.Spreadsheets.Values.Update(s.spreadsheetID, rangeRef, &sheets.ValueRange{
		Values: [][]any{contactRow(merged)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return nil, wrapError(err)
	}
	return contactItem(merged), nil
}

// DeleteContact clears the row identified by email. Clearing rather than
// removing the row keeps the remaining row indexes stable.
func (s *ContactsSheet) DeleteContact(ctx context.Context, id model.Identity, email string) error {
	existing, err := s.loadAll(ctx, id)
	if err != nil {
		return err
	}
	for _, c := range existing {
		if strings.EqualFold(c.Email, email) {
			svc, err := s.svc(ctx, id)
			if err != nil {
				return err
			}
			rangeRef := fmt.Sprintf("%s!A%d:E%d", s.sheetName, c.RowIndex, c.RowIndex)
			_, err = svc.Spreadsheets.Values.Clear(s.spreadsheetID, rangeRef, &sheets.ClearValuesRequest{}).Context(ctx).Do()
			if err != nil {
				return wrapError(err)
			}
			return nil
		}
	}
	return &model.APIError{
		StatusCode: 404,
		Code:       "CONTACT_NOT_FOUND",
		Message:    fmt.Sprintf("No contact with email %q", email),
	}
}

// BulkDeleteContacts clears every row whose email is in the list. Unknown
// emails are reported, not treated as failures.
func (s *ContactsSheet) BulkDeleteContacts(ctx context.Context, id model.Identity, emails []string) (map[string]any, error) {
	existing, err := s.loadAll(ctx, id)
	if err != nil {
		return nil, err
	}
	svc, err := s.svc(ctx, id)
	if err != nil {
		return nil, err
	}

	rowByEmail := map[string]int{}
	for _, c := range existing {
		rowByEmail[strings.ToLower(c.Email)] = c.RowIndex
	}

	deleted := 0
	notFound := []string{}
	for _, email := range emails {
		row, ok := rowByEmail[strings.ToLower(email)]
		if !ok {
			notFound = append(notFound, email)
			continue
		}
		rangeRef := fmt.Sprintf("%s!A%d:E%d", s.sheetName, row, row)
		_, err := svc.Spreadsheets.Values.Clear(s.spreadsheetID, rangeRef, &sheets.ClearValuesRequest{}).Context(ctx).Do()
		if err != nil {
			return nil, wrapError(err)
		}
		deleted++
	}

	out := map[string]any{"deleted": deleted, "requested": len(emails)}
	if len(notFound) > 0 {
		out["notFound"] = notFound
	}
	return out, nil
}
