// Package model holds the shared types that cross package boundaries: the
// authenticated identity, the API error currency, and the response envelopes.
package model

import (
	"context"
	"errors"
	"strings"
)

// Identity is the authenticated Google account a request acts on behalf of.
// It is immutable after construction and safe for concurrent reads.
type Identity struct {
	UserID string
	Email  string
}

// Validate checks that the mandatory fields are present.
func (id Identity) Validate() error {
	if id.UserID == "" {
		return errors.New("identity: UserID is required")
	}
	if id.Email == "" {
		return errors.New("identity: Email is required")
	}
	return nil
}

// IsSelf reports whether the given address belongs to this identity,
// ignoring case and surrounding whitespace.
func (id Identity) IsSelf(address string) bool {
	return strings.EqualFold(strings.TrimSpace(address), strings.TrimSpace(id.Email))
}

type identityKey struct{}

// WithIdentity attaches an Identity to the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom extracts the Identity from the context. ok is false when no
// authentication middleware ran.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

type correlationIDKey struct{}

// WithCorrelationID attaches the request correlation ID to the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationIDFrom extracts the correlation ID, or "" when none was set.
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}
