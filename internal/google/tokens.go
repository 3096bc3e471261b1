// Package google adapts the Google Workspace APIs (Gmail, Calendar, Tasks,
// Sheets) to the service interfaces the dispatchers consume. All calls act
// under the end user's delegated OAuth credential.
package google

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/fieldline/workspace-bff/model"
)

// TokenProvider resolves the delegated OAuth token for a user. A lookup
// failure means the user must reconnect their Google account.
type TokenProvider interface {
	AccessToken(ctx context.Context, id model.Identity) (string, error)
}

// StaticTokenProvider serves one fixed token for every identity. Development
// and test use only.
type StaticTokenProvider struct {
	Token string
}

func (p StaticTokenProvider) AccessToken(_ context.Context, _ model.Identity) (string, error) {
	if p.Token == "" {
		return "", model.NewAuthRequired("")
	}
	return p.Token, nil
}

// tokenSource adapts a TokenProvider to oauth2.TokenSource so it can be
// handed to option.WithTokenSource when building API clients.
type tokenSource struct {
	ctx      context.Context
	provider TokenProvider
	id       model.Identity
}

// Token implements oauth2.TokenSource. Called by the API clients whenever
// they need a fresh access token.
func (t *tokenSource) Token() (*oauth2.Token, error) {
	access, err := t.provider.AccessToken(t.ctx, t.id)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: access,
		TokenType:   "Bearer",
	}, nil
}

// NewTokenSource builds an oauth2.TokenSource bound to one user.
func NewTokenSource(ctx context.Context, provider TokenProvider, id model.Identity) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, provider: provider, id: id}
}
