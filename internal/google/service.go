package google

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
	"google.golang.org/api/tasks/v1"

	"github.com/fieldline/workspace-bff/internal/observability"
	"github.com/fieldline/workspace-bff/model"
)

// Provider builds and caches per-user API clients. Clients are keyed by user
// id; the underlying token source refreshes tokens on its own, so a cached
// client stays valid across token rotations.
type Provider struct {
	tokens  TokenProvider
	metrics *observability.Metrics

	mu    sync.Mutex
	cache map[string]*userClients
}

type userClients struct {
	gmail    *gmail.Service
	calendar *calendar.Service
	tasks    *tasks.Service
	sheets   *sheets.Service
}

// NewProvider creates a client provider backed by the given token source.
// metrics may be nil; requests then go unrecorded.
func NewProvider(tokens TokenProvider, metrics *observability.Metrics) *Provider {
	return &Provider{
		tokens:  tokens,
		metrics: metrics,
		cache:   make(map[string]*userClients),
	}
}

// instrumentedTransport records the outcome of every round trip against one
// Google service family.
type instrumentedTransport struct {
	base    http.RoundTripper
	service string
	metrics *observability.Metrics
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if t.metrics != nil {
		// Transport-level failures have no HTTP status; they record as 0.
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.metrics.RecordGoogleRequest(t.service, status, time.Since(start))
	}
	return resp, err
}

// httpClient builds the authorized HTTP client for one service family, with
// request instrumentation layered over the oauth2 transport.
func (p *Provider) httpClient(ctx context.Context, ts oauth2.TokenSource, service string) *http.Client {
	client := oauth2.NewClient(ctx, ts)
	client.Transport = &instrumentedTransport{
		base:    client.Transport,
		service: service,
		metrics: p.metrics,
	}
	return client
}

func (p *Provider) clients(ctx context.Context, id model.Identity) (*userClients, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if c, ok := p.cache[id.UserID]; ok {
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	// Build outside the lock: service construction can hit the network.
	// The token source and clients carry context.Background so cached
	// clients are not bound to the first request's lifetime.
	ts := NewTokenSource(context.Background(), p.tokens, id)

	gmailSvc, err := gmail.NewService(ctx, option.WithHTTPClient(p.httpClient(context.Background(), ts, "gmail")))
	if err != nil {
		return nil, fmt.Errorf("build gmail client: %w", err)
	}
	calendarSvc, err := calendar.NewService(ctx, option.WithHTTPClient(p.httpClient(context.Background(), ts, "calendar")))
	if err != nil {
		return nil, fmt.Errorf("build calendar client: %w", err)
	}
	tasksSvc, err := tasks.NewService(ctx, option.WithHTTPClient(p.httpClient(context.Background(), ts, "tasks")))
	if err != nil {
		return nil, fmt.Errorf("build tasks client: %w", err)
	}
	sheetsSvc, err := sheets.NewService(ctx, option.WithHTTPClient(p.httpClient(context.Background(), ts, "sheets")))
	if err != nil {
		return nil, fmt.Errorf("build sheets client: %w", err)
	}

	c := &userClients{
		gmail:    gmailSvc,
		calendar: calendarSvc,
		tasks:    tasksSvc,
		sheets:   sheetsSvc,
	}

	p.mu.Lock()
	if existing, ok := p.cache[id.UserID]; ok {
		c = existing
	} else {
		p.cache[id.UserID] = c
	}
	p.mu.Unlock()
	return c, nil
}

// Evict drops any cached clients for the user. Called when a user disconnects
// their Google account.
func (p *Provider) Evict(userID string) {
	p.mu.Lock()
	delete(p.cache, userID)
	p.mu.Unlock()
}
