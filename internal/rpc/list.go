package rpc

import (
	"context"

	"github.com/fieldline/workspace-bff/internal/observability"
	"github.com/fieldline/workspace-bff/internal/ratelimit"
	"github.com/fieldline/workspace-bff/internal/shape"
	"github.com/fieldline/workspace-bff/model"
)

// Per-domain aggregate caps: the most items a single aggregate-mode call may
// return, regardless of how many upstream pages exist.
const (
	mailAggregateCap     = 200
	calendarAggregateCap = 250
	contactsAggregateCap = 500
	tasksAggregateCap    = 200
)

// Deps carries the collaborators shared by every dispatcher: the snapshot
// store behind aggregate-mode continuation tokens and the cost gate applied
// before multi-page fetching.
type Deps struct {
	Snapshots *shape.SnapshotStore
	Gate      ratelimit.Gate

	// AggregateCost is the gate cost charged for an aggregate-mode listing;
	// single-page listings cost 1.
	AggregateCost int

	// Metrics may be nil; listings then go unrecorded.
	Metrics *observability.Metrics
}

// runList executes a list-like operation in either single-page or aggregate
// mode. build turns the resolved query parameters into a page fetcher; the
// resolved parameters come from a stored snapshot when the caller presents a
// valid snapshotToken, otherwise from the request itself.
func (d Deps) runList(ctx context.Context, domain string, id model.Identity, p Params, query map[string]any, cap int, build func(query map[string]any) shape.PageFunc) (shape.Envelope, error) {
	if token := p.String("snapshotToken"); token != "" && !p.Bool("ignoreSnapshot") {
		snap, ok := d.Snapshots.Get(token)
		if !ok || snap.Domain != domain {
			if d.Metrics != nil {
				d.Metrics.RecordSnapshotMiss()
			}
			return shape.Envelope{}, model.NewSnapshotNotFound()
		}
		if d.Metrics != nil {
			d.Metrics.RecordSnapshotHit()
		}
		query = snap.Query
	}

	fetch := build(query)

	if p.Bool("aggregate") {
		cost := d.AggregateCost
		if cost <= 0 {
			cost = 1
		}
		if d.Gate != nil && !d.Gate.Allow(ctx, id.UserID+":"+domain, cost) {
			if d.Metrics != nil {
				d.Metrics.RecordRateLimitDenial(domain)
			}
			return shape.Envelope{}, model.NewRateLimited("Aggregate listing rate limit exceeded; retry shortly or use single-page mode")
		}
		env, err := shape.Aggregate(ctx, fetch, cap)
		if err != nil {
			return shape.Envelope{}, err
		}
		env.SnapshotToken = d.Snapshots.Mint(domain, query).Token
		if d.Metrics != nil {
			d.Metrics.RecordAggregation(domain, env.PagesConsumed)
			d.Metrics.SetSnapshotsActive(float64(d.Snapshots.Diagnostics().Entries))
		}
		return env, nil
	}

	if d.Gate != nil && !d.Gate.Allow(ctx, id.UserID+":"+domain, 1) {
		if d.Metrics != nil {
			d.Metrics.RecordRateLimitDenial(domain)
		}
		return shape.Envelope{}, model.NewRateLimited("")
	}
	size, _ := p.Int("maxResults")
	return shape.SinglePage(ctx, fetch, p.String("pageToken"), size)
}
