package shape

import (
	"context"
)

// Page size bounds applied to single-page listings.
const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// MaxAggregatePages bounds how many upstream pages one aggregate call may
// consume, independent of the item cap.
const MaxAggregatePages = 50

// PageFunc fetches one upstream page. It returns the page's items and the
// token for the next page, empty when the listing is exhausted.
type PageFunc func(ctx context.Context, pageToken string, pageSize int) (items []map[string]any, nextPageToken string, err error)

// Envelope is the uniform listing result for both single-page and aggregate
// modes.
type Envelope struct {
	Items         []map[string]any `json:"items"`
	HasMore       bool             `json:"hasMore"`
	Partial       bool             `json:"partial"`
	PagesConsumed int              `json:"pagesConsumed"`
	NextPageToken string           `json:"nextPageToken,omitempty"`
	SnapshotToken string           `json:"snapshotToken,omitempty"`
}

// ClampPageSize bounds a requested page size to [1, MaxPageSize], substituting
// DefaultPageSize when the caller did not supply one.
func ClampPageSize(requested int) int {
	if requested <= 0 {
		return DefaultPageSize
	}
	if requested > MaxPageSize {
		return MaxPageSize
	}
	return requested
}

// SinglePage fetches exactly one page and wraps it.
func SinglePage(ctx context.Context, fetch PageFunc, pageToken string, pageSize int) (Envelope, error) {
	items, next, err := fetch(ctx, pageToken, ClampPageSize(pageSize))
	if err != nil {
		return Envelope{}, err
	}
	if items == nil {
		items = []map[string]any{}
	}
	return Envelope{
		Items:         items,
		HasMore:       next != "",
		NextPageToken: next,
		PagesConsumed: 1,
	}, nil
}

// Aggregate loops over upstream pages until the accumulated item count
// reaches cap or the upstream is exhausted. The output never exceeds cap;
// Partial is true exactly when the cap cut the listing short.
func Aggregate(ctx context.Context, fetch PageFunc, cap int) (Envelope, error) {
	if cap <= 0 {
		cap = MaxPageSize
	}

	var items []map[string]any
	pages := 0
	token := ""

	for {
		pageItems, next, err := fetch(ctx, token, MaxPageSize)
		if err != nil {
			return Envelope{}, err
		}
		pages++
		items = append(items, pageItems...)

		if next == "" {
			// Exhausted. Truncation only applies if the final page overshot.
			if len(items) > cap {
				return Envelope{
					Items:         items[:cap],
					HasMore:       true,
					Partial:       true,
					PagesConsumed: pages,
				}, nil
			}
			if items == nil {
				items = []map[string]any{}
			}
			return Envelope{
				Items:         items,
				HasMore:       false,
				Partial:       false,
				PagesConsumed: pages,
			}, nil
		}
		if len(items) >= cap {
			return Envelope{
				Items:         items[:cap],
				HasMore:       true,
				Partial:       true,
				PagesConsumed: pages,
			}, nil
		}
		if pages >= MaxAggregatePages {
			// A misbehaving upstream can hand out next tokens forever; stop
			// fetching and report the listing as cut short.
			if items == nil {
				items = []map[string]any{}
			}
			return Envelope{
				Items:         items,
				HasMore:       true,
				Partial:       true,
				PagesConsumed: pages,
			}, nil
		}
		token = next
	}
}
