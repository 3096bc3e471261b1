package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fieldline/workspace-bff/internal/observability"
	"github.com/fieldline/workspace-bff/internal/rpc"
	"github.com/fieldline/workspace-bff/internal/shape"
	"github.com/fieldline/workspace-bff/model"
)

// Dispatcher is one domain's operation switch.
type Dispatcher interface {
	Dispatch(ctx context.Context, id model.Identity, req rpc.Request) (any, *model.APIError)
}

// listQueryKeys are the pagination controls a client may supply as URL query
// parameters instead of body fields. Body fields win on collision.
var listQueryKeys = []string{"maxResults", "pageToken", "aggregate", "snapshotToken", "ignoreSnapshot"}

func handleRPC(domain string, d Dispatcher, fallbackCode string, logger *zap.Logger, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := model.IdentityFrom(r.Context())
		if !ok {
			WriteAPIError(w, unauthorized("Missing request identity"))
			return
		}

		body, apiErr := decodeBody(r)
		if apiErr != nil {
			WriteAPIError(w, apiErr)
			return
		}
		mergeListQuery(r, body)

		req, err := rpc.Normalize(domain, body)
		if err != nil {
			WriteAPIError(w, rpc.Translate(err, fallbackCode))
			return
		}

		ctx, span := observability.StartSpan(r.Context(), "rpc.dispatch",
			observability.AttrDomain.String(domain),
			observability.AttrOp.String(req.Op),
			observability.AttrUserID.String(id.UserID),
		)
		start := time.Now()
		data, apiErr := d.Dispatch(ctx, id, req)
		if apiErr != nil {
			observability.EndSpanWithError(span, apiErr)
			recordDispatch(metrics, domain, req.Op, "error", time.Since(start))
			if metrics != nil && apiErr.StatusCode == http.StatusGone {
				metrics.RecordDeprecatedOp(domain, req.Op)
			}
			observability.RequestLogger(ctx, logger).Warn("dispatch failed",
				zap.String("domain", domain),
				zap.String("op", req.Op),
				zap.String("code", apiErr.Code),
				zap.Int("status", apiErr.StatusCode),
			)
			WriteAPIError(w, apiErr)
			return
		}
		observability.EndSpanWithError(span, nil)
		recordDispatch(metrics, domain, req.Op, "ok", time.Since(start))

		etag, err := shape.ComputeETag(data)
		if err != nil {
			WriteAPIError(w, model.NewInternal(fallbackCode))
			return
		}
		if shape.ETagMatches(r.Header.Get("If-None-Match"), etag) {
			if metrics != nil {
				metrics.RecordETagNotModified(domain)
			}
			w.Header().Set("ETag", etag)
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		WriteJSON(w, http.StatusOK, model.OK(data))
	}
}

func recordDispatch(metrics *observability.Metrics, domain, op, status string, d time.Duration) {
	if metrics != nil {
		metrics.RecordDispatch(domain, op, status, d)
	}
}

// decodeBody parses the request body into a map. An empty body is an empty
// map; malformed JSON is a 400.
func decodeBody(r *http.Request) (map[string]any, *model.APIError) {
	body := map[string]any{}
	err := json.NewDecoder(r.Body).Decode(&body)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, model.NewInvalidParam("Request body must be a JSON object")
	}
	return body, nil
}

// mergeListQuery copies the pagination query parameters into the body root
// where the body does not already carry them.
func mergeListQuery(r *http.Request, body map[string]any) {
	q := r.URL.Query()
	for _, key := range listQueryKeys {
		if _, present := body[key]; present {
			continue
		}
		if v := q.Get(key); v != "" {
			body[key] = v
		}
	}
}
