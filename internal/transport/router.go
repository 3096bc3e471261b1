package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/fieldline/workspace-bff/internal/config"
	"github.com/fieldline/workspace-bff/internal/observability"
	"github.com/fieldline/workspace-bff/internal/schema"
	"github.com/fieldline/workspace-bff/internal/shape"
	"github.com/fieldline/workspace-bff/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *observability.Metrics
	Schema       *schema.Schema
	Authenticate func(http.Handler) http.Handler

	Mail     Dispatcher
	Calendar Dispatcher
	Contacts Dispatcher
	Tasks    Dispatcher

	Actions   *ActionHandlers
	Snapshots *shape.SnapshotStore
	Readiness observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, metrics, and the published schema
// bypass the authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes — bypass authentication.
	r.Get("/healthz", observability.HandleHealth())
	r.Get("/readyz", observability.HandleReady(deps.Readiness))
	if deps.Config.Observability.Metrics.Enabled {
		r.Method(http.MethodGet, deps.Config.Observability.Metrics.Path, observability.Handler())
	}
	if deps.Schema != nil {
		r.Get("/openapi.yaml", handleSchema(deps.Schema))
	}

	// Authenticated routes — full middleware chain.
	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(observability.TracingMiddleware)
		r.Use(RequestLogging(logger))
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}
		if deps.Config.RateLimit.PerIPLimit > 0 {
			r.Use(httprate.LimitByIP(deps.Config.RateLimit.PerIPLimit, deps.Config.RateLimit.PerIPWindow))
		}

		r.Post("/api/rpc/mail", handleRPC("mail", deps.Mail, model.CodeMailRPCError, logger, deps.Metrics))
		r.Post("/api/rpc/calendar", handleRPC("calendar", deps.Calendar, model.CodeCalendarRPCError, logger, deps.Metrics))
		r.Post("/api/rpc/contacts", handleRPC("contacts", deps.Contacts, model.CodeContactsRPCError, logger, deps.Metrics))
		r.Post("/api/rpc/tasks", handleRPC("tasks", deps.Tasks, model.CodeTasksRPCError, logger, deps.Metrics))

		if deps.Actions != nil {
			r.Post("/api/contacts/actions/modify", deps.Actions.HandleContactsModify())
			r.Post("/api/contacts/actions/delete", deps.Actions.HandleContactsDelete())
			r.Post("/api/contacts/actions/bulkDelete", deps.Actions.HandleContactsBulkDelete())

			r.Post("/api/tasks/actions/create", deps.Actions.HandleTasksCreate())
			r.Post("/api/tasks/actions/modify", deps.Actions.HandleTasksModify())
			r.Post("/api/tasks/actions/delete", deps.Actions.HandleTasksDelete())
		}

		if deps.Snapshots != nil {
			r.Post("/api/admin/cache/flush", handleCacheFlush(deps.Snapshots))
			r.Get("/api/admin/cache/stats", handleCacheStats(deps.Snapshots))
		}
	})

	return r
}

// handleSchema serves the published action schema verbatim.
func handleSchema(s *schema.Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(s.Raw())
	}
}
