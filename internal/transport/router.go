package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/signoff-hq/signoff/internal/config"
	"github.com/signoff-hq/signoff/internal/observability"
	"github.com/signoff-hq/signoff/internal/workflow"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config       *config.Config
	Engine       *workflow.Engine
	Authenticate func(http.Handler) http.Handler
	Metrics      *observability.Metrics
	Ready        observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to all routes including health.
	r.Use(Recovery)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes bypass authentication.
	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Ready))
	if deps.Config.Observability.Metrics.Enabled {
		r.Method(http.MethodGet, deps.Config.Observability.Metrics.Path, observability.Handler())
	}

	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(observability.TracingMiddleware)
		r.Use(BuildRequestContext)
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout.Std()))
		r.Use(RequestLogging)
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Route("/api/records", func(r chi.Router) {
			r.Post("/", handleRecordSubmit(deps.Engine))
			r.Get("/", handleRecordList(deps.Engine))
			r.Get("/inbox", handleRecordInbox(deps.Engine))
			r.Post("/{recordId}/decision", handleRecordDecision(deps.Engine))
			r.Get("/{recordId}/progress", handleRecordProgress(deps.Engine))
			r.Get("/{recordId}/events", handleRecordEvents(deps.Engine))
			r.Get("/{recordId}/durations", handleRecordDurations(deps.Engine))
		})
	})

	return r
}
