package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	// Steps are decided by humans; buckets span minutes to weeks.
	stepDurationBuckets = []float64{60, 600, 3600, 4 * 3600, 24 * 3600, 3 * 24 * 3600, 7 * 24 * 3600, 14 * 24 * 3600}
)

// Metrics holds all Prometheus metric instruments for the service.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Workflow metrics
	RecordsSubmittedTotal    *prometheus.CounterVec
	TransitionsTotal         *prometheus.CounterVec
	TransitionsRefusedTotal  *prometheus.CounterVec
	StaleStateConflictsTotal *prometheus.CounterVec
	StepDurationSeconds      *prometheus.HistogramVec
	RecordsCompletedTotal    *prometheus.CounterVec

	// Notification metrics
	NotificationsSentTotal   *prometheus.CounterVec
	NotificationsFailedTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signoff_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		RecordsSubmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_records_submitted_total",
			Help: "Total number of workflow records submitted.",
		}, []string{"workflow_id"}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_transitions_total",
			Help: "Total number of applied transitions.",
		}, []string{"workflow_id", "decision"}),
		TransitionsRefusedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_transitions_refused_total",
			Help: "Total number of refused transition attempts, by error code.",
		}, []string{"workflow_id", "code"}),
		StaleStateConflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_stale_state_conflicts_total",
			Help: "Total number of optimistic concurrency conflicts.",
		}, []string{"workflow_id"}),
		StepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signoff_step_duration_seconds",
			Help:    "Time a step waited for its decision, in seconds.",
			Buckets: stepDurationBuckets,
		}, []string{"workflow_id"}),
		RecordsCompletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_records_completed_total",
			Help: "Total number of records reaching a terminal status.",
		}, []string{"workflow_id", "final_status"}),

		NotificationsSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_notifications_sent_total",
			Help: "Total number of notifications handed to the notifier.",
		}, []string{"kind"}),
		NotificationsFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signoff_notifications_failed_total",
			Help: "Total number of notification deliveries that failed.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RecordsSubmittedTotal,
		m.TransitionsTotal,
		m.TransitionsRefusedTotal,
		m.StaleStateConflictsTotal,
		m.StepDurationSeconds,
		m.RecordsCompletedTotal,
		m.NotificationsSentTotal,
		m.NotificationsFailedTotal,
	)

	return m
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// MetricsMiddleware records request counts and durations using the chi route
// pattern as the path label, keeping cardinality bounded.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsStatusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}

		m.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(sw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

type metricsStatusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *metricsStatusWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsStatusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}
