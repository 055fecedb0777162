package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Classification metrics
	classificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directive_classifications_total",
			Help: "Total number of directive classifications by processing tier",
		},
		[]string{"tier"},
	)

	classificationConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "directive_classification_confidence",
			Help:    "Aggregate confidence score of completed classifications",
			Buckets: []float64{.1, .2, .3, .4, .5, .6, .7, .75, .8, .85, .9, .95, 1},
		},
	)

	classificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "directive_classification_duration_seconds",
			Help:    "End-to-end classification duration in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10},
		},
		[]string{"tier"},
	)

	escalationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "directive_escalation_failures_total",
			Help: "Total number of failed escalations to the external classifier",
		},
	)

	humanReviewFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "directive_human_review_flagged_total",
			Help: "Total number of analyses flagged for human review",
		},
	)

	costSavingsPct = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "directive_cost_savings_percent",
			Help: "Running average cost savings versus the full external classifier baseline",
		},
	)

	// Emergency metrics
	emergencyChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "emergency_checks_total",
			Help: "Total number of emergency directive checks",
		},
		[]string{"directive_type", "outcome"},
	)

	emergencyAlertDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "emergency_alert_duration_seconds",
			Help:    "Emergency alert delivery duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// Executor metrics
	executionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directive_executions_total",
			Help: "Total number of directive executions",
		},
		[]string{"directive_type", "status"},
	)

	recipientsNotified = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transplant_recipients_notified_total",
			Help: "Total number of transplant center notifications delivered",
		},
	)

	// Audit metrics
	auditEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Total number of audit entries created",
		},
	)

	// Database metrics
	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordClassification records a completed classification
func RecordClassification(tier string, confidence float64, duration time.Duration, review bool) {
	classificationsTotal.WithLabelValues(tier).Inc()
	classificationConfidence.Observe(confidence)
	classificationDuration.WithLabelValues(tier).Observe(duration.Seconds())
	if review {
		humanReviewFlagged.Inc()
	}
}

// RecordEscalationFailure records a failed external classifier call
func RecordEscalationFailure() {
	escalationFailures.Inc()
}

// RecordCostSavings updates the running cost savings gauge
func RecordCostSavings(pct float64) {
	costSavingsPct.Set(pct)
}

// RecordEmergencyCheck records an emergency directive check
func RecordEmergencyCheck(directiveType, outcome string) {
	emergencyChecksTotal.WithLabelValues(directiveType, outcome).Inc()
}

// RecordEmergencyAlert records an emergency alert delivery
func RecordEmergencyAlert(duration time.Duration) {
	emergencyAlertDuration.Observe(duration.Seconds())
}

// RecordExecution records a directive execution
func RecordExecution(directiveType, status string) {
	executionsTotal.WithLabelValues(directiveType, status).Inc()
}

// RecordRecipientNotified records a delivered transplant center notification
func RecordRecipientNotified() {
	recipientsNotified.Inc()
}

// RecordAuditEntry records an audit entry creation
func RecordAuditEntry() {
	auditEntriesTotal.Inc()
}

// RecordDBConnections records active database connections
func RecordDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}
