// Package metrics provides Prometheus metrics for the rating and calibration engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector of the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Scoring
	ratingsCalculated     *prometheus.CounterVec
	potentialAssessments  prometheus.Counter
	classifications       *prometheus.CounterVec
	recalculationDuration prometheus.Histogram

	// Calibration
	adjustments           *prometheus.CounterVec
	sessionTransitions    *prometheus.CounterVec
	artifactsGenerated    prometheus.Counter
	artifactVerifications *prometheus.CounterVec
	idempotentReplays     prometheus.Counter

	// Workers
	workerActive prometheus.Gauge
	workerTasks  *prometheus.CounterVec

	// Store
	storeTransactions *prometheus.CounterVec
	storeTxDuration   *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "perfcal",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.ratingsCalculated = m.counterVec("ratings_calculated_total",
		"Ratings recalculated, by outcome (calculated or pending)", "outcome")
	m.potentialAssessments = m.counter("potential_assessments_total",
		"Potential assessments recorded")
	m.classifications = m.counterVec("ninebox_classifications_total",
		"Nine-box classifications written, by position", "position")
	m.recalculationDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "cycle_recalculation_duration_seconds",
		Help:        "Duration of whole-cycle recalculations",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	})

	m.adjustments = m.counterVec("calibration_adjustments_total",
		"Calibration log entries appended, by kind", "kind")
	m.sessionTransitions = m.counterVec("session_transitions_total",
		"Accepted calibration session events", "event")
	m.artifactsGenerated = m.counter("audit_artifacts_generated_total",
		"Audit artifacts generated")
	m.artifactVerifications = m.counterVec("audit_artifact_verifications_total",
		"Audit artifact verifications, by result", "result")
	m.idempotentReplays = m.counter("idempotent_replays_total",
		"Submissions answered from the idempotency cache")

	m.workerActive = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "worker_active",
		Help:        "Worker pool tasks currently running",
		ConstLabels: m.customLabels,
	})
	m.workerTasks = m.counterVec("worker_tasks_total",
		"Worker pool tasks finished, by status", "status")

	m.storeTransactions = m.counterVec("store_transactions_total",
		"Store transactions, by store and outcome", "store", "outcome")
	m.storeTxDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "store_transaction_duration_seconds",
		Help:        "Store transaction duration",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"store"})

	m.httpRequests = m.counterVec("http_requests_total",
		"HTTP requests, by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_seconds",
		Help:        "HTTP request duration",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_total",
		"Errors, by component and type", "component", "error_type")
}

// RecordRatingCalculated counts a recalculation outcome.
func (m *Manager) RecordRatingCalculated(outcome string) {
	m.ratingsCalculated.WithLabelValues(outcome).Inc()
}

// RecordPotentialAssessment counts a potential assessment.
func (m *Manager) RecordPotentialAssessment() { m.potentialAssessments.Inc() }

// RecordClassification counts a nine-box position written to a rating.
func (m *Manager) RecordClassification(position string) {
	m.classifications.WithLabelValues(position).Inc()
}

// RecordRecalculationDuration observes a whole-cycle recalculation.
func (m *Manager) RecordRecalculationDuration(seconds float64) {
	m.recalculationDuration.Observe(seconds)
}

// RecordAdjustment counts an appended calibration entry.
func (m *Manager) RecordAdjustment(kind string) {
	m.adjustments.WithLabelValues(kind).Inc()
}

// RecordSessionTransition counts an accepted session event.
func (m *Manager) RecordSessionTransition(event string) {
	m.sessionTransitions.WithLabelValues(event).Inc()
}

// RecordArtifactGenerated counts a generated artifact.
func (m *Manager) RecordArtifactGenerated() { m.artifactsGenerated.Inc() }

// RecordArtifactVerification counts a verification by result.
func (m *Manager) RecordArtifactVerification(result string) {
	m.artifactVerifications.WithLabelValues(result).Inc()
}

// RecordIdempotentReplay counts a replayed submission.
func (m *Manager) RecordIdempotentReplay() { m.idempotentReplays.Inc() }

// AddWorkerActive moves the running-task gauge by delta.
func (m *Manager) AddWorkerActive(delta int) { m.workerActive.Add(float64(delta)) }

// RecordWorkerTask counts a finished pool task.
func (m *Manager) RecordWorkerTask(status string) {
	m.workerTasks.WithLabelValues(status).Inc()
}

// RecordStoreTransaction counts a transaction and observes its duration.
func (m *Manager) RecordStoreTransaction(store, outcome string, seconds float64) {
	m.storeTransactions.WithLabelValues(store, outcome).Inc()
	m.storeTxDuration.WithLabelValues(store).Observe(seconds)
}

// RecordHTTPRequest counts a request.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string) {
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes a request duration.
func (m *Manager) RecordHTTPRequestDuration(endpoint, method, statusCode string, seconds float64) {
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(seconds)
}

// RecordErrorByComponent counts an error.
func (m *Manager) RecordErrorByComponent(component, errorType string) {
	m.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// Package-level helpers record on the global manager.

// RecordRatingCalculated counts a recalculation outcome.
func RecordRatingCalculated(outcome string) { globalManager.RecordRatingCalculated(outcome) }

// RecordPotentialAssessment counts a potential assessment.
func RecordPotentialAssessment() { globalManager.RecordPotentialAssessment() }

// RecordClassification counts a nine-box position written to a rating.
func RecordClassification(position string) { globalManager.RecordClassification(position) }

// RecordRecalculationDuration observes a whole-cycle recalculation.
func RecordRecalculationDuration(seconds float64) {
	globalManager.RecordRecalculationDuration(seconds)
}

// RecordAdjustment counts an appended calibration entry.
func RecordAdjustment(kind string) { globalManager.RecordAdjustment(kind) }

// RecordSessionTransition counts an accepted session event.
func RecordSessionTransition(event string) { globalManager.RecordSessionTransition(event) }

// RecordArtifactGenerated counts a generated artifact.
func RecordArtifactGenerated() { globalManager.RecordArtifactGenerated() }

// RecordArtifactVerification counts a verification by result.
func RecordArtifactVerification(result string) { globalManager.RecordArtifactVerification(result) }

// RecordIdempotentReplay counts a replayed submission.
func RecordIdempotentReplay() { globalManager.RecordIdempotentReplay() }

// AddWorkerActive moves the running-task gauge by delta.
func AddWorkerActive(delta int) { globalManager.AddWorkerActive(delta) }

// RecordWorkerTask counts a finished pool task.
func RecordWorkerTask(status string) { globalManager.RecordWorkerTask(status) }

// RecordStoreTransaction counts a transaction and observes its duration.
func RecordStoreTransaction(store, outcome string, seconds float64) {
	globalManager.RecordStoreTransaction(store, outcome, seconds)
}

// RecordHTTPRequest counts a request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode)
}

// RecordHTTPRequestDuration observes a request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, seconds float64) {
	globalManager.RecordHTTPRequestDuration(endpoint, method, statusCode, seconds)
}

// RecordErrorByComponent counts an error.
func RecordErrorByComponent(component, errorType string) {
	globalManager.RecordErrorByComponent(component, errorType)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
