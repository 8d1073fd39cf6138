// Package metrics provides Prometheus metrics for the Cosmic Journey backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Run progression
	runsCreated      prometheus.Counter
	progressUpdates  *prometheus.CounterVec
	levelAdvances    prometheus.Counter
	rejectedMutation *prometheus.CounterVec
	runsTotal        prometheus.Gauge

	// Leaderboard
	leaderboardQueries *prometheus.CounterVec
	leaderboardLatency prometheus.Histogram

	// Item ledger
	itemPurchases *prometheus.CounterVec
	itemUses      *prometheus.CounterVec

	// Document store
	storeLatency   *prometheus.HistogramVec
	storeErrors    *prometheus.CounterVec
	storeConflicts prometheus.Counter

	// Mutation queue
	mutationQueueDepth   prometheus.Gauge
	mutationRejections   *prometheus.CounterVec
	mutationLatency      prometheus.Histogram
	mutationWorkerCount  prometheus.Gauge
	idempotencyKeysTotal prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec

	// Process
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by package-level recorders

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager. Collectors are registered on the
// configured registry, prometheus.DefaultRegisterer unless overridden.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "cosmic",
		subsystem:        "journey",
		histogramBuckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.runsCreated = m.counter("runs_created_total", "Total number of runs created")
	m.progressUpdates = m.counterVec("progress_updates_total",
		"Progress submissions by outcome (progressed, level_up, duplicate)", "outcome")
	m.levelAdvances = m.counter("level_advances_total", "Explicit level advances that succeeded")
	m.rejectedMutation = m.counterVec("run_mutations_rejected_total",
		"Run mutations rejected before any write, by operation and error kind", "operation", "kind")
	m.runsTotal = m.gauge("runs", "Number of run records in the store (refreshed periodically)")

	m.leaderboardQueries = m.counterVec("leaderboard_queries_total", "Leaderboard queries by time window", "window")
	m.leaderboardLatency = m.histogram("leaderboard_latency_milliseconds", "Leaderboard computation latency")

	m.itemPurchases = m.counterVec("item_purchases_total", "Successful item purchases", "item")
	m.itemUses = m.counterVec("item_uses_total", "Successful item uses", "item")

	m.storeLatency = m.histogramVec("store_operation_latency_milliseconds",
		"Document store call latency by operation", "operation")
	m.storeErrors = m.counterVec("store_errors_total", "Document store failures by operation and kind", "operation", "kind")
	m.storeConflicts = m.counter("store_conflicts_total", "Revision conflicts observed on conditional updates")

	m.mutationQueueDepth = m.gauge("mutation_queue_depth", "Pending mutations across all shards")
	m.mutationRejections = m.counterVec("mutation_queue_rejections_total", "Mutations refused by the queue", "reason")
	m.mutationLatency = m.histogram("mutation_latency_milliseconds", "Time from enqueue to mutation completion")
	m.mutationWorkerCount = m.gauge("mutation_workers", "Number of mutation shard workers")
	m.idempotencyKeysTotal = m.gauge("idempotency_keys", "Idempotency keys currently remembered")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration",
		"endpoint", "method", "status_code")
	m.errorsByEndpoint = m.counterVec("http_errors_total", "HTTP error responses by endpoint and error type",
		"endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
}

// RecordRunCreated counts a created run.
func RecordRunCreated() { globalManager.runsCreated.Inc() }

// RecordProgressUpdate counts a progress submission by outcome.
func RecordProgressUpdate(outcome string) {
	globalManager.progressUpdates.WithLabelValues(outcome).Inc()
}

// RecordLevelAdvance counts a successful explicit level advance.
func RecordLevelAdvance() { globalManager.levelAdvances.Inc() }

// RecordRejectedMutation counts a mutation refused before any write.
func RecordRejectedMutation(operation, kind string) {
	globalManager.rejectedMutation.WithLabelValues(operation, kind).Inc()
}

// UpdateRunsTotal sets the run count gauge.
func UpdateRunsTotal(count int) { globalManager.runsTotal.Set(float64(count)) }

// RecordLeaderboardQuery records one leaderboard computation.
func RecordLeaderboardQuery(window string, latencyMs float64) {
	globalManager.leaderboardQueries.WithLabelValues(window).Inc()
	globalManager.leaderboardLatency.Observe(latencyMs)
}

// RecordItemPurchase counts a purchase of item.
func RecordItemPurchase(item string) { globalManager.itemPurchases.WithLabelValues(item).Inc() }

// RecordItemUse counts a use of item.
func RecordItemUse(item string) { globalManager.itemUses.WithLabelValues(item).Inc() }

// RecordStoreLatency observes a document store call.
func RecordStoreLatency(operation string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordStoreError counts a failed document store call.
func RecordStoreError(operation, kind string) {
	globalManager.storeErrors.WithLabelValues(operation, kind).Inc()
}

// RecordStoreConflict counts a revision conflict.
func RecordStoreConflict() { globalManager.storeConflicts.Inc() }

// UpdateMutationQueueDepth sets the pending mutation gauge.
func UpdateMutationQueueDepth(depth int) { globalManager.mutationQueueDepth.Set(float64(depth)) }

// RecordMutationRejected counts a mutation refused by the queue.
func RecordMutationRejected(reason string) {
	globalManager.mutationRejections.WithLabelValues(reason).Inc()
}

// RecordMutationLatency observes enqueue-to-done latency.
func RecordMutationLatency(latencyMs float64) { globalManager.mutationLatency.Observe(latencyMs) }

// UpdateMutationWorkerCount sets the shard worker gauge.
func UpdateMutationWorkerCount(count int) { globalManager.mutationWorkerCount.Set(float64(count)) }

// UpdateIdempotencyKeys sets the remembered idempotency key gauge.
func UpdateIdempotencyKeys(count int64) { globalManager.idempotencyKeysTotal.Set(float64(count)) }

// RecordHTTPRequest records a served HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByEndpoint counts an HTTP error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the registry backing the package-level recorders.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
