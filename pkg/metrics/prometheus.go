// Package metrics provides Prometheus metrics for the tier ranking service.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace       string
	subsystem       string
	refreshInterval time.Duration
	registry        prometheus.Registerer

	// Ranking sessions
	sessionsStarted        prometheus.Counter
	sessionsEnded          *prometheus.CounterVec
	activeSessions         prometheus.Gauge
	comparisons            *prometheus.CounterVec
	comparisonsPerSession  prometheus.Histogram
	choicesDuplicate       prometheus.Counter
	predictions            prometheus.Counter
	reclassifyChanges      prometheus.Counter
	reclassifyRuns         *prometheus.CounterVec
	rankedItems            prometheus.Gauge
	rankedUsers            prometheus.Gauge
	repositoryOpLatency    *prometheus.HistogramVec
	repositorySnapshotSize prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager. Metrics are registered on the
// configured registry, so each manager needs its own registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       "marquee",
		subsystem:       "tierlist",
		refreshInterval: defaultRefreshInterval,
		registry:        prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.sessionsStarted = m.counter("sessions_started_total", "Insertion sessions started")
	m.sessionsEnded = m.counterVec("sessions_ended_total", "Insertion sessions ended by outcome", "outcome")
	m.activeSessions = m.gauge("sessions_active", "Insertion sessions currently open")
	m.comparisons = m.counterVec("comparisons_total", "Answered comparisons by phase", "phase")
	m.comparisonsPerSession = m.histogram("comparisons_per_session", "Comparisons asked before a placement",
		[]float64{0, 1, 2, 3, 4, 5, 6, 8, 10, 15, 20})
	m.choicesDuplicate = m.counter("choices_duplicate_total", "Choices ignored because the request id was already seen")
	m.predictions = m.counter("predictions_total", "Score predictions served")
	m.reclassifyChanges = m.counter("reclassify_changes_total", "Tier migrations applied by reclassification")
	m.reclassifyRuns = m.counterVec("reclassify_runs_total", "Reclassification runs by trigger", "trigger")
	m.rankedItems = m.gauge("ranked_items", "Items ranked across all users")
	m.rankedUsers = m.gauge("ranked_users", "Users with at least one ranked item")
	m.repositoryOpLatency = m.histogramVec("repository_op_latency_milliseconds", "Ranking store operation latency",
		LatencyBucketsMs, "op")
	m.repositorySnapshotSize = m.histogram("repository_snapshot_items", "Items per user snapshot",
		[]float64{0, 10, 20, 50, 100, 250, 500, 1000, 2500})

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		LatencyBucketsMs, "endpoint", "method", "status_code")

	m.queueSize = m.gauge("queue_size", "Reclassification jobs waiting")
	m.queueCapacity = m.gauge("queue_capacity", "Reclassification queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue size over capacity")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Jobs rejected by the queue")

	m.workerActiveCount = m.gauge("worker_active_count", "Reclassification workers running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Time to process one job",
		LatencyBucketsMs)
	m.workerErrorRate = m.counter("worker_errors_total", "Jobs that failed")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// RecordSessionStarted increments the started sessions counter.
func RecordSessionStarted() {
	globalManager.sessionsStarted.Inc()
}

// RecordSessionEnded records how a session ended (completed, skipped,
// abandoned, expired) and, for placements, how many comparisons it took.
func RecordSessionEnded(outcome string, comparisons int) {
	globalManager.sessionsEnded.WithLabelValues(outcome).Inc()
	if comparisons >= 0 {
		globalManager.comparisonsPerSession.Observe(float64(comparisons))
	}
}

// UpdateActiveSessions sets the open sessions gauge.
func UpdateActiveSessions(n int) {
	globalManager.activeSessions.Set(float64(n))
}

// RecordComparison counts one answered comparison in phase.
func RecordComparison(phase string) {
	globalManager.comparisons.WithLabelValues(phase).Inc()
}

// RecordChoiceDuplicate counts a choice dropped as a repeat.
func RecordChoiceDuplicate() {
	globalManager.choicesDuplicate.Inc()
}

// RecordPrediction counts a served prediction.
func RecordPrediction() {
	globalManager.predictions.Inc()
}

// RecordReclassifyRun counts a reclassification run and the changes it applied.
func RecordReclassifyRun(trigger string, applied int) {
	globalManager.reclassifyRuns.WithLabelValues(trigger).Inc()
	globalManager.reclassifyChanges.Add(float64(applied))
}

// UpdateRankedItems sets the total ranked items gauge.
func UpdateRankedItems(n int) {
	globalManager.rankedItems.Set(float64(n))
}

// UpdateRankedUsers sets the ranked users gauge.
func UpdateRankedUsers(n int) {
	globalManager.rankedUsers.Set(float64(n))
}

// RecordRepositoryOp records a store operation latency in milliseconds.
func RecordRepositoryOp(op string, latencyMs float64) {
	globalManager.repositoryOpLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordRepositorySnapshot records the size of a user snapshot.
func RecordRepositorySnapshot(items int) {
	globalManager.repositorySnapshotSize.Observe(float64(items))
}

// RecordHTTPRequest increments the HTTP requests counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateQueueSize updates the queue size gauge.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity updates the queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization updates the queue utilization gauge.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerActiveCount updates the active worker gauge.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records job processing latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordErrorByComponent increments the error counter for a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint increments the error counter for an endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage updates the memory gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount updates the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// CollectRuntime refreshes the system gauges until ctx is done.
func CollectRuntime(ctx context.Context) {
	globalManager.collectRuntime(ctx)
}

func (m *Manager) collectRuntime(ctx context.Context) {
	ticker := time.NewTicker(m.refreshInterval)
	defer ticker.Stop()

	var ms runtime.MemStats
	for {
		runtime.ReadMemStats(&ms)
		m.systemMemoryUsage.Set(float64(ms.HeapInuse))
		m.systemGoroutineCount.Set(float64(runtime.NumGoroutine()))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
