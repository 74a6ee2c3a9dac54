// Package metrics provides Prometheus metrics for the tastegraph ranking service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the tastegraph service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Affinity Metrics - taste signal ingestion
	affinityEvents  *prometheus.CounterVec
	affinityLatency *prometheus.HistogramVec
	duelStaleScores prometheus.Counter
	eventsDuplicate prometheus.Counter

	// Queue Metrics
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker Metrics
	workerCount             prometheus.Gauge
	workerRetryCount        prometheus.Counter
	workerDropped           *prometheus.CounterVec
	workerProcessingLatency prometheus.Histogram

	// Neighbor Job Metrics
	neighborRuns        *prometheus.CounterVec
	neighborDuration    prometheus.Histogram
	neighborUsers       *prometheus.CounterVec
	neighborEdges       prometheus.Counter
	neighborLastSuccess prometheus.Gauge

	// Read Path Metrics
	feedRequests *prometheus.CounterVec
	queryLatency *prometheus.HistogramVec

	// Cache Metrics
	cacheRequests    *prometheus.CounterVec
	cacheWriteErrors prometheus.Counter
	breakerState     *prometheus.GaugeVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorRateByComponent *prometheus.CounterVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure rebuilds the package-level metrics on a fresh registry with opts.
// Call it before any handler reads GetRegistry; earlier series are discarded.
func Configure(opts ...Option) {
	customRegistry = prometheus.NewRegistry()
	globalManager = NewManager(append([]Option{WithPrometheusRegistry(customRegistry)}, opts...)...)
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tastegraph",
		subsystem:        "ranking",
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

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric family
	auto := promauto.With(m.registry)
	msBuckets := []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

	m.affinityEvents = auto.NewCounterVec(
		m.counterOpts("affinity_events_total", "Affinity events handled by type and outcome"),
		[]string{"type", "outcome"},
	)
	m.affinityLatency = auto.NewHistogramVec(
		m.histogramOpts("affinity_latency_milliseconds", "Affinity handler latency in milliseconds", msBuckets),
		[]string{"type"},
	)
	m.duelStaleScores = auto.NewCounter(
		m.counterOpts("duel_stale_scores_total", "Duels whose dispatch-time global scores differed from the store"),
	)
	m.eventsDuplicate = auto.NewCounter(
		m.counterOpts("events_duplicate_total", "Submitted events rejected as duplicates"),
	)

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the event queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum capacity of the event queue"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue utilization ratio (size / capacity)"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Events enqueued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Events rejected by the queue"))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Number of affinity workers"))
	m.workerRetryCount = auto.NewCounter(m.counterOpts("worker_retries_total", "Retries of transient affinity failures"))
	m.workerDropped = auto.NewCounterVec(
		m.counterOpts("worker_dropped_total", "Events dropped by workers by reason"),
		[]string{"reason"},
	)
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "End-to-end worker processing latency", msBuckets),
	)

	m.neighborRuns = auto.NewCounterVec(
		m.counterOpts("neighbor_job_runs_total", "Neighbor computation runs by status"),
		[]string{"status"},
	)
	m.neighborDuration = auto.NewHistogram(
		m.histogramOpts("neighbor_job_duration_seconds", "Neighbor computation run duration",
			[]float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 3600}),
	)
	m.neighborUsers = auto.NewCounterVec(
		m.counterOpts("neighbor_job_users_total", "Users visited by the neighbor job by result"),
		[]string{"result"},
	)
	m.neighborEdges = auto.NewCounter(m.counterOpts("neighbor_job_edges_total", "Neighbor edges written"))
	m.neighborLastSuccess = auto.NewGauge(
		m.gaugeOpts("neighbor_job_last_success_unix", "Unix time of the last successful neighbor run"),
	)

	m.feedRequests = auto.NewCounterVec(
		m.counterOpts("feed_requests_total", "Personalized feed requests by outcome"),
		[]string{"outcome"},
	)
	m.queryLatency = auto.NewHistogramVec(
		m.histogramOpts("query_latency_milliseconds", "Read path latency by query", msBuckets),
		[]string{"query"},
	)

	m.cacheRequests = auto.NewCounterVec(
		m.counterOpts("cache_requests_total", "Read-through cache lookups by result"),
		[]string{"result"},
	)
	m.cacheWriteErrors = auto.NewCounter(m.counterOpts("cache_write_errors_total", "Failed cache write-backs"))
	m.breakerState = auto.NewGaugeVec(
		m.gaugeOpts("breaker_state", "Circuit breaker state (0 closed, 1 half-open, 2 open)"),
		[]string{"name"},
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", nil),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
			[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}),
	)
}

// RecordAffinityEvent counts a handled affinity event.
func RecordAffinityEvent(eventType, outcome string) {
	globalManager.affinityEvents.WithLabelValues(eventType, outcome).Inc()
}

// RecordAffinityLatency records handler latency in milliseconds.
func RecordAffinityLatency(eventType string, latencyMs float64) {
	globalManager.affinityLatency.WithLabelValues(eventType).Observe(latencyMs)
}

// RecordDuelStaleScores increments the stale dispatch score counter.
func RecordDuelStaleScores() {
	globalManager.duelStaleScores.Inc()
}

// RecordEventDuplicate increments the duplicate events counter.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerRetry increments the worker retry counter.
func RecordWorkerRetry() {
	globalManager.workerRetryCount.Inc()
}

// RecordWorkerDropped counts an event a worker gave up on.
func RecordWorkerDropped(reason string) {
	globalManager.workerDropped.WithLabelValues(reason).Inc()
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordNeighborRun records one neighbor job run.
func RecordNeighborRun(status string, duration time.Duration, scanned, withEdges, failed, edges int) {
	globalManager.neighborRuns.WithLabelValues(status).Inc()
	globalManager.neighborDuration.Observe(duration.Seconds())
	globalManager.neighborUsers.WithLabelValues("scanned").Add(float64(scanned))
	globalManager.neighborUsers.WithLabelValues("with_edges").Add(float64(withEdges))
	globalManager.neighborUsers.WithLabelValues("failed").Add(float64(failed))
	globalManager.neighborEdges.Add(float64(edges))
	if status == "success" {
		globalManager.neighborLastSuccess.SetToCurrentTime()
	}
}

// RecordFeedRequest counts a feed request by outcome (ok, empty, unavailable).
func RecordFeedRequest(outcome string) {
	globalManager.feedRequests.WithLabelValues(outcome).Inc()
}

// RecordQueryLatency records read path latency for the named query.
func RecordQueryLatency(query string, latencyMs float64) {
	globalManager.queryLatency.WithLabelValues(query).Observe(latencyMs)
}

// RecordCacheResult counts a cache lookup (hit, miss, error).
func RecordCacheResult(result string) {
	globalManager.cacheRequests.WithLabelValues(result).Inc()
}

// RecordCacheWriteError increments the cache write error counter.
func RecordCacheWriteError() {
	globalManager.cacheWriteErrors.Inc()
}

// UpdateBreakerState sets the state gauge for a named breaker.
func UpdateBreakerState(name string, state int) {
	globalManager.breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
