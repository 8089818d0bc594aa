// Package metrics provides Prometheus metrics for the gest daemon.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for gest.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Recognition metrics
	framesProcessed   prometheus.Counter
	samplesProcessed  prometheus.Counter
	motionEvents      *prometheus.CounterVec
	liveCandidates    prometheus.Gauge
	gesturesCompleted *prometheus.CounterVec
	candidatesExpired prometheus.Counter

	// Environment metrics
	windowChanges    prometheus.Counter
	configReloads    *prometheus.CounterVec
	configGeneration prometheus.Gauge

	// Dispatch metrics
	dispatchEnqueued    prometheus.Counter
	dispatchDropped     prometheus.Counter
	commandsStarted     prometheus.Counter
	commandFailures     *prometheus.CounterVec
	commandSpawnLatency prometheus.Histogram

	// Queue metrics
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker metrics
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Latency histograms observe milliseconds.
var latencyBucketsMs = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250} //nolint:gochecknoglobals // constant bucket layout

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(
		WithNamespace("gest"),
		WithSubsystem("engine"),
		WithHistogramBuckets(latencyBucketsMs),
		WithPrometheusRegistry(customRegistry),
	)
}

// NewManager creates a metrics manager. Without options metrics carry no
// prefix, use the Prometheus default buckets and register on the default
// registerer.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		histogramBuckets: prometheus.DefBuckets,
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
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	// Recognition
	m.framesProcessed = m.counter("frames_processed_total", "Total number of touch frames processed")
	m.samplesProcessed = m.counter("samples_processed_total", "Total number of per-finger samples processed")
	m.motionEvents = m.counterVec("motion_events_total", "Total number of motion events emitted by the normalizer", "kind")
	m.liveCandidates = m.gauge("live_candidates", "Number of partially matched gesture candidates")
	m.gesturesCompleted = m.counterVec("gestures_completed_total", "Total number of recognized gestures", "repeat")
	m.candidatesExpired = m.counter("candidates_expired_total", "Total number of candidates discarded by the step timeout")

	// Environment
	m.windowChanges = m.counter("window_changes_total", "Total number of focused window changes")
	m.configReloads = m.counterVec("config_reloads_total", "Total number of configuration reloads", "result")
	m.configGeneration = m.gauge("config_generation", "Generation of the active gesture configuration")

	// Dispatch
	m.dispatchEnqueued = m.counter("dispatch_enqueued_total", "Total number of commands queued for execution")
	m.dispatchDropped = m.counter("dispatch_dropped_total", "Total number of commands dropped because the queue was full")
	m.commandsStarted = m.counter("commands_started_total", "Total number of commands spawned")
	m.commandFailures = m.counterVec("command_failures_total", "Total number of command failures", "reason")
	m.commandSpawnLatency = m.histogram("command_spawn_latency_milliseconds", "Time from completion to process start in milliseconds", m.histogramBuckets)

	// Queue
	m.queueSize = m.gauge("queue_size", "Current number of jobs waiting in the dispatch queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Queue processing latency in milliseconds", m.histogramBuckets)

	// Worker
	m.workerCount = m.gauge("worker_count", "Configured number of dispatch workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of active workers")
	m.workerIdleCount = m.gauge("worker_idle_count", "Number of idle workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds", m.histogramBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker errors")

	// HTTP
	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// Errors
	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "error_latency_milliseconds",
			Help:      "Latency of operations that resulted in errors",
			Buckets:   m.histogramBuckets,
		},
		[]string{"component", "error_type"},
	)

	// System
	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordFrameProcessed counts one frame and its samples.
func RecordFrameProcessed(samples int) {
	globalManager.framesProcessed.Inc()
	globalManager.samplesProcessed.Add(float64(samples))
}

// RecordMotionEvent counts a normalizer output by kind.
func RecordMotionEvent(kind string) {
	globalManager.motionEvents.WithLabelValues(kind).Inc()
}

// UpdateLiveCandidates sets the number of live candidates.
func UpdateLiveCandidates(count int) {
	globalManager.liveCandidates.Set(float64(count))
}

// RecordGestureCompleted counts a recognized gesture.
func RecordGestureCompleted(repeat bool) {
	globalManager.gesturesCompleted.WithLabelValues(strconv.FormatBool(repeat)).Inc()
}

// RecordCandidatesExpired counts candidates dropped by the step timeout.
func RecordCandidatesExpired(count int) {
	globalManager.candidatesExpired.Add(float64(count))
}

// RecordWindowChange counts a focused window change.
func RecordWindowChange() {
	globalManager.windowChanges.Inc()
}

// RecordConfigReload counts a reload attempt; result is "ok" or "error".
func RecordConfigReload(result string) {
	globalManager.configReloads.WithLabelValues(result).Inc()
}

// UpdateConfigGeneration sets the active configuration generation.
func UpdateConfigGeneration(generation uint64) {
	globalManager.configGeneration.Set(float64(generation))
}

// RecordDispatchEnqueued counts a command handed to the queue.
func RecordDispatchEnqueued() {
	globalManager.dispatchEnqueued.Inc()
}

// RecordDispatchDropped counts a command dropped on a full queue.
func RecordDispatchDropped() {
	globalManager.dispatchDropped.Inc()
}

// RecordCommandStarted counts a spawned command.
func RecordCommandStarted() {
	globalManager.commandsStarted.Inc()
}

// RecordCommandFailure counts a command failure by reason ("spawn", "exit").
func RecordCommandFailure(reason string) {
	globalManager.commandFailures.WithLabelValues(reason).Inc()
}

// RecordCommandSpawnLatency records completion-to-spawn latency in milliseconds.
func RecordCommandSpawnLatency(latencyMs float64) {
	globalManager.commandSpawnLatency.Observe(latencyMs)
}

// UpdateQueueSize updates the current queue size gauge.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity updates the queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization updates the queue utilization ratio gauge.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the queue enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the queue dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the queue enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency in milliseconds.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount updates the configured worker count gauge.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount updates the active worker count gauge.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount updates the idle worker count gauge.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency in milliseconds.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent increments the error counter for a specific component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType increments the error counter for a specific error type.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint increments the error counter for a specific endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of operations that resulted in errors.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// UpdateSystemMemoryUsage updates the system memory usage gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount updates the goroutine count gauge.
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
