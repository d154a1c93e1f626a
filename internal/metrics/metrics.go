package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Process metrics
	ProcessesStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliflow_processes_started_total",
			Help: "Total number of processes started",
		},
		[]string{"type"},
	)

	ProcessesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliflow_processes_completed_total",
			Help: "Total number of processes completed",
		},
		[]string{"type", "status"},
	)

	ProcessDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cliflow_process_duration_seconds",
			Help:    "Process execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 15), // 100ms to ~1.6h
		},
		[]string{"type"},
	)

	// Task metrics
	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliflow_tasks_completed_total",
			Help: "Total number of tasks completed",
		},
		[]string{"name", "status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cliflow_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		},
		[]string{"name"},
	)

	TaskRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliflow_task_retries_total",
			Help: "Total number of task retries",
		},
		[]string{"name"},
	)

	// Queue metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cliflow_queue_depth",
			Help: "Current number of due work items in the queue",
		},
	)

	QueueClaimDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cliflow_queue_claim_duration_seconds",
			Help:    "Time spent in the claim-due CAS round",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)

	QuarantinedWorkItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cliflow_quarantined_work_items",
			Help: "Current number of quarantined work items",
		},
	)

	// Worker pool metrics
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cliflow_active_workers",
			Help: "Current number of busy worker goroutines",
		},
	)

	// Reconciliation metrics
	ReconciledProcesses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cliflow_reconciled_processes_total",
			Help: "Total number of processes re-enqueued by the reconciliation sweep",
		},
	)

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cliflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Store metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cliflow_store_operation_duration_seconds",
			Help:    "Relational store operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
		[]string{"operation"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliflow_store_errors_total",
			Help: "Total number of relational store errors",
		},
		[]string{"operation"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cliflow_websocket_connections",
			Help: "Current number of WebSocket connections",
		},
	)

	WebSocketMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cliflow_websocket_messages_total",
			Help: "Total number of WebSocket messages sent",
		},
		[]string{"type"},
	)
)

// RecordProcessStart records a process start.
func RecordProcessStart(processType string) {
	ProcessesStarted.WithLabelValues(processType).Inc()
}

// RecordProcessCompletion records a process reaching a terminal status.
func RecordProcessCompletion(processType, status string, duration float64) {
	ProcessesCompleted.WithLabelValues(processType, status).Inc()
	ProcessDuration.WithLabelValues(processType).Observe(duration)
}

// RecordTaskCompletion records a task reaching a terminal status.
func RecordTaskCompletion(taskName, status string, duration float64) {
	TasksCompleted.WithLabelValues(taskName, status).Inc()
	TaskDuration.WithLabelValues(taskName).Observe(duration)
}

// RecordTaskRetry records a task retry.
func RecordTaskRetry(taskName string) {
	TaskRetries.WithLabelValues(taskName).Inc()
}

// UpdateQueueDepth updates the queue depth gauge.
func UpdateQueueDepth(depth float64) {
	QueueDepth.Set(depth)
}

// RecordQueueClaim records the duration of a claim-due CAS round.
func RecordQueueClaim(duration float64) {
	QueueClaimDuration.Observe(duration)
}

// SetQuarantinedWorkItems sets the quarantined work item gauge.
func SetQuarantinedWorkItems(count float64) {
	QuarantinedWorkItems.Set(count)
}

// SetActiveWorkers sets the active workers gauge.
func SetActiveWorkers(count float64) {
	ActiveWorkers.Set(count)
}

// RecordReconciledProcess records a process re-enqueued by the sweep.
func RecordReconciledProcess() {
	ReconciledProcesses.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordStoreOperation records a relational store operation's duration.
func RecordStoreOperation(operation string, duration float64) {
	StoreOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordStoreError records a relational store error.
func RecordStoreError(operation string) {
	StoreErrors.WithLabelValues(operation).Inc()
}

// SetWebSocketConnections sets the WebSocket connections gauge.
func SetWebSocketConnections(count float64) {
	WebSocketConnections.Set(count)
}

// RecordWebSocketMessage records a WebSocket message.
func RecordWebSocketMessage(msgType string) {
	WebSocketMessages.WithLabelValues(msgType).Inc()
}
