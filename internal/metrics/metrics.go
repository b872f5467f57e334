package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Task metrics
	TasksStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_tasks_started_total",
			Help: "Total number of tasks started",
		},
		[]string{"queue"},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_tasks_completed_total",
			Help: "Total number of tasks that reached a terminal status",
		},
		[]string{"queue", "status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskflow_task_duration_seconds",
			Help:    "Task run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16), // 1s to ~18h
		},
		[]string{"queue"},
	)

	TaskRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_task_retries_total",
			Help: "Total number of task retries",
		},
		[]string{"queue"},
	)

	// Queue metrics
	QueuePendingDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskflow_queue_pending_depth",
			Help: "Current number of pending tasks in a queue",
		},
		[]string{"queue"},
	)

	QueueAutoRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskflow_queue_auto_running",
			Help: "1 if a queue's auto-dispatcher is on, 0 otherwise",
		},
		[]string{"queue"},
	)

	// Device metrics
	DevicesBusy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskflow_devices_busy",
			Help: "Current number of GPU devices reserved by a running task",
		},
	)

	DeviceConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_device_conflicts_total",
			Help: "Total number of device reservation conflicts across queues",
		},
		[]string{"queue"},
	)

	// Notification metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_notifications_sent_total",
			Help: "Total number of push notifications sent, by outcome",
		},
		[]string{"outcome"},
	)

	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskflow_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskflow_websocket_connections",
			Help: "Current number of open WebSocket connections",
		},
		[]string{"stream"},
	)

	WebSocketMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskflow_websocket_messages_total",
			Help: "Total number of WebSocket frames sent",
		},
		[]string{"stream", "type"},
	)
)

// RecordTaskStart records a task dispatch.
func RecordTaskStart(queue string) {
	TasksStarted.WithLabelValues(queue).Inc()
}

// RecordTaskCompletion records a terminal transition and its duration.
func RecordTaskCompletion(queue, status string, duration float64) {
	TasksCompleted.WithLabelValues(queue, status).Inc()
	TaskDuration.WithLabelValues(queue).Observe(duration)
}

// RecordTaskRetry records a task retry.
func RecordTaskRetry(queue string) {
	TaskRetries.WithLabelValues(queue).Inc()
}

// UpdateQueuePendingDepth updates the pending-count gauge for a queue.
func UpdateQueuePendingDepth(queue string, depth float64) {
	QueuePendingDepth.WithLabelValues(queue).Set(depth)
}

// SetQueueAutoRunning reflects a queue's auto-dispatch flag.
func SetQueueAutoRunning(queue string, on bool) {
	v := 0.0
	if on {
		v = 1.0
	}
	QueueAutoRunning.WithLabelValues(queue).Set(v)
}

// SetDevicesBusy sets the global reserved-device count gauge.
func SetDevicesBusy(count float64) {
	DevicesBusy.Set(count)
}

// RecordDeviceConflict records a cross-queue device reservation conflict.
func RecordDeviceConflict(queue string) {
	DeviceConflicts.WithLabelValues(queue).Inc()
}

// RecordNotification records the outcome of a push-notification attempt.
func RecordNotification(outcome string) {
	NotificationsSent.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// SetWebSocketConnections sets the connection-count gauge for a stream kind.
func SetWebSocketConnections(stream string, count float64) {
	WebSocketConnections.WithLabelValues(stream).Set(count)
}

// RecordWebSocketMessage records a WebSocket frame send.
func RecordWebSocketMessage(stream, msgType string) {
	WebSocketMessages.WithLabelValues(stream, msgType).Inc()
}
