package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Polling cycles by outcome: ok, no_results, skipped, auth, network, timeout, protocol
	IngestCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_cycles_total",
			Help: "Total number of mailbox polling cycles by outcome",
		},
		[]string{"result"},
	)

	IngestCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_cycle_duration_seconds",
			Help:    "Duration of mailbox polling cycles in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
	)

	// Emails by status: stored, persist_failed, broadcast_failed, dropped
	EmailProcessedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_processed_count",
			Help: "Total number of emails processed",
		},
		[]string{"status"},
	)

	PendingEmails = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_pending_emails",
			Help: "Parsed emails waiting for a persistence retry",
		},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "liveness_active_sessions",
			Help: "Number of registered real-time sessions",
		},
	)

	EvictedSessions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "liveness_evicted_sessions_total",
			Help: "Sessions evicted for missing heartbeat acknowledgements",
		},
	)

	// Events sent to sessions by event name and result: ok, failed
	BroadcastEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_events_total",
			Help: "Events written to real-time sessions",
		},
		[]string{"event", "result"},
	)
)

// RecordCycle records the outcome and duration of a polling cycle
func RecordCycle(result string, duration time.Duration) {
	IngestCycles.WithLabelValues(result).Inc()
	IngestCycleDuration.Observe(duration.Seconds())
}

// IncrementEmailProcessed increments the processed email counter
func IncrementEmailProcessed(status string) {
	EmailProcessedCount.WithLabelValues(status).Inc()
}

// RecordDBQueryDuration records a database query latency
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordHTTPRequestDuration records an HTTP request latency
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordBroadcast counts one event write to one session
func RecordBroadcast(event string, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	BroadcastEvents.WithLabelValues(event, result).Inc()
}
