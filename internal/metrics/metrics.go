// Package metrics defines all Prometheus metrics for leasectl.
// All metrics use the "leasectl_" prefix.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "leasectl"

// --- DHCP Packet Metrics ---

var (
	// PacketsSent counts DHCP packets sent by message type.
	PacketsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_sent_total",
		Help:      "Total DHCP packets sent, by message type.",
	}, []string{"msg_type"})

	// PacketsReceived counts DHCP replies accepted by message type.
	PacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_received_total",
		Help:      "Total DHCP replies accepted, by message type.",
	}, []string{"msg_type"})

	// PacketsDiscarded counts received datagrams that were ignored.
	PacketsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_discarded_total",
		Help:      "Total received datagrams discarded, by reason (malformed, xid_mismatch, unexpected_type, missing_server_id).",
	}, []string{"reason"})
)

// --- Lease Attempt Metrics ---

var (
	// LeaseAttempts counts DORA attempts by outcome.
	LeaseAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lease_attempts_total",
		Help:      "Total lease attempts, by outcome (success, nak, timeout, failed).",
	}, []string{"outcome"})

	// LeaseAttemptDuration tracks the wall time of one DORA pass.
	LeaseAttemptDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "lease_attempt_duration_seconds",
		Help:      "Lease attempt duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 20.0},
	})

	// BindFailures counts failures to acquire the client port.
	BindFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bind_failures_total",
		Help:      "Total failures to bind the DHCP client port.",
	})

	// Releases counts RELEASE messages by result.
	Releases = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "releases_total",
		Help:      "Total lease releases, by result.",
	}, []string{"result"})
)

// --- Task Registry Metrics ---

var (
	// TasksActive is a gauge of lease tasks still running.
	TasksActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tasks_active",
		Help:      "Number of lease tasks currently running.",
	})

	// TasksTracked is a gauge of tasks held by the registry.
	TasksTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "tasks_tracked",
		Help:      "Number of tasks held by the registry, running or completed.",
	})

	// TasksEvicted counts completed tasks removed after their grace period.
	TasksEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_evicted_total",
		Help:      "Total completed tasks evicted from the registry.",
	})
)

// --- Event Bus Metrics ---

var (
	// EventsPublished counts events published to the bus.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Total events published to the event bus.",
	}, []string{"event_type"})

	// EventBufferDrops counts events dropped due to full buffer.
	EventBufferDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_buffer_drops_total",
		Help:      "Total events dropped due to full event bus buffer.",
	})

	// HookExecutions counts webhook deliveries by result.
	HookExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "hook_executions_total",
		Help:      "Total hook executions.",
	}, []string{"hook_type", "result"})

	// HookDuration tracks hook execution latency.
	HookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "hook_execution_duration_seconds",
		Help:      "Hook execution duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0},
	}, []string{"hook_type"})
)

// --- API Metrics ---

var (
	// APIRequests counts HTTP API requests by method, path, and status.
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "Total HTTP API requests.",
	}, []string{"method", "path", "status"})

	// APIRequestDuration tracks API request latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "HTTP API request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// --- Process Info ---

var (
	// BuildInfo is a constant gauge with build metadata.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build and version info.",
	}, []string{"version"})

	// StartTime tracks daemon start time as a unix timestamp.
	StartTime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "start_time_seconds",
		Help:      "Daemon start time as Unix timestamp.",
	})
)
