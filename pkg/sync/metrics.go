package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for monitoring the sync engine.
var (
	// opsProcessed tracks drained operations by outcome and kind.
	// Labels:
	//   - status: "applied", "retry", "dropped", or "cancelled"
	//   - kind: operation kind ("create", "update", "delete")
	opsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tasksync_ops_processed_total",
		Help: "The total number of drained operations by outcome",
	}, []string{"status", "kind"})

	// passDuration tracks the latency of full sync passes (drain + reconcile).
	// Labels:
	//   - outcome: "completed" or "offline"
	passDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tasksync_pass_duration_seconds",
		Help:    "Duration of sync passes",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	// pendingOps tracks the number of queued, not-yet-acknowledged operations.
	// This is the user-visible sync-status signal: persistent sync failure
	// shows up here, not as errors on the mutating calls.
	pendingOps = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tasksync_pending_ops",
		Help: "Number of operations waiting to be acknowledged by the server",
	})

	// online reflects the last observed connectivity state (1 online, 0 offline).
	online = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tasksync_online",
		Help: "Whether the remote task service is currently reachable",
	})
)
