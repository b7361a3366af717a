package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Inbound events by kind: message, deleted, edited
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_total",
			Help: "Total inbound events dispatched",
		},
		[]string{"kind"},
	)

	PipelineResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_pipeline_results_total",
			Help: "Replication pipeline outcomes",
		},
		[]string{"result"},
	)

	// Per-destination operations: send, edit, delete
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Per-destination operations",
		},
		[]string{"op", "result"}, // ok, fallback, failed, skipped
	)

	Deletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deletions_total",
			Help: "Deleted source messages by outcome",
		},
		[]string{"result"}, // deleted, not_found, error
	)

	StoreRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_store_retries_total",
			Help: "Identity store operations retried after lock contention",
		},
	)

	GateActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_gate_active",
			Help: "1 when replication is allowed by the schedule",
		},
	)

	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_handler_duration_seconds",
			Help:    "Event handler duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)
)

// SetGate records the gate state
func SetGate(active bool) {
	if active {
		GateActive.Set(1)
		return
	}
	GateActive.Set(0)
}
