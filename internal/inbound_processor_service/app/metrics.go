package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	natsFeedMessagesReceivedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inbound_processor",
			Name:      "nats_messages_received_total",
			Help:      "Total number of NATS messages received on the feed subject.",
		},
		[]string{"subject"},
	)

	feedEventsProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inbound_processor",
			Name:      "feed_events_processed_total",
			Help:      "Total number of feed events processed.",
		},
		[]string{"kind", "status"}, // status: "stored", "duplicate", "empty", "error_db_save"
	)

	feedEventProcessingDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "inbound_processor",
			Name:      "feed_event_processing_duration_seconds",
			Help:      "Duration of feed event processing including the fast-path route.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	routeOutcomesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inbound_processor",
			Name:      "route_outcomes_total",
			Help:      "Total number of routing attempts by outcome.",
		},
		[]string{"outcome"}, // "routed", "unassigned", "discarded", "error"
	)

	sideEffectFailuresCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inbound_processor",
			Name:      "side_effect_failures_total",
			Help:      "Total number of failed best-effort side effects.",
		},
		[]string{"effect"}, // "notify", "notify_dropped", "delete_source"
	)

	sweepCyclesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inbound_processor",
			Name:      "sweep_cycles_total",
			Help:      "Total number of sweeper cycles by status.",
		},
		[]string{"status"}, // "ok", "error"
	)

	sweepDeletedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inbound_processor",
			Name:      "sweep_deleted_messages_total",
			Help:      "Total number of messages removed by retention.",
		},
		[]string{"reason"}, // "terminal", "stale_pending"
	)

	refreshesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "inbound_processor",
			Name:      "tenant_refreshes_total",
			Help:      "Total number of tenant-triggered refreshes by status.",
		},
		[]string{"status"}, // "ok", "error"
	)
)
