package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	allocationRequestsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "number_pool",
			Name:      "allocation_requests_total",
			Help:      "Total number of allocation requests by outcome.",
		},
		[]string{"country_code", "outcome"}, // outcome: "allocated", "partial", "exhausted", "at_capacity", "rate_limited", "disabled", "error"
	)

	numbersLeasedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "number_pool",
			Name:      "numbers_leased_total",
			Help:      "Total number of leases created.",
		},
		[]string{"country_code"},
	)

	releasesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "number_pool",
			Name:      "releases_total",
			Help:      "Total number of lease releases by mode.",
		},
		[]string{"mode"}, // "soft", "hard"
	)

	allocationDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "number_pool",
			Name:      "allocation_duration_seconds",
			Help:      "Duration of allocation requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"country_code"},
	)

	rateLimitRejectionsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "number_pool",
			Name:      "rate_limit_rejections_total",
			Help:      "Total number of allocation attempts rejected by the rate limiter.",
		},
	)

	reconcileRunsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "number_pool",
			Name:      "reconcile_runs_total",
			Help:      "Total number of country aggregate reconciliation passes.",
		},
		[]string{"status"},
	)

	countryAvailableGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "number_pool",
			Name:      "country_available_numbers",
			Help:      "Unleased numbers per country as of the last reconciliation.",
		},
		[]string{"country_code"},
	)
)
