package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	settingsUpdatesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settings",
			Name:      "updates_total",
			Help:      "Total number of runtime settings updates by status.",
		},
		[]string{"status"}, // "applied", "invalid", "error"
	)

	allocationEnabledGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "settings",
			Name:      "allocation_enabled",
			Help:      "1 while tenants may allocate numbers, 0 during maintenance.",
		},
	)
)
