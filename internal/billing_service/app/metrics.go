package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messageCreditsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "message_credits_total",
			Help:      "Total number of per-message credit attempts by outcome.",
		},
		[]string{"outcome"}, // "credited", "already_credited", "error"
	)

	revenueCreditedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "revenue_credited_total",
			Help:      "Sum of revenue credited to tenants, in account currency.",
		},
	)

	withdrawalsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "billing",
			Name:      "withdrawals_total",
			Help:      "Total number of withdrawal approvals by outcome.",
		},
		[]string{"outcome"}, // "approved", "below_minimum", "insufficient_balance", "error"
	)
)
