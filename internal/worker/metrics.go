package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_auto_confirm_sweeps_total",
			Help: "Auto-confirmation sweeps by result",
		},
		[]string{"result"},
	)

	autoConfirmedOrders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_auto_confirmed_orders_total",
			Help: "Orders handled by the auto-confirmation sweep by outcome",
		},
		[]string{"outcome"},
	)
)
