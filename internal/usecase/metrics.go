package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bidsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_bids_total",
			Help: "Bid attempts by outcome",
		},
		[]string{"outcome"},
	)

	settlementOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_settlement_operations_total",
			Help: "Settlement phase invocations by outcome",
		},
		[]string{"phase", "outcome"},
	)

	settlementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auction_settlement_duration_seconds",
			Help:    "Duration of settlement phases including lock wait",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"phase"},
	)
)

const (
	phaseHold    = "hold"
	phaseRelease = "release"
	phaseRefund  = "refund"
)

// outcomeLabel collapses an error into a low-cardinality metric label.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isContention(err):
		return "contended"
	case isBusiness(err):
		return "rejected"
	default:
		return "error"
	}
}
