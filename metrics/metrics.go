package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation counters and histograms count calls made by the current process
// only. The ledger gauges reflect the last observed state.
var (
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "treasury_build_info",
			Help: "Build information of the treasury",
		},
		[]string{"version", "commit", "date"},
	)

	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_operations_total",
			Help: "Total number of ledger operations",
		},
		[]string{"stream", "operation", "status"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "treasury_operation_duration_seconds",
			Help:    "Duration of ledger operations including persistence",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"stream", "operation"},
	)

	AllocatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_allocated_total",
			Help: "Total amount allocated to shares",
		},
		[]string{"stream"},
	)

	PaidTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_paid_total",
			Help: "Total amount paid out to accounts",
		},
		[]string{"stream"},
	)

	TotalBps = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "treasury_total_bps",
			Help: "Sum of basis points held by active accounts",
		},
		[]string{"stream"},
	)

	Checkpoints = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "treasury_checkpoints",
			Help: "Number of checkpoints in the ledger log",
		},
		[]string{"stream"},
	)

	Outstanding = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "treasury_outstanding",
			Help: "Amount earmarked for shares and not yet paid out",
		},
		[]string{"stream"},
	)
)

// ObserveLedger sets the per-stream ledger gauges.
func ObserveLedger(stream string, totalBps uint16, checkpoints int, outstanding float64) {
	TotalBps.WithLabelValues(stream).Set(float64(totalBps))
	Checkpoints.WithLabelValues(stream).Set(float64(checkpoints))
	Outstanding.WithLabelValues(stream).Set(outstanding)
}
