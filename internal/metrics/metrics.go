// Package metrics provides Prometheus instrumentation for the benchmark
// driver.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OpsTotal counts dispatched operations, partitioned by command and outcome.
	OpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerbench_ops_total",
		Help: "Total operations dispatched to workers",
	}, []string{"command", "status"})

	// OpLatency tracks worker-reported execution latency per command.
	OpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledgerbench_op_latency_seconds",
		Help:    "Worker-side operation execution latency in seconds",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"command"})

	// RoundTripLatency tracks driver-side dispatch-to-response latency.
	RoundTripLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledgerbench_round_trip_seconds",
		Help:    "Driver-side request round-trip latency in seconds",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"command"})

	// ConnectedWorkers tracks live worker connections.
	ConnectedWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgerbench_connected_workers",
		Help: "Number of connected worker processes",
	})

	// CacheRefreshes counts amount-cache refresh passes (materialized only).
	CacheRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledgerbench_cache_refreshes_total",
		Help: "Amount cache refresh passes completed",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
