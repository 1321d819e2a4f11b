// Package metrics exposes the Prometheus instruments shared by the proxy.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCCalls counts on-chain read calls by chain, method and outcome.
	RPCCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dexdash",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "On-chain read calls issued through the provider pool.",
	}, []string{"chain", "method", "outcome"})

	// RPCDuration tracks on-chain read call latency.
	RPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dexdash",
		Subsystem: "rpc",
		Name:      "call_duration_seconds",
		Help:      "Latency of on-chain read calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"chain", "method"})

	// UpstreamCalls counts DEX aggregator API requests by endpoint and outcome.
	UpstreamCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dexdash",
		Subsystem: "upstream",
		Name:      "calls_total",
		Help:      "DEX aggregator API requests.",
	}, []string{"endpoint", "outcome"})

	// PriceUpdates counts price feed updates accepted into the store.
	PriceUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dexdash",
		Subsystem: "pricefeed",
		Name:      "updates_total",
		Help:      "Price updates written to the live price store.",
	})

	// SwapsStarted counts swap executions by terminal outcome; "pending" is
	// incremented at start and the terminal label on confirmation.
	SwapsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dexdash",
		Subsystem: "swap",
		Name:      "transactions_total",
		Help:      "Swap transactions by state transition.",
	}, []string{"state"})
)

// ObserveRPC records one provider pool call.
func ObserveRPC(chain, method string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	RPCCalls.WithLabelValues(chain, method, outcome).Inc()
	RPCDuration.WithLabelValues(chain, method).Observe(time.Since(start).Seconds())
}
