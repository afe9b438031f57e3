// metrics.go - Prometheus instrumentation for the relay path.

package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flexanon",
		Subsystem: "relay",
		Name:      "commits_total",
		Help:      "Relay commit requests by terminal outcome.",
	}, []string{"outcome"})

	commitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "flexanon",
		Subsystem: "relay",
		Name:      "commit_duration_seconds",
		Help:      "End-to-end duration of relay commit requests.",
		Buckets:   prometheus.DefBuckets,
	})

	// RelayerBalance is set by whoever polls the oracle for the relayer's
	// balance, typically the daemon's health loop.
	RelayerBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "flexanon",
		Subsystem: "relay",
		Name:      "relayer_balance",
		Help:      "Current relayer balance in base units.",
	})
)
