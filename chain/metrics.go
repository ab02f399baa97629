package chain

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type chainMetrics struct {
	blocksApplied prometheus.Counter
}

var (
	chainMetricsOnce sync.Once
	chainMetricsInst *chainMetrics
)

func blockMetrics() *chainMetrics {
	chainMetricsOnce.Do(func() {
		chainMetricsInst = &chainMetrics{
			blocksApplied: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "srishti_chain_blocks_applied_total",
				Help: "Count of blocks successfully appended to the local chain.",
			}),
		}
		prometheus.MustRegister(chainMetricsInst.blocksApplied)
	})
	return chainMetricsInst
}
