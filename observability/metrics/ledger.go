// Package metrics exposes srishti's process-level Prometheus metrics: chain
// growth, peer connectivity, app-index replay lag, and export run outcomes.
// gossip already registers its own package-local metrics
// (srishti_gossip_dedup_*); this package covers the
// node-level signals nothing else owns. Grounded on
// observability/metrics/potso.go's sync.Once singleton + nil-receiver-safe
// accessor shape, plus p2p/metrics.go's dual Prometheus/OpenTelemetry meter
// pattern (an otel.GetMeterProvider() instrument recorded alongside the
// Prometheus one, falling back to a noop meter when no OTel provider is
// configured for this process).
package metrics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Ledger holds the node-level gauges and counters. A nil *Ledger is safe to
// call methods on (every method is a no-op), so callers never need a guard.
type Ledger struct {
	chainLength    prometheus.Gauge
	peersConnected prometheus.Gauge
	appIndexLag    prometheus.Gauge
	exportRuns     *prometheus.CounterVec
	blocksApplied  prometheus.Counter

	otelBlocksApplied metric.Int64Counter
}

var (
	ledgerOnce     sync.Once
	ledgerInstance *Ledger
)

// Instance returns the process-wide Ledger metrics, registering them with
// the default Prometheus registry on first use.
func Instance() *Ledger {
	ledgerOnce.Do(func() {
		ledgerInstance = &Ledger{
			chainLength: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "srishti_node_chain_length",
				Help: "Number of blocks in the local chain.",
			}),
			peersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "srishti_node_peers_connected",
				Help: "Number of currently connected peers.",
			}),
			appIndexLag: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "srishti_node_appindex_lag_blocks",
				Help: "Blocks appended but not yet reflected in the APP_EVENT index.",
			}),
			exportRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "srishti_node_export_runs_total",
				Help: "Count of analytics export runs by outcome.",
			}, []string{"outcome"}),
			blocksApplied: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "srishti_node_blocks_applied_total",
				Help: "Count of blocks successfully appended to the local chain.",
			}),
		}
		prometheus.MustRegister(
			ledgerInstance.chainLength,
			ledgerInstance.peersConnected,
			ledgerInstance.appIndexLag,
			ledgerInstance.exportRuns,
			ledgerInstance.blocksApplied,
		)
		ledgerInstance.initMeter()
	})
	return ledgerInstance
}

// initMeter registers an OpenTelemetry counter mirroring blocksApplied,
// falling back to a noop meter if the process has no OTel provider
// configured (otel.Init is never called, as in tests).
func (l *Ledger) initMeter() {
	meter := otel.GetMeterProvider().Meter("srishti/node")
	counter, err := meter.Int64Counter("srishti.node.blocks_applied")
	if err != nil {
		meter = noop.NewMeterProvider().Meter("srishti/node")
		counter, _ = meter.Int64Counter("srishti.node.blocks_applied")
	}
	l.otelBlocksApplied = counter
}

// SetChainLength records the current local chain length.
func (l *Ledger) SetChainLength(n uint64) {
	if l == nil {
		return
	}
	l.chainLength.Set(float64(n))
}

// SetPeersConnected records the current connected-peer count.
func (l *Ledger) SetPeersConnected(n int) {
	if l == nil {
		return
	}
	l.peersConnected.Set(float64(n))
}

// SetAppIndexLag records how many blocks are ahead of the app-event index
// checkpoint.
func (l *Ledger) SetAppIndexLag(blocks uint64) {
	if l == nil {
		return
	}
	l.appIndexLag.Set(float64(blocks))
}

// IncExportRun records one export run with the given outcome ("success" or
// "failure").
func (l *Ledger) IncExportRun(outcome string) {
	if l == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	l.exportRuns.WithLabelValues(outcome).Inc()
}

// IncBlocksApplied records one successfully applied block.
func (l *Ledger) IncBlocksApplied() {
	if l == nil {
		return
	}
	l.blocksApplied.Inc()
	if l.otelBlocksApplied != nil {
		l.otelBlocksApplied.Add(context.Background(), 1)
	}
}
