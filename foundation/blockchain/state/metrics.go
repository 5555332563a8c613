package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the counters and gauges the node reports about production,
// validation and the mempool.
type Metrics struct {
	blocksProduced  prometheus.Counter
	blocksConnected prometheus.Counter
	blocksRejected  prometheus.Counter
	txsPacked       prometheus.Counter
	txRejects       *prometheus.CounterVec
	fuelRate        prometheus.Gauge
	mempoolSize     prometheus.Gauge
	tipHeight       prometheus.Gauge
}

// NewMetrics registers the metrics with the registerer. A nil registerer
// constructs metrics that are never exported.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		blocksProduced: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dpos_blocks_produced_total",
				Help: "The total number of blocks this node produced",
			},
		),
		blocksConnected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dpos_blocks_connected_total",
				Help: "The total number of blocks connected to the chain",
			},
		),
		blocksRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dpos_blocks_rejected_total",
				Help: "The total number of blocks that failed validation",
			},
		),
		txsPacked: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dpos_txs_packed_total",
				Help: "The total number of transactions packed into assembled blocks",
			},
		),
		txRejects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dpos_tx_rejects_total",
				Help: "The total number of rejected transactions",
			},
			[]string{"reason"},
		),
		fuelRate: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dpos_fuel_rate",
				Help: "The fuel rate of the tip block",
			},
		),
		mempoolSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dpos_mempool_size",
				Help: "The total pending transactions queued in the mempool",
			},
		),
		tipHeight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dpos_tip_height",
				Help: "The height of the tip block",
			},
		),
	}
}

// txRejected counts a rejection under its reason, or "other" when the
// error is not a validation error.
func (m *Metrics) txRejected(reason string) {
	if reason == "" {
		reason = "other"
	}
	m.txRejects.WithLabelValues(reason).Inc()
}
