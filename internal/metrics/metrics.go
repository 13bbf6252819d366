// Package metrics exposes Prometheus instrumentation for the signal
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle metrics
var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalflow_cycles_total",
		Help: "Total trading cycles by outcome",
	}, []string{"outcome"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signalflow_cycle_duration_seconds",
		Help:    "Wallclock duration of one trading cycle",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
	})

	CyclesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signalflow_cycles_skipped_total",
		Help: "Ticks skipped because the previous cycle overran",
	})
)

// Signal metrics
var (
	SignalsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalflow_signals_generated_total",
		Help: "Signals persisted by direction",
	}, []string{"direction"})

	SignalScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signalflow_signal_score",
		Help:    "Score distribution of persisted signals",
		Buckets: []float64{0.65, 0.70, 0.75, 0.80, 0.85, 0.90, 0.95, 1.0},
	})

	AnalysisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalflow_analysis_errors_total",
		Help: "Analysis failures by kind",
	}, []string{"kind"})
)

// Risk metrics
var (
	RiskRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalflow_risk_rejections_total",
		Help: "Cycle-level risk rejections by kind",
	}, []string{"kind"})
)

// Executor metrics
var (
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalflow_orders_total",
		Help: "Orders recorded by status",
	}, []string{"status"})

	OrderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signalflow_order_errors_total",
		Help: "Failed orders by error kind",
	}, []string{"error_kind"})

	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signalflow_execution_duration_seconds",
		Help:    "Executor fan-out duration per signal",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30},
	})

	AccountsEligible = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalflow_accounts_eligible",
		Help: "Eligible accounts in the last cycle",
	})
)

// Portfolio metrics
var (
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signalflow_open_positions",
		Help: "Number of currently open positions",
	})

	UnrealizedPnl = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "signalflow_unrealized_pnl_usd",
		Help: "Unrealized PnL in USD by symbol",
	}, []string{"symbol"})
)
