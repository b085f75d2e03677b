package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SwapEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_swap_events_total",
		Help: "Swap events delivered by the stream connection",
	})

	EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_events_dropped_total",
		Help: "Swap events dropped because an evaluation was in flight",
	})

	Cycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_cycles_total",
		Help: "Evaluation cycles started",
	})

	Opportunities = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_opportunities_total",
		Help: "Cycles whose best candidate cleared the profit floor",
	})

	TradesExecuted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_trades_executed_total",
		Help: "Settlement transactions confirmed on chain",
	})

	QuoteErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_quote_errors_total",
		Help: "Failed quote simulations (skipped candidates)",
	})

	StreamReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_stream_reconnects_total",
		Help: "Stream connection replacements",
	})

	PriceGapPct = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arb_price_gap_pct",
		Help: "Last observed price gap between venues, percent",
	})

	GasPriceGwei = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arb_gas_price_gwei",
		Help: "Gas price used by the last optimization, gwei",
	})

	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_cycle_duration_seconds",
		Help:    "Wall time of one evaluation cycle",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		SwapEvents,
		EventsDropped,
		Cycles,
		Opportunities,
		TradesExecuted,
		QuoteErrors,
		StreamReconnects,
		PriceGapPct,
		GasPriceGwei,
		CycleDuration,
	)
}
