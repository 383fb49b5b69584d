// Package metrics exposes Prometheus instrumentation for the live
// trading loop. The backtest path does not touch these collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_signals_total",
			Help: "Effective signals produced, by strategy and direction.",
		},
		[]string{"strategy", "direction"},
	)

	OrdersSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tradecore_orders_submitted_total",
			Help: "Orders handed to the execution layer.",
		},
	)

	OrderRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_order_rejections_total",
			Help: "Orders the execution layer refused, by reason.",
		},
		[]string{"reason"},
	)

	TradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradecore_trades_closed_total",
			Help: "Completed position lifecycles, by exit reason.",
		},
		[]string{"reason"},
	)

	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradecore_open_positions",
			Help: "Currently open positions across all symbols.",
		},
	)

	AccountEquity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradecore_account_equity",
			Help: "Free capital plus unrealized P&L.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsTotal,
		OrdersSubmitted,
		OrderRejections,
		TradesClosed,
		OpenPositions,
		AccountEquity,
	)
}
