// Package metrics exposes the bot's Prometheus collectors:
//
//	perptrader_equity_usdt                        capital plus unrealized PnL
//	perptrader_capital_usdt                       realized capital
//	perptrader_open_positions                     open local positions
//	perptrader_trades_total{side}                 entries taken
//	perptrader_exits_total{reason,side}           exit fills by reason
//	perptrader_halted                             1 while the governor halts entries
//	perptrader_cycle_errors_total{stage}          failed live cycle stages
//	perptrader_reconcile_actions_total{action}    reconciliation outcomes
//
// Collectors are registered in init and served by Handler at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rustyeddy/perptrader/engine"
	"github.com/rustyeddy/perptrader/reconcile"
)

var (
	equity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perptrader_equity_usdt",
			Help: "Capital plus unrealized PnL at the last tick",
		},
	)

	capital = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perptrader_capital_usdt",
			Help: "Realized capital",
		},
	)

	openPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perptrader_open_positions",
			Help: "Open local positions",
		},
	)

	trades = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perptrader_trades_total",
			Help: "Positions opened",
		},
		[]string{"side"},
	)

	exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perptrader_exits_total",
			Help: "Exit fills split by reason and side",
		},
		[]string{"reason", "side"},
	)

	halted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "perptrader_halted",
			Help: "1 while the daily governor refuses new entries",
		},
	)

	cycleErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perptrader_cycle_errors_total",
			Help: "Live cycle failures by stage",
		},
		[]string{"stage"},
	)

	reconcileActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "perptrader_reconcile_actions_total",
			Help: "Reconciliation passes by resulting action",
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(equity, capital, openPositions, trades, exits, halted, cycleErrors, reconcileActions)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOutcome folds one controller step into the collectors.
func ObserveOutcome(out engine.Outcome, st engine.State) {
	if !out.Equity.Time.IsZero() {
		equity.Set(out.Equity.Equity)
	}
	capital.Set(st.Capital)
	openPositions.Set(float64(len(st.Open)))

	if out.Opened != nil {
		trades.WithLabelValues(string(out.Opened.Side)).Inc()
	}
	for _, e := range out.Exits {
		exits.WithLabelValues(string(e.Fill.Reason), string(e.Side)).Inc()
	}
	if st.Daily.Halted {
		halted.Set(1)
	} else {
		halted.Set(0)
	}
}

func ObserveReconcile(r reconcile.Report) {
	reconcileActions.WithLabelValues(string(r.Action())).Inc()
}

func CycleError(stage string) {
	cycleErrors.WithLabelValues(stage).Inc()
}
