package backtest

import (
	"math"
	"time"

	"github.com/mvolkov/tradecore/journal"
)

// Summary aggregates a run's ledger. Percent fields are whole percents
// over the run (not annualized unless named so). A trade counts as a
// win when its P&L net of commission is positive.
type Summary struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // percent of total trades

	TotalReturn  float64 // percent of initial capital
	AnnualReturn float64 // percent, compounded over the run's span
	MaxDrawdown  float64 // percent, worst peak-to-trough of the equity curve
	ProfitFactor float64 // gross wins / gross losses, net of commission

	TotalPnL        float64
	TotalCommission float64
	AvgDuration     time.Duration
}

// Summarize computes Summary from the ledger of one run.
func Summarize(initial, final float64, trades []journal.TradeRecord, equity []journal.EquityPoint, start, end time.Time) Summary {
	var s Summary
	s.TotalTrades = len(trades)

	var grossWin, grossLoss float64
	var held time.Duration
	for _, t := range trades {
		net := t.PnL - t.Commission
		s.TotalPnL += net
		s.TotalCommission += t.Commission
		held += t.Duration()

		if net > 0 {
			s.WinningTrades++
			grossWin += net
		} else if net < 0 {
			s.LosingTrades++
			grossLoss += -net
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = 100 * float64(s.WinningTrades) / float64(s.TotalTrades)
		s.AvgDuration = held / time.Duration(s.TotalTrades)
	}
	switch {
	case grossLoss > 0:
		s.ProfitFactor = grossWin / grossLoss
	case grossWin > 0:
		s.ProfitFactor = math.Inf(1)
	}

	if initial > 0 {
		s.TotalReturn = 100 * (final - initial) / initial
		if days := end.Sub(start).Hours() / 24; days >= 1 && final > 0 {
			s.AnnualReturn = 100 * (math.Pow(final/initial, 365/days) - 1)
		} else {
			s.AnnualReturn = s.TotalReturn
		}
	}
	s.MaxDrawdown = maxDrawdown(equity)
	return s
}

// maxDrawdown returns the largest peak-to-trough decline of the equity
// curve, in percent of the peak.
func maxDrawdown(equity []journal.EquityPoint) float64 {
	var peak, worst float64
	for _, e := range equity {
		v := e.Equity()
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := 100 * (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}
