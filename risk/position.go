package risk

import (
	"time"

	"github.com/mvolkov/tradecore/broker"
)

// State is a symbol's place in the position lifecycle. Entering and
// Exiting cover the window between the decision and the fill; a
// rejected order rolls the symbol back to Flat or Open.
type State int8

const (
	StateFlat State = iota
	StateEntering
	StateOpen
	StateExiting
)

func (s State) String() string {
	switch s {
	case StateEntering:
		return "entering"
	case StateOpen:
		return "open"
	case StateExiting:
		return "exiting"
	default:
		return "flat"
	}
}

// ExitReason labels why a position closed. The values are stable: they
// end up in the trade ledger.
type ExitReason string

const (
	ExitStopLoss       ExitReason = "stop_loss"
	ExitTrailingStop   ExitReason = "trailing_stop"
	ExitTakeProfit     ExitReason = "take_profit"
	ExitMaxHoldingDays ExitReason = "max_holding_days"
	ExitOpposingSignal ExitReason = "opposing_signal"
	ExitEndOfData      ExitReason = "end_of_data"
)

// Position is one symbol's open exposure. It is owned exclusively by
// the Manager: created on entry fill, mutated each bar by the
// trailing-stop ratchet, destroyed on exit fill.
type Position struct {
	Symbol     string
	Side       broker.Side
	State      State
	Quantity   int64
	EntryPrice float64
	EntryTime  time.Time

	// Value is the entry notional; Size the fraction of capital it
	// consumed at entry.
	Value float64
	Size  float64

	StopLoss     float64
	TrailingStop float64
	TakeProfit   float64
	MaxExitTime  time.Time

	// BestPrice is the most favorable close seen since entry; the
	// trailing stop ratchets off it. LastPrice marks the position for
	// unrealized P&L.
	BestPrice float64
	LastPrice float64

	EntryCommission float64
}

// UnrealizedPnL is the gross price P&L at the last seen close.
func (p *Position) UnrealizedPnL() float64 {
	diff := p.LastPrice - p.EntryPrice
	if p.Side == broker.Sell {
		diff = -diff
	}
	return diff * float64(p.Quantity)
}

// stopBreached reports an intrabar breach of the active stop level.
func (p *Position) stopBreached(low, high float64) bool {
	if p.Side == broker.Buy {
		return low <= p.TrailingStop
	}
	return high >= p.TrailingStop
}

// takeProfitHit reports an intrabar touch of the take-profit level.
func (p *Position) takeProfitHit(low, high float64) bool {
	if p.Side == broker.Buy {
		return high >= p.TakeProfit
	}
	return low <= p.TakeProfit
}

// ratchetTrailing tightens the trailing stop off the most favorable
// close seen since entry. The stop never loosens.
func (p *Position) ratchetTrailing(close float64, trailingPct float64) {
	if p.Side == broker.Buy {
		if close > p.BestPrice {
			p.BestPrice = close
			if candidate := p.BestPrice * (1 - trailingPct); candidate > p.TrailingStop {
				p.TrailingStop = candidate
			}
		}
		return
	}
	if close < p.BestPrice {
		p.BestPrice = close
		if candidate := p.BestPrice * (1 + trailingPct); candidate < p.TrailingStop {
			p.TrailingStop = candidate
		}
	}
}
