// Package sim provides the deterministic fill model used by backtests.
package sim

import (
	"context"

	"github.com/mvolkov/tradecore/broker"
)

// Engine implements broker.Broker with slippage-free fills: every
// valid order fills at its reference price (the bar close) and is
// charged commissionRate times the notional. Fills are fully
// deterministic so a replayed backtest produces identical results.
type Engine struct {
	commissionRate float64
}

func NewEngine(commissionRate float64) *Engine {
	return &Engine{commissionRate: commissionRate}
}

func (e *Engine) Submit(ctx context.Context, o broker.Order) (broker.Fill, error) {
	if err := ctx.Err(); err != nil {
		return broker.Fill{}, err
	}
	if o.Quantity <= 0 {
		return broker.Fill{}, &broker.RejectionError{OrderID: o.ID, Reason: broker.ReasonInvalidOrder}
	}
	if o.Price <= 0 {
		return broker.Fill{}, &broker.RejectionError{OrderID: o.ID, Reason: broker.ReasonInvalidOrder}
	}

	notional := float64(o.Quantity) * o.Price
	return broker.Fill{
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Quantity:   o.Quantity,
		Price:      o.Price,
		Commission: notional * e.commissionRate,
		Time:       o.Time,
	}, nil
}

// OpenPositions always reports none: in a backtest the risk manager is
// the sole owner of position state.
func (e *Engine) OpenPositions(ctx context.Context) ([]broker.PositionInfo, error) {
	return nil, nil
}
