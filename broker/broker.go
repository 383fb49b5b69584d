// Package broker defines the order placement contract shared by the
// live adapter and the backtest fill simulator.
package broker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Side is the order direction.
type Side int8

const (
	Buy  Side = +1
	Sell Side = -1
)

func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

// Order is a market order for a whole-share quantity. Price carries
// the reference price the decision was made at (the bar close); the
// simulator fills exactly there, a live venue may not.
type Order struct {
	ID       string
	Symbol   string
	Side     Side
	Quantity int64
	Price    float64
	Time     time.Time
}

// Fill confirms an order executed.
type Fill struct {
	OrderID    string
	Symbol     string
	Side       Side
	Quantity   int64
	Price      float64
	Commission float64
	Time       time.Time
}

// Notional returns the cash value of the fill excluding commission.
func (f Fill) Notional() float64 { return float64(f.Quantity) * f.Price }

// Rejection reasons. Rejections are recorded and trading continues on
// the next bar; they are never silently retried by this core.
const (
	ReasonTimeout           = "timeout"
	ReasonInvalidOrder      = "invalid_order"
	ReasonInsufficientFunds = "insufficient_funds"
	ReasonBrokerError       = "broker_error"
)

// RejectionError is returned by Submit when an order is not filled.
// It carries the execution layer's reason; no Position or Trade is
// created for a rejected order.
type RejectionError struct {
	OrderID string
	Reason  string
	Err     error
}

func (e *RejectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order %s rejected (%s): %v", e.OrderID, e.Reason, e.Err)
	}
	return fmt.Sprintf("order %s rejected (%s)", e.OrderID, e.Reason)
}

func (e *RejectionError) Unwrap() error { return e.Err }

// AsRejection unwraps a RejectionError if err carries one.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// PositionInfo is a broker-side open position, used for startup
// reconciliation in live mode.
type PositionInfo struct {
	Symbol   string
	Quantity int64
	AvgPrice float64
}

// Broker is the uniform execution contract. Submit either returns a
// Fill or an error; a *RejectionError marks the expected
// execution-layer failures, anything else is an infrastructure fault.
type Broker interface {
	Submit(ctx context.Context, o Order) (Fill, error)
	OpenPositions(ctx context.Context) ([]PositionInfo, error)
}
