// Package journal records the trade ledger and equity curve produced
// by live trading and backtests.
package journal

import (
	"time"

	"github.com/mvolkov/tradecore/broker"
)

// TradeRecord is the append-only record of one closed position. It is
// created when a position exits and never mutated.
type TradeRecord struct {
	ID         string
	Symbol     string
	Side       broker.Side
	Quantity   int64
	EntryTime  time.Time
	EntryPrice float64
	ExitTime   time.Time
	ExitPrice  float64
	ExitReason string
	PnL        float64
	Commission float64
}

// Duration returns how long the position was held.
func (t TradeRecord) Duration() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}

// EquityPoint is one sample of the capital curve, taken once per
// processed bar.
type EquityPoint struct {
	Time          time.Time
	Capital       float64
	UnrealizedPnL float64
}

// Equity returns capital plus unrealized P&L.
func (e EquityPoint) Equity() float64 { return e.Capital + e.UnrealizedPnL }

// Journal persists trade and equity records.
type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquityPoint) error
	Close() error
}

// Memory keeps records in memory. It is the ledger the backtest
// metrics consume and the default journal in tests.
type Memory struct {
	trades []TradeRecord
	equity []EquityPoint
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) RecordTrade(t TradeRecord) error {
	m.trades = append(m.trades, t)
	return nil
}

func (m *Memory) RecordEquity(e EquityPoint) error {
	m.equity = append(m.equity, e)
	return nil
}

func (m *Memory) Close() error { return nil }

// Trades returns the ledger in record order.
func (m *Memory) Trades() []TradeRecord { return m.trades }

// Equity returns the equity series in record order.
func (m *Memory) Equity() []EquityPoint { return m.equity }

// Tee duplicates records to several journals, so a backtest can keep
// an in-memory ledger while also persisting to SQLite or CSV.
type Tee []Journal

func (t Tee) RecordTrade(r TradeRecord) error {
	for _, j := range t {
		if err := j.RecordTrade(r); err != nil {
			return err
		}
	}
	return nil
}

func (t Tee) RecordEquity(e EquityPoint) error {
	for _, j := range t {
		if err := j.RecordEquity(e); err != nil {
			return err
		}
	}
	return nil
}

func (t Tee) Close() error {
	var firstErr error
	for _, j := range t {
		if err := j.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
