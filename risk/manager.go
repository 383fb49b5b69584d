// Package risk tracks open positions, sizes entries against the
// shared capital pool, and flags forced exits.
package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mvolkov/tradecore/broker"
	"github.com/mvolkov/tradecore/journal"
	"github.com/mvolkov/tradecore/market"
	"github.com/mvolkov/tradecore/strategy"
)

// ErrCapacityExceeded marks an entry signal dropped because the open
// position cap was reached. It is reported as an event, never as an
// error to the caller: the signal is dropped, not queued.
var ErrCapacityExceeded = errors.New("risk: max open positions reached")

// Limits are the configured risk parameters. Percent fields are whole
// percents (2.0 means 2%).
type Limits struct {
	StopLossPercent     float64
	TrailingStopPercent float64
	TakeProfitPercent   float64
	MaxPositionSize     float64 // fraction of capital per position
	MaxPositions        int     // across all symbols
	MaxHoldingDays      int
	CommissionRate      float64 // used to size entries so cost never exceeds capital
}

// EventType classifies what the Manager did on a bar.
type EventType int8

const (
	EventEntry EventType = iota
	EventExit
	EventRejected
	EventSkipped
)

// Event is one observable outcome of processing a bar: a position
// opened or closed, an order rejected, or an entry signal skipped.
// Callers feed events to notification and metrics collaborators.
type Event struct {
	Type   EventType
	Symbol string
	Time   time.Time
	Reason string

	Position *Position            // entry: snapshot of the opened position
	Trade    *journal.TradeRecord // exit: the ledger record
}

// Manager is the per-symbol position state machine with one shared
// capital pool. All capital and position-count mutations happen under
// a single lock, so per-symbol bars may be fed from parallel workers.
type Manager struct {
	mu      sync.Mutex
	limits  Limits
	capital float64
	table   map[string]*Position
	exec    broker.Broker
	journal journal.Journal
	log     *zap.Logger
}

func NewManager(limits Limits, initialCapital float64, exec broker.Broker, j journal.Journal, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if j == nil {
		j = journal.NewMemory()
	}
	return &Manager{
		limits:  limits,
		capital: initialCapital,
		table:   make(map[string]*Position),
		exec:    exec,
		journal: j,
		log:     log,
	}
}

// Capital returns the free capital pool.
func (m *Manager) Capital() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capital
}

// OpenCount returns the number of non-flat symbols.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.table)
}

// Get returns a copy of the symbol's position, if any.
func (m *Manager) Get(symbol string) (Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.table[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// UnrealizedPnL sums the open positions' gross P&L at their last seen
// closes.
func (m *Manager) UnrealizedPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0.0
	for _, p := range m.table {
		if p.State == StateOpen {
			total += p.UnrealizedPnL()
		}
	}
	return total
}

// OnBar advances the symbol's state machine by one bar. While a
// position is open it checks exit conditions in priority order (stop
// or trailing-stop breach, take profit, holding-time limit, opposing
// signal) and executes at most one exit. While flat, a non-flat
// effective signal may open a position, capacity and capital
// permitting. An exit and an entry never happen on the same bar.
func (m *Manager) OnBar(ctx context.Context, bar market.Bar, sig strategy.Signal) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, open := m.table[bar.Symbol]
	if open && pos.State == StateOpen {
		return m.manageOpen(ctx, pos, bar, sig)
	}
	if open {
		// Entering/Exiting never survives OnBar; a stale transient
		// state means a previous call was interrupted mid-submit.
		return nil, fmt.Errorf("risk: symbol %s stuck in state %s", bar.Symbol, pos.State)
	}

	if sig.Direction == strategy.Flat {
		return nil, nil
	}
	return m.tryEnter(ctx, bar, sig)
}

func (m *Manager) manageOpen(ctx context.Context, pos *Position, bar market.Bar, sig strategy.Signal) ([]Event, error) {
	pos.LastPrice = bar.Close

	var reason ExitReason
	switch {
	case pos.stopBreached(bar.Low, bar.High):
		reason = ExitStopLoss
		if pos.TrailingStop != pos.StopLoss {
			reason = ExitTrailingStop
		}
	case pos.takeProfitHit(bar.Low, bar.High):
		reason = ExitTakeProfit
	case !bar.Time.Before(pos.MaxExitTime):
		reason = ExitMaxHoldingDays
	case sig.Direction.Opposes(sideToDirection(pos.Side)):
		reason = ExitOpposingSignal
	}

	if reason == "" {
		pos.ratchetTrailing(bar.Close, m.limits.TrailingStopPercent/100)
		return nil, nil
	}
	return m.exit(ctx, pos, bar, reason)
}

func (m *Manager) tryEnter(ctx context.Context, bar market.Bar, sig strategy.Signal) ([]Event, error) {
	if len(m.table) >= m.limits.MaxPositions {
		m.log.Warn("entry signal dropped, position cap reached",
			zap.String("symbol", bar.Symbol),
			zap.Int("max_positions", m.limits.MaxPositions))
		return []Event{{
			Type:   EventSkipped,
			Symbol: bar.Symbol,
			Time:   bar.Time,
			Reason: ErrCapacityExceeded.Error(),
		}}, nil
	}

	// Size the position off the free pool: the allocation can never
	// push total exposure past capital, and commission is budgeted so
	// the fill cost stays inside the pool.
	value := m.capital * m.limits.MaxPositionSize
	quantity := int64(math.Floor(value / (bar.Close * (1 + m.limits.CommissionRate))))
	if quantity <= 0 {
		m.log.Warn("entry signal dropped, insufficient capital",
			zap.String("symbol", bar.Symbol),
			zap.Float64("capital", m.capital),
			zap.Float64("price", bar.Close))
		return []Event{{
			Type:   EventSkipped,
			Symbol: bar.Symbol,
			Time:   bar.Time,
			Reason: "insufficient capital",
		}}, nil
	}

	side := broker.Buy
	if sig.Direction == strategy.Short {
		side = broker.Sell
	}

	pos := &Position{
		Symbol: bar.Symbol,
		Side:   side,
		State:  StateEntering,
	}
	m.table[bar.Symbol] = pos

	fill, err := m.exec.Submit(ctx, broker.Order{
		ID:       orderID(bar.Symbol, side, bar.Time),
		Symbol:   bar.Symbol,
		Side:     side,
		Quantity: quantity,
		Price:    bar.Close,
		Time:     bar.Time,
	})
	if err != nil {
		delete(m.table, bar.Symbol)
		if rej, ok := broker.AsRejection(err); ok {
			m.log.Warn("entry order rejected",
				zap.String("symbol", bar.Symbol),
				zap.String("reason", rej.Reason))
			return []Event{{
				Type:   EventRejected,
				Symbol: bar.Symbol,
				Time:   bar.Time,
				Reason: rej.Reason,
			}}, nil
		}
		return nil, err
	}

	cost := fill.Notional() + fill.Commission
	if cost > m.capital {
		// A fill that would drive capital negative is refused, not
		// clipped.
		delete(m.table, bar.Symbol)
		m.log.Error("fill cost exceeds free capital, entry refused",
			zap.String("symbol", bar.Symbol),
			zap.Float64("cost", cost),
			zap.Float64("capital", m.capital))
		return []Event{{
			Type:   EventRejected,
			Symbol: bar.Symbol,
			Time:   bar.Time,
			Reason: broker.ReasonInsufficientFunds,
		}}, nil
	}

	stopPct := m.limits.StopLossPercent / 100
	takePct := m.limits.TakeProfitPercent / 100

	pos.State = StateOpen
	pos.Quantity = fill.Quantity
	pos.EntryPrice = fill.Price
	pos.EntryTime = fill.Time
	pos.Value = fill.Notional()
	pos.Size = pos.Value / m.capital
	pos.EntryCommission = fill.Commission
	pos.BestPrice = fill.Price
	pos.LastPrice = fill.Price
	pos.MaxExitTime = fill.Time.AddDate(0, 0, m.limits.MaxHoldingDays)

	if side == broker.Buy {
		pos.StopLoss = fill.Price * (1 - stopPct)
		pos.TakeProfit = fill.Price * (1 + takePct)
	} else {
		pos.StopLoss = fill.Price * (1 + stopPct)
		pos.TakeProfit = fill.Price * (1 - takePct)
	}
	pos.TrailingStop = pos.StopLoss

	m.capital -= cost

	m.log.Info("position opened",
		zap.String("symbol", pos.Symbol),
		zap.String("side", pos.Side.String()),
		zap.Int64("quantity", pos.Quantity),
		zap.Float64("entry", pos.EntryPrice),
		zap.Float64("stop", pos.StopLoss),
		zap.Float64("take_profit", pos.TakeProfit))

	snapshot := *pos
	return []Event{{
		Type:     EventEntry,
		Symbol:   pos.Symbol,
		Time:     bar.Time,
		Position: &snapshot,
	}}, nil
}

func (m *Manager) exit(ctx context.Context, pos *Position, bar market.Bar, reason ExitReason) ([]Event, error) {
	pos.State = StateExiting

	exitSide := broker.Sell
	if pos.Side == broker.Sell {
		exitSide = broker.Buy
	}

	fill, err := m.exec.Submit(ctx, broker.Order{
		ID:       orderID(pos.Symbol, exitSide, bar.Time),
		Symbol:   pos.Symbol,
		Side:     exitSide,
		Quantity: pos.Quantity,
		Price:    bar.Close,
		Time:     bar.Time,
	})
	if err != nil {
		pos.State = StateOpen
		if rej, ok := broker.AsRejection(err); ok {
			m.log.Warn("exit order rejected, position stays open",
				zap.String("symbol", pos.Symbol),
				zap.String("reason", rej.Reason))
			return []Event{{
				Type:   EventRejected,
				Symbol: pos.Symbol,
				Time:   bar.Time,
				Reason: rej.Reason,
			}}, nil
		}
		return nil, err
	}

	pnl := (fill.Price - pos.EntryPrice) * float64(pos.Quantity)
	if pos.Side == broker.Sell {
		pnl = -pnl
		// A short settles at worst for the collateral the entry
		// reserved. A gap past twice the entry price returns zero
		// proceeds instead of drawing the free pool negative.
		if floor := fill.Commission - pos.Value; pnl < floor {
			m.log.Warn("short loss capped at reserved collateral",
				zap.String("symbol", pos.Symbol),
				zap.Float64("raw_pnl", pnl),
				zap.Float64("collateral", pos.Value))
			pnl = floor
		}
	}

	trade := journal.TradeRecord{
		ID:         tradeID(pos.Symbol, pos.EntryTime),
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Quantity:   pos.Quantity,
		EntryTime:  pos.EntryTime,
		EntryPrice: pos.EntryPrice,
		ExitTime:   fill.Time,
		ExitPrice:  fill.Price,
		ExitReason: string(reason),
		PnL:        pnl,
		Commission: pos.EntryCommission + fill.Commission,
	}
	if err := m.journal.RecordTrade(trade); err != nil {
		pos.State = StateOpen
		return nil, fmt.Errorf("record trade: %w", err)
	}

	m.capital += pos.Value + pnl - fill.Commission
	delete(m.table, pos.Symbol)

	m.log.Info("position closed",
		zap.String("symbol", trade.Symbol),
		zap.String("reason", trade.ExitReason),
		zap.Float64("exit", trade.ExitPrice),
		zap.Float64("pnl", trade.PnL))

	return []Event{{
		Type:   EventExit,
		Symbol: trade.Symbol,
		Time:   bar.Time,
		Reason: trade.ExitReason,
		Trade:  &trade,
	}}, nil
}

// ForceExit closes the symbol's position at the bar close with the
// given reason, regardless of exit conditions. Used for end-of-data
// closes and shutdown.
func (m *Manager) ForceExit(ctx context.Context, bar market.Bar, reason ExitReason) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.table[bar.Symbol]
	if !ok || pos.State != StateOpen {
		return nil, nil
	}
	return m.exit(ctx, pos, bar, reason)
}

// Reconcile adopts broker-side open positions at startup, recomputing
// protective levels from the average entry price. Live mode only.
func (m *Manager) Reconcile(infos []broker.PositionInfo, asOf time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stopPct := m.limits.StopLossPercent / 100
	takePct := m.limits.TakeProfitPercent / 100

	for _, info := range infos {
		if info.Quantity == 0 {
			continue
		}
		side := broker.Buy
		qty := info.Quantity
		if qty < 0 {
			side = broker.Sell
			qty = -qty
		}

		pos := &Position{
			Symbol:      info.Symbol,
			Side:        side,
			State:       StateOpen,
			Quantity:    qty,
			EntryPrice:  info.AvgPrice,
			EntryTime:   asOf,
			Value:       float64(qty) * info.AvgPrice,
			BestPrice:   info.AvgPrice,
			LastPrice:   info.AvgPrice,
			MaxExitTime: asOf.AddDate(0, 0, m.limits.MaxHoldingDays),
		}
		if side == broker.Buy {
			pos.StopLoss = info.AvgPrice * (1 - stopPct)
			pos.TakeProfit = info.AvgPrice * (1 + takePct)
		} else {
			pos.StopLoss = info.AvgPrice * (1 + stopPct)
			pos.TakeProfit = info.AvgPrice * (1 - takePct)
		}
		pos.TrailingStop = pos.StopLoss

		m.table[info.Symbol] = pos
		m.log.Info("reconciled broker position",
			zap.String("symbol", pos.Symbol),
			zap.Int64("quantity", pos.Quantity),
			zap.Float64("avg_price", pos.EntryPrice))
	}
}

func sideToDirection(s broker.Side) strategy.Direction {
	if s == broker.Sell {
		return strategy.Short
	}
	return strategy.Long
}

// orderID and tradeID derive identifiers from the instrument and bar
// time so that replaying the same data produces the same ledger.
func orderID(symbol string, side broker.Side, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d", symbol, side, at.Unix())
}

func tradeID(symbol string, entry time.Time) string {
	return fmt.Sprintf("%s-%d", symbol, entry.Unix())
}
