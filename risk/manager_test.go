package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvolkov/tradecore/broker"
	"github.com/mvolkov/tradecore/journal"
	"github.com/mvolkov/tradecore/market"
	"github.com/mvolkov/tradecore/sim"
	"github.com/mvolkov/tradecore/strategy"
)

var testBase = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func testLimits() Limits {
	return Limits{
		StopLossPercent:     2.0,
		TrailingStopPercent: 1.5,
		TakeProfitPercent:   4.0,
		MaxPositionSize:     0.9,
		MaxPositions:        1,
		MaxHoldingDays:      7,
		CommissionRate:      0.003,
	}
}

func dayBar(symbol string, day int, o, h, l, c float64) market.Bar {
	return market.Bar{
		Symbol: symbol,
		Time:   testBase.AddDate(0, 0, day),
		Open:   o,
		High:   h,
		Low:    l,
		Close:  c,
		Volume: 1000,
	}
}

func longSignal(at time.Time) strategy.Signal {
	return strategy.Signal{Strategy: "trend", Direction: strategy.Long, Time: at}
}

func flatSignal(at time.Time) strategy.Signal {
	return strategy.Signal{Direction: strategy.Flat, Time: at}
}

// openLong drives the manager through an entry at the given close and
// fails the test if the position does not open.
func openLong(t *testing.T, m *Manager, symbol string, day int, close float64) Position {
	t.Helper()

	b := dayBar(symbol, day, close, close, close, close)
	events, err := m.OnBar(context.Background(), b, longSignal(b.Time))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, EventEntry, events[0].Type)

	pos, ok := m.Get(symbol)
	require.True(t, ok)
	return pos
}

func TestManagerEntry(t *testing.T) {
	t.Parallel()

	mem := journal.NewMemory()
	m := NewManager(testLimits(), 50000, sim.NewEngine(0.003), mem, nil)

	pos := openLong(t, m, "SBER", 0, 100)

	// 90% of 50k sized against price plus commission.
	assert.Equal(t, int64(448), pos.Quantity)
	assert.Equal(t, StateOpen, pos.State)
	assert.Equal(t, broker.Buy, pos.Side)
	assert.InDelta(t, 98.0, pos.StopLoss, 1e-9)
	assert.InDelta(t, 98.0, pos.TrailingStop, 1e-9)
	assert.InDelta(t, 104.0, pos.TakeProfit, 1e-9)
	assert.Equal(t, testBase.AddDate(0, 0, 7), pos.MaxExitTime)

	// Capital drops by notional plus commission.
	assert.InDelta(t, 50000-44800-134.4, m.Capital(), 1e-6)
	assert.Equal(t, 1, m.OpenCount())
	assert.Empty(t, mem.Trades())
}

func TestManagerTakeProfit(t *testing.T) {
	t.Parallel()

	mem := journal.NewMemory()
	m := NewManager(testLimits(), 50000, sim.NewEngine(0.003), mem, nil)
	openLong(t, m, "SBER", 0, 100)

	b := dayBar("SBER", 1, 103, 105, 103, 104.5)
	events, err := m.OnBar(context.Background(), b, flatSignal(b.Time))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventExit, events[0].Type)
	assert.Equal(t, string(ExitTakeProfit), events[0].Reason)

	require.Len(t, mem.Trades(), 1)
	trade := mem.Trades()[0]
	assert.InDelta(t, (104.5-100)*448, trade.PnL, 1e-6)
	assert.InDelta(t, 134.4+0.003*104.5*448, trade.Commission, 1e-6)
	assert.Equal(t, 0, m.OpenCount())

	// Proceeds return to the pool net of the exit commission.
	want := (50000 - 44800 - 134.4) + 44800 + trade.PnL - 0.003*104.5*448
	assert.InDelta(t, want, m.Capital(), 1e-6)
}

func TestManagerStopLoss(t *testing.T) {
	t.Parallel()

	mem := journal.NewMemory()
	m := NewManager(testLimits(), 50000, sim.NewEngine(0.003), mem, nil)
	openLong(t, m, "SBER", 0, 100)

	// Intrabar breach of the initial stop fills at the bar close.
	b := dayBar("SBER", 1, 99, 99.5, 97.9, 98.5)
	events, err := m.OnBar(context.Background(), b, flatSignal(b.Time))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(ExitStopLoss), events[0].Reason)

	require.Len(t, mem.Trades(), 1)
	assert.InDelta(t, (98.5-100)*448, mem.Trades()[0].PnL, 1e-6)
}

func TestManagerTrailingStop(t *testing.T) {
	t.Parallel()

	m := NewManager(testLimits(), 50000, sim.NewEngine(0.003), journal.NewMemory(), nil)
	openLong(t, m, "SBER", 0, 100)

	// A favorable close ratchets the trailing stop up.
	b := dayBar("SBER", 1, 100, 103.2, 99, 103)
	_, err := m.OnBar(context.Background(), b, flatSignal(b.Time))
	require.NoError(t, err)
	pos, _ := m.Get("SBER")
	assert.InDelta(t, 103*0.985, pos.TrailingStop, 1e-9)
	assert.InDelta(t, 103.0, pos.BestPrice, 1e-9)

	// A pullback close never loosens it.
	b = dayBar("SBER", 2, 102.5, 102.8, 101.8, 102)
	_, err = m.OnBar(context.Background(), b, flatSignal(b.Time))
	require.NoError(t, err)
	pos, _ = m.Get("SBER")
	assert.InDelta(t, 103*0.985, pos.TrailingStop, 1e-9)

	// Breaching the moved stop reports trailing_stop, not stop_loss.
	b = dayBar("SBER", 3, 101.5, 101.6, 101, 101.2)
	events, err := m.OnBar(context.Background(), b, flatSignal(b.Time))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(ExitTrailingStop), events[0].Reason)
}

func TestManagerMaxHoldingDays(t *testing.T) {
	t.Parallel()

	m := NewManager(testLimits(), 50000, sim.NewEngine(0.003), journal.NewMemory(), nil)
	openLong(t, m, "SBER", 0, 100)

	for day := 1; day < 7; day++ {
		b := dayBar("SBER", day, 100, 100.5, 99.5, 100)
		events, err := m.OnBar(context.Background(), b, flatSignal(b.Time))
		require.NoError(t, err)
		assert.Empty(t, events, "day %d", day)
	}

	b := dayBar("SBER", 7, 100, 100.5, 99.5, 100)
	events, err := m.OnBar(context.Background(), b, flatSignal(b.Time))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(ExitMaxHoldingDays), events[0].Reason)
}

func TestManagerOpposingSignal(t *testing.T) {
	t.Parallel()

	m := NewManager(testLimits(), 50000, sim.NewEngine(0.003), journal.NewMemory(), nil)
	openLong(t, m, "SBER", 0, 100)

	// A flat signal leaves the position alone.
	b := dayBar("SBER", 1, 100, 101, 99, 100.5)
	events, err := m.OnBar(context.Background(), b, flatSignal(b.Time))
	require.NoError(t, err)
	assert.Empty(t, events)

	b = dayBar("SBER", 2, 100, 101, 99, 100.5)
	short := strategy.Signal{Strategy: "reversal", Direction: strategy.Short, Time: b.Time}
	events, err = m.OnBar(context.Background(), b, short)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(ExitOpposingSignal), events[0].Reason)
	assert.Equal(t, 0, m.OpenCount())
}

func TestManagerCapacity(t *testing.T) {
	t.Parallel()

	m := NewManager(testLimits(), 50000, sim.NewEngine(0.003), journal.NewMemory(), nil)
	openLong(t, m, "SBER", 0, 100)

	// Second entry signal is dropped, not queued.
	b := dayBar("GAZP", 0, 150, 150, 150, 150)
	events, err := m.OnBar(context.Background(), b, longSignal(b.Time))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventSkipped, events[0].Type)
	assert.Equal(t, ErrCapacityExceeded.Error(), events[0].Reason)
	assert.Equal(t, 1, m.OpenCount())
	_, ok := m.Get("GAZP")
	assert.False(t, ok)
}

func TestManagerNoSameBarReentry(t *testing.T) {
	t.Parallel()

	m := NewManager(testLimits(), 50000, sim.NewEngine(0.003), journal.NewMemory(), nil)
	openLong(t, m, "SBER", 0, 100)

	// Stop fires on a bar that also carries a fresh long signal: the
	// exit is the bar's only action.
	b := dayBar("SBER", 1, 99, 99.5, 97.5, 98)
	events, err := m.OnBar(context.Background(), b, longSignal(b.Time))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventExit, events[0].Type)
	assert.Equal(t, 0, m.OpenCount())
}

func TestManagerInsufficientCapital(t *testing.T) {
	t.Parallel()

	m := NewManager(testLimits(), 50, sim.NewEngine(0.003), journal.NewMemory(), nil)

	b := dayBar("SBER", 0, 100, 100, 100, 100)
	events, err := m.OnBar(context.Background(), b, longSignal(b.Time))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventSkipped, events[0].Type)
	assert.Equal(t, 0, m.OpenCount())
	assert.InDelta(t, 50.0, m.Capital(), 1e-9)
}

type rejectingBroker struct {
	reason string
	calls  int
}

func (b *rejectingBroker) Submit(_ context.Context, o broker.Order) (broker.Fill, error) {
	b.calls++
	return broker.Fill{}, &broker.RejectionError{OrderID: o.ID, Reason: b.reason}
}

func (b *rejectingBroker) OpenPositions(context.Context) ([]broker.PositionInfo, error) {
	return nil, nil
}

func TestManagerEntryRejected(t *testing.T) {
	t.Parallel()

	rb := &rejectingBroker{reason: broker.ReasonInvalidOrder}
	m := NewManager(testLimits(), 50000, rb, journal.NewMemory(), nil)

	b := dayBar("SBER", 0, 100, 100, 100, 100)
	events, err := m.OnBar(context.Background(), b, longSignal(b.Time))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventRejected, events[0].Type)
	assert.Equal(t, broker.ReasonInvalidOrder, events[0].Reason)

	// The rejected entry leaves no residue.
	assert.Equal(t, 0, m.OpenCount())
	assert.InDelta(t, 50000.0, m.Capital(), 1e-9)
	assert.Equal(t, 1, rb.calls)
}

func TestManagerForceExit(t *testing.T) {
	t.Parallel()

	mem := journal.NewMemory()
	m := NewManager(testLimits(), 50000, sim.NewEngine(0.003), mem, nil)
	openLong(t, m, "SBER", 0, 100)

	b := dayBar("SBER", 1, 100, 101, 99, 100.5)
	events, err := m.ForceExit(context.Background(), b, ExitEndOfData)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(ExitEndOfData), events[0].Reason)
	require.Len(t, mem.Trades(), 1)
	assert.Equal(t, string(ExitEndOfData), mem.Trades()[0].ExitReason)

	// Idempotent once flat.
	events, err = m.ForceExit(context.Background(), b, ExitEndOfData)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestManagerShortSide(t *testing.T) {
	t.Parallel()

	mem := journal.NewMemory()
	m := NewManager(testLimits(), 50000, sim.NewEngine(0.003), mem, nil)

	b := dayBar("SBER", 0, 100, 100, 100, 100)
	short := strategy.Signal{Strategy: "reversal", Direction: strategy.Short, Time: b.Time}
	events, err := m.OnBar(context.Background(), b, short)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, EventEntry, events[0].Type)

	pos, ok := m.Get("SBER")
	require.True(t, ok)
	assert.Equal(t, broker.Sell, pos.Side)
	assert.InDelta(t, 102.0, pos.StopLoss, 1e-9)
	assert.InDelta(t, 96.0, pos.TakeProfit, 1e-9)

	// Price falling through the target closes the short at a profit.
	b = dayBar("SBER", 1, 98, 98.5, 95.5, 96)
	events, err = m.OnBar(context.Background(), b, flatSignal(b.Time))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(ExitTakeProfit), events[0].Reason)
	require.Len(t, mem.Trades(), 1)
	assert.InDelta(t, (100-96.0)*448, mem.Trades()[0].PnL, 1e-6)
}

func TestManagerShortGapLossCapped(t *testing.T) {
	t.Parallel()

	limits := testLimits()
	limits.MaxPositionSize = 1.0
	limits.CommissionRate = 0

	mem := journal.NewMemory()
	m := NewManager(limits, 10000, sim.NewEngine(0), mem, nil)

	b := dayBar("SBER", 0, 100, 100, 100, 100)
	short := strategy.Signal{Strategy: "reversal", Direction: strategy.Short, Time: b.Time}
	_, err := m.OnBar(context.Background(), b, short)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, m.Capital(), 1e-9)

	// Price triples overnight. The stop fires at the close, but the
	// realized loss cannot exceed the collateral reserved at entry.
	b = dayBar("SBER", 1, 300, 305, 295, 300)
	events, err := m.OnBar(context.Background(), b, flatSignal(b.Time))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(ExitStopLoss), events[0].Reason)

	assert.GreaterOrEqual(t, m.Capital(), 0.0)
	assert.InDelta(t, 0.0, m.Capital(), 1e-9)
	require.Len(t, mem.Trades(), 1)
	assert.InDelta(t, -10000.0, mem.Trades()[0].PnL, 1e-6)
	assert.Equal(t, 0, m.OpenCount())
}

func TestManagerReconcile(t *testing.T) {
	t.Parallel()

	m := NewManager(testLimits(), 50000, sim.NewEngine(0.003), journal.NewMemory(), nil)

	m.Reconcile([]broker.PositionInfo{
		{Symbol: "SBER", Quantity: 120, AvgPrice: 100},
		{Symbol: "GAZP", Quantity: -50, AvgPrice: 200},
		{Symbol: "LKOH", Quantity: 0, AvgPrice: 300},
	}, testBase)

	assert.Equal(t, 2, m.OpenCount())

	pos, ok := m.Get("SBER")
	require.True(t, ok)
	assert.Equal(t, broker.Buy, pos.Side)
	assert.Equal(t, int64(120), pos.Quantity)
	assert.InDelta(t, 98.0, pos.StopLoss, 1e-9)

	pos, ok = m.Get("GAZP")
	require.True(t, ok)
	assert.Equal(t, broker.Sell, pos.Side)
	assert.Equal(t, int64(50), pos.Quantity)
	assert.InDelta(t, 204.0, pos.StopLoss, 1e-9)

	_, ok = m.Get("LKOH")
	assert.False(t, ok)
}

func TestManagerDeterministicIDs(t *testing.T) {
	t.Parallel()

	run := func() journal.TradeRecord {
		mem := journal.NewMemory()
		m := NewManager(testLimits(), 50000, sim.NewEngine(0.003), mem, nil)
		openLong(t, m, "SBER", 0, 100)
		b := dayBar("SBER", 1, 103, 105, 103, 104.5)
		_, err := m.OnBar(context.Background(), b, flatSignal(b.Time))
		require.NoError(t, err)
		require.Len(t, mem.Trades(), 1)
		return mem.Trades()[0]
	}

	first := run()
	second := run()
	assert.Equal(t, first, second)
	assert.NotEmpty(t, first.ID)
}
