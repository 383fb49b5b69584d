// Package notify fans trade lifecycle events out to interested
// listeners. Delivery is fire-and-forget: a slow or failing notifier
// never stalls trading.
package notify

import (
	"go.uber.org/zap"

	"github.com/mvolkov/tradecore/risk"
)

// Notifier receives position lifecycle events. Implementations must
// tolerate being called from a goroutine and must not panic.
type Notifier interface {
	Notify(ev risk.Event)
}

// Dispatch delivers the event to every notifier on its own goroutine.
func Dispatch(ev risk.Event, notifiers ...Notifier) {
	for _, n := range notifiers {
		go n.Notify(ev)
	}
}

// LogNotifier writes lifecycle events to the structured log.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ev risk.Event) {
	switch ev.Type {
	case risk.EventEntry:
		pos := ev.Position
		n.log.Info("opened",
			zap.String("symbol", ev.Symbol),
			zap.String("side", pos.Side.String()),
			zap.Int64("quantity", pos.Quantity),
			zap.Float64("entry", pos.EntryPrice),
			zap.Float64("stop", pos.StopLoss),
			zap.Float64("take_profit", pos.TakeProfit))
	case risk.EventExit:
		tr := ev.Trade
		n.log.Info("closed",
			zap.String("symbol", ev.Symbol),
			zap.String("reason", ev.Reason),
			zap.Float64("entry", tr.EntryPrice),
			zap.Float64("exit", tr.ExitPrice),
			zap.Float64("pnl", tr.PnL))
	case risk.EventRejected:
		n.log.Warn("order rejected",
			zap.String("symbol", ev.Symbol),
			zap.String("reason", ev.Reason))
	case risk.EventSkipped:
		n.log.Info("signal skipped",
			zap.String("symbol", ev.Symbol),
			zap.String("reason", ev.Reason))
	}
}
