// Package bot runs the live trading loop: poll the data source on a
// fixed cadence, push fresh bars through the decision pipeline, and
// route orders to the configured execution layer.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mvolkov/tradecore/broker"
	"github.com/mvolkov/tradecore/indicators"
	"github.com/mvolkov/tradecore/market"
	"github.com/mvolkov/tradecore/metrics"
	"github.com/mvolkov/tradecore/notify"
	"github.com/mvolkov/tradecore/risk"
	"github.com/mvolkov/tradecore/strategy"
)

// Source supplies a symbol's trailing bar history. Implementations
// call the market data backend; tests supply canned bars. The returned
// bars must be in ascending time order.
type Source interface {
	History(ctx context.Context, symbol string, minBars int) ([]market.Bar, error)
}

// Options configures a Bot.
type Options struct {
	Symbols        []string
	UpdateInterval time.Duration
	MinDataPoints  int
	Indicators     indicators.Params

	// EmitMetrics enables the Prometheus collectors. Off in tests so
	// parallel bots do not fight over shared counters.
	EmitMetrics bool
}

type symbolState struct {
	series  *market.Series
	prev    indicators.Snapshot
	hasPrev bool
}

// Bot polls all symbols once per interval. Symbols are processed
// concurrently; the risk manager serializes every capital and position
// mutation, so ordering between symbols within one poll is not
// guaranteed (unlike a backtest).
type Bot struct {
	opts      Options
	combiner  *strategy.Combiner
	mgr       *risk.Manager
	exec      broker.Broker
	notifiers []notify.Notifier
	log       *zap.Logger

	states map[string]*symbolState
}

func New(opts Options, combiner *strategy.Combiner, mgr *risk.Manager, exec broker.Broker, notifiers []notify.Notifier, log *zap.Logger) *Bot {
	if log == nil {
		log = zap.NewNop()
	}
	states := make(map[string]*symbolState, len(opts.Symbols))
	for _, sym := range opts.Symbols {
		s, _ := market.NewSeries(sym, nil)
		states[sym] = &symbolState{series: s}
	}
	return &Bot{
		opts:      opts,
		combiner:  combiner,
		mgr:       mgr,
		exec:      exec,
		notifiers: notifiers,
		log:       log,
		states:    states,
	}
}

// Run reconciles open positions with the broker, then polls until the
// context is cancelled. Cancellation is honored between polls and
// between bars, never mid-order.
func (b *Bot) Run(ctx context.Context, src Source) error {
	infos, err := b.exec.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("reconcile positions: %w", err)
	}
	b.mgr.Reconcile(infos, time.Now().UTC())

	ticker := time.NewTicker(b.opts.UpdateInterval)
	defer ticker.Stop()

	b.log.Info("bot started",
		zap.Strings("symbols", b.opts.Symbols),
		zap.Duration("update_interval", b.opts.UpdateInterval))

	for {
		b.Poll(ctx, src)

		select {
		case <-ctx.Done():
			b.log.Info("bot stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll runs one polling cycle across all symbols.
func (b *Bot) Poll(ctx context.Context, src Source) {
	minBars := b.opts.MinDataPoints
	if w := b.opts.Indicators.Warmup() + 1; w > minBars {
		minBars = w
	}

	var wg sync.WaitGroup
	for _, sym := range b.opts.Symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			if err := b.pollSymbol(ctx, src, sym, minBars); err != nil {
				b.log.Error("poll failed",
					zap.String("symbol", sym),
					zap.Error(err))
			}
		}(sym)
	}
	wg.Wait()

	if b.opts.EmitMetrics {
		metrics.OpenPositions.Set(float64(b.mgr.OpenCount()))
		metrics.AccountEquity.Set(b.mgr.Capital() + b.mgr.UnrealizedPnL())
	}
}

func (b *Bot) pollSymbol(ctx context.Context, src Source, sym string, minBars int) error {
	bars, err := src.History(ctx, sym, minBars)
	if err != nil {
		return err
	}

	st := b.states[sym]
	for _, bar := range bars {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if st.series.Len() > 0 && !bar.Time.After(st.series.Last().Time) {
			continue // already seen
		}
		if err := st.series.Append(bar); err != nil {
			return err
		}
		if err := b.processBar(ctx, st, bar); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) processBar(ctx context.Context, st *symbolState, bar market.Bar) error {
	sig := strategy.Signal{Strategy: "combined", Direction: strategy.Flat, Time: bar.Time}

	if st.series.Len() >= b.opts.Indicators.Warmup() {
		curr, err := indicators.Compute(st.series.Bars, b.opts.Indicators)
		if err != nil {
			return err
		}
		if st.hasPrev && st.series.Len() >= b.opts.MinDataPoints {
			strats := b.combiner.Strategies()
			votes := make([]strategy.Signal, 0, len(strats))
			for _, s := range strats {
				votes = append(votes, s.Evaluate(st.prev, curr, bar))
			}
			sig = b.combiner.Combine(votes, bar.Time)
		}
		st.prev, st.hasPrev = curr, true
	}

	if b.opts.EmitMetrics && sig.Direction != strategy.Flat {
		metrics.SignalsTotal.WithLabelValues(sig.Strategy, sig.Direction.String()).Inc()
	}

	events, err := b.mgr.OnBar(ctx, bar, sig)
	if err != nil {
		return err
	}
	for _, ev := range events {
		b.observe(ev)
		notify.Dispatch(ev, b.notifiers...)
	}
	return nil
}

func (b *Bot) observe(ev risk.Event) {
	if !b.opts.EmitMetrics {
		return
	}
	switch ev.Type {
	case risk.EventEntry:
		metrics.OrdersSubmitted.Inc()
	case risk.EventExit:
		metrics.OrdersSubmitted.Inc()
		metrics.TradesClosed.WithLabelValues(ev.Reason).Inc()
	case risk.EventRejected:
		metrics.OrdersSubmitted.Inc()
		metrics.OrderRejections.WithLabelValues(ev.Reason).Inc()
	}
}
