// Package backtest replays historical bars through the full decision
// pipeline against the simulated execution engine. A run with the same
// data and configuration always produces the same ledger.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mvolkov/tradecore/indicators"
	"github.com/mvolkov/tradecore/internal/id"
	"github.com/mvolkov/tradecore/journal"
	"github.com/mvolkov/tradecore/market"
	"github.com/mvolkov/tradecore/risk"
	"github.com/mvolkov/tradecore/sim"
	"github.com/mvolkov/tradecore/strategy"
)

// ErrInsufficientHistory marks a symbol whose series is shorter than
// MinDataPoints. The symbol is excluded from the run; other symbols
// proceed.
var ErrInsufficientHistory = errors.New("backtest: insufficient history")

// Config carries everything a run needs beyond the data itself.
type Config struct {
	// Symbols fixes the processing order. When two symbols print a bar
	// at the same timestamp, the earlier entry here trades first, which
	// keeps allocation from the shared capital pool deterministic.
	Symbols []string

	InitialCapital float64
	MinDataPoints  int
	CommissionRate float64

	Indicators indicators.Params
	Limits     risk.Limits
}

// Result is the complete outcome of one run.
type Result struct {
	RunID string
	Start time.Time
	End   time.Time

	FinalCapital float64
	Trades       []journal.TradeRecord
	Equity       []journal.EquityPoint
	Summary      Summary

	Rejections int
	Skipped    int

	// SymbolErrors holds per-symbol exclusions; the run itself
	// succeeded for every symbol not listed here.
	SymbolErrors map[string]error
}

// Engine owns one run's configuration. Data is supplied to Run, so one
// Engine can replay several datasets.
type Engine struct {
	cfg      Config
	combiner *strategy.Combiner
	extra    journal.Journal
	log      *zap.Logger
}

// New builds an engine. extra, when non-nil, receives every trade and
// equity record in addition to the in-memory ledger returned in the
// Result. A nil logger disables logging.
func New(cfg Config, combiner *strategy.Combiner, extra journal.Journal, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{cfg: cfg, combiner: combiner, extra: extra, log: log}
}

type symbolState struct {
	bars    []market.Bar
	prev    indicators.Snapshot
	hasPrev bool
	last    market.Bar
}

// Run replays the series through indicators, strategies, the risk
// manager and the fill simulator, one merged time line for all
// symbols. Positions still open after a symbol's final bar are closed
// at that bar's close with reason end_of_data.
func (e *Engine) Run(ctx context.Context, series map[string]*market.Series) (*Result, error) {
	res := &Result{
		RunID:        id.New(),
		SymbolErrors: make(map[string]error),
	}

	rank := make(map[string]int, len(e.cfg.Symbols))
	states := make(map[string]*symbolState)
	var timeline []market.Bar

	for i, sym := range e.cfg.Symbols {
		s, ok := series[sym]
		if !ok || s.Len() < e.cfg.MinDataPoints {
			n := 0
			if ok {
				n = s.Len()
			}
			res.SymbolErrors[sym] = fmt.Errorf("%w: %s has %d bars, need %d",
				ErrInsufficientHistory, sym, n, e.cfg.MinDataPoints)
			e.log.Warn("symbol excluded from run",
				zap.String("symbol", sym),
				zap.Int("bars", n),
				zap.Int("min_data_points", e.cfg.MinDataPoints))
			continue
		}
		rank[sym] = i
		states[sym] = &symbolState{bars: make([]market.Bar, 0, s.Len())}
		timeline = append(timeline, s.Bars...)
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("no tradable symbols: %w", ErrInsufficientHistory)
	}

	sort.SliceStable(timeline, func(i, j int) bool {
		if !timeline[i].Time.Equal(timeline[j].Time) {
			return timeline[i].Time.Before(timeline[j].Time)
		}
		return rank[timeline[i].Symbol] < rank[timeline[j].Symbol]
	})
	res.Start = timeline[0].Time
	res.End = timeline[len(timeline)-1].Time

	mem := journal.NewMemory()
	sink := journal.Journal(mem)
	if e.extra != nil {
		sink = journal.Tee{mem, e.extra}
	}

	mgr := risk.NewManager(e.cfg.Limits, e.cfg.InitialCapital, sim.NewEngine(e.cfg.CommissionRate), sink, e.log)
	warm := e.cfg.Indicators.Warmup()

	for _, bar := range timeline {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		st := states[bar.Symbol]
		st.bars = append(st.bars, bar)
		st.last = bar

		sig := strategy.Signal{Strategy: "combined", Direction: strategy.Flat, Time: bar.Time}
		if len(st.bars) >= warm {
			curr, err := indicators.Compute(st.bars, e.cfg.Indicators)
			if err != nil {
				return nil, fmt.Errorf("compute %s at %s: %w", bar.Symbol, bar.Time, err)
			}
			if st.hasPrev && len(st.bars) >= e.cfg.MinDataPoints {
				sig = e.evaluate(st.prev, curr, bar)
			}
			st.prev, st.hasPrev = curr, true
		}

		events, err := mgr.OnBar(ctx, bar, sig)
		if err != nil {
			return nil, err
		}
		e.tally(res, events)

		if err := sink.RecordEquity(journal.EquityPoint{
			Time:          bar.Time,
			Capital:       mgr.Capital(),
			UnrealizedPnL: mgr.UnrealizedPnL(),
		}); err != nil {
			return nil, err
		}
	}

	// Survivors close at their own symbol's final bar.
	for _, sym := range e.cfg.Symbols {
		st, ok := states[sym]
		if !ok {
			continue
		}
		events, err := mgr.ForceExit(ctx, st.last, risk.ExitEndOfData)
		if err != nil {
			return nil, err
		}
		e.tally(res, events)
	}

	res.FinalCapital = mgr.Capital()
	res.Trades = mem.Trades()
	res.Equity = mem.Equity()
	res.Summary = Summarize(e.cfg.InitialCapital, res.FinalCapital, res.Trades, res.Equity, res.Start, res.End)

	e.log.Info("run complete",
		zap.String("run_id", res.RunID),
		zap.Int("trades", res.Summary.TotalTrades),
		zap.Float64("final_capital", res.FinalCapital))
	return res, nil
}

func (e *Engine) evaluate(prev, curr indicators.Snapshot, bar market.Bar) strategy.Signal {
	strats := e.combiner.Strategies()
	votes := make([]strategy.Signal, 0, len(strats))
	for _, s := range strats {
		votes = append(votes, s.Evaluate(prev, curr, bar))
	}
	return e.combiner.Combine(votes, bar.Time)
}

func (e *Engine) tally(res *Result, events []risk.Event) {
	for _, ev := range events {
		switch ev.Type {
		case risk.EventRejected:
			res.Rejections++
		case risk.EventSkipped:
			res.Skipped++
		}
	}
}
