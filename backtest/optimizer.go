package backtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mvolkov/tradecore/indicators"
	"github.com/mvolkov/tradecore/market"
	"github.com/mvolkov/tradecore/risk"
	"github.com/mvolkov/tradecore/strategy"
)

// Metric scores one run's summary. Higher is better.
type Metric func(Summary) float64

func ByTotalReturn(s Summary) float64  { return s.TotalReturn }
func ByAnnualReturn(s Summary) float64 { return s.AnnualReturn }
func ByProfitFactor(s Summary) float64 { return s.ProfitFactor }
func ByWinRate(s Summary) float64      { return s.WinRate }

// MetricByName resolves a configured metric name.
func MetricByName(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "total_return":
		return ByTotalReturn, nil
	case "annual_return":
		return ByAnnualReturn, nil
	case "profit_factor":
		return ByProfitFactor, nil
	case "win_rate":
		return ByWinRate, nil
	default:
		return nil, fmt.Errorf("unknown metric %q (supported: total_return, annual_return, profit_factor, win_rate)", name)
	}
}

// Variant is one complete parameter combination under evaluation.
// Fields not covered by the grid keep the optimizer's base values.
type Variant struct {
	Indicators indicators.Params
	Thresholds strategy.Config
	Limits     risk.Limits
}

// Grid lists candidate values per tunable parameter. An empty slice
// keeps the base value, so the number of combinations is the product
// of the non-empty lists.
type Grid struct {
	EMAShort        []int
	EMALong         []int
	RSIPeriod       []int
	RSIOversold     []float64
	RSIOverbought   []float64
	BollingerPeriod []int
	BollingerStdDev []float64
	MinVolumeFactor []float64

	StopLossPercent   []float64
	TakeProfitPercent []float64
	MaxHoldingDays    []int
}

// DefaultGrid covers the ranges worth sweeping when none are given.
func DefaultGrid() Grid {
	return Grid{
		EMAShort:          []int{5, 8, 10},
		EMALong:           []int{15, 20, 25},
		RSIOversold:       []float64{25, 30, 35},
		RSIOverbought:     []float64{65, 70, 75},
		StopLossPercent:   []float64{2.0, 2.5, 3.0},
		TakeProfitPercent: []float64{4.0, 5.0, 6.0},
	}
}

func (g Grid) expand(base Variant) []Variant {
	out := []Variant{base}
	out = expandInt(out, g.EMAShort, func(v *Variant, x int) { v.Indicators.EMAShort = x })
	out = expandInt(out, g.EMALong, func(v *Variant, x int) { v.Indicators.EMALong = x })
	out = expandInt(out, g.RSIPeriod, func(v *Variant, x int) { v.Indicators.RSIPeriod = x })
	out = expandInt(out, g.BollingerPeriod, func(v *Variant, x int) { v.Indicators.BollingerPeriod = x })
	out = expandFloat(out, g.BollingerStdDev, func(v *Variant, x float64) { v.Indicators.BollingerStdDev = x })
	out = expandFloat(out, g.RSIOversold, func(v *Variant, x float64) { v.Thresholds.RSIOversold = x })
	out = expandFloat(out, g.RSIOverbought, func(v *Variant, x float64) { v.Thresholds.RSIOverbought = x })
	out = expandFloat(out, g.MinVolumeFactor, func(v *Variant, x float64) { v.Thresholds.MinVolumeFactor = x })
	out = expandFloat(out, g.StopLossPercent, func(v *Variant, x float64) { v.Limits.StopLossPercent = x })
	out = expandFloat(out, g.TakeProfitPercent, func(v *Variant, x float64) { v.Limits.TakeProfitPercent = x })
	out = expandInt(out, g.MaxHoldingDays, func(v *Variant, x int) { v.Limits.MaxHoldingDays = x })
	return out
}

func expandInt(in []Variant, vals []int, set func(*Variant, int)) []Variant {
	if len(vals) == 0 {
		return in
	}
	out := make([]Variant, 0, len(in)*len(vals))
	for _, v := range in {
		for _, x := range vals {
			w := v
			set(&w, x)
			out = append(out, w)
		}
	}
	return out
}

func expandFloat(in []Variant, vals []float64, set func(*Variant, float64)) []Variant {
	if len(vals) == 0 {
		return in
	}
	out := make([]Variant, 0, len(in)*len(vals))
	for _, v := range in {
		for _, x := range vals {
			w := v
			set(&w, x)
			out = append(out, w)
		}
	}
	return out
}

// Candidate is one evaluated combination. A non-nil Err marks a
// combination that could not run; its score is negative infinity.
type Candidate struct {
	Variant Variant
	Summary Summary
	Score   float64
	Err     error
}

// OptimizationResult ranks every combination of one sweep.
type OptimizationResult struct {
	Best         Candidate
	Candidates   []Candidate // ranked best to worst
	Combinations int
	Elapsed      time.Duration
}

// OptimizerConfig fixes everything a sweep shares across combinations.
type OptimizerConfig struct {
	Base       Config          // engine config template; Indicators and Limits seed the base variant
	Thresholds strategy.Config // base decision thresholds
	Mode       strategy.Mode   // combiner mode used for every combination
	Active     []string        // strategy names, in combiner order
	Metric     Metric          // nil means ByTotalReturn
	Workers    int             // concurrent evaluations; values below 1 mean 1
}

// Optimizer sweeps strategy parameters over one dataset, re-running
// the engine per combination and ranking results by the metric.
type Optimizer struct {
	cfg OptimizerConfig
	log *zap.Logger
}

func NewOptimizer(cfg OptimizerConfig, log *zap.Logger) *Optimizer {
	if cfg.Metric == nil {
		cfg.Metric = ByTotalReturn
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Optimizer{cfg: cfg, log: log}
}

// Run evaluates every grid combination against the series and returns
// the ranking. Combinations run concurrently but the ranking is
// deterministic: equal scores keep grid order.
func (o *Optimizer) Run(ctx context.Context, series map[string]*market.Series, grid Grid) (*OptimizationResult, error) {
	base := Variant{
		Indicators: o.cfg.Base.Indicators,
		Thresholds: o.cfg.Thresholds,
		Limits:     o.cfg.Base.Limits,
	}
	variants := grid.expand(base)

	o.log.Info("starting parameter sweep",
		zap.Int("combinations", len(variants)),
		zap.Int("workers", o.cfg.Workers))
	started := time.Now()

	results := make([]Candidate, len(variants))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < o.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = o.evaluate(ctx, variants[i], series)
			}
		}()
	}

feed:
	for i := range variants {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if results[0].Err != nil {
		return nil, fmt.Errorf("no combination produced a result: %w", results[0].Err)
	}

	res := &OptimizationResult{
		Best:         results[0],
		Candidates:   results,
		Combinations: len(variants),
		Elapsed:      time.Since(started),
	}
	o.log.Info("parameter sweep complete",
		zap.Int("combinations", res.Combinations),
		zap.Duration("elapsed", res.Elapsed),
		zap.Float64("best_score", res.Best.Score))
	return res, nil
}

func (o *Optimizer) evaluate(ctx context.Context, v Variant, series map[string]*market.Series) Candidate {
	fail := func(err error) Candidate {
		return Candidate{Variant: v, Score: math.Inf(-1), Err: err}
	}

	// The grid can produce combinations the config layer would reject.
	if v.Indicators.EMAShort >= v.Indicators.EMALong {
		return fail(fmt.Errorf("ema_short %d must be below ema_long %d", v.Indicators.EMAShort, v.Indicators.EMALong))
	}
	if v.Thresholds.RSIOversold >= v.Thresholds.RSIOverbought {
		return fail(fmt.Errorf("rsi_oversold %.1f must be below rsi_overbought %.1f", v.Thresholds.RSIOversold, v.Thresholds.RSIOverbought))
	}

	strats := make([]strategy.Strategy, 0, len(o.cfg.Active))
	for _, name := range o.cfg.Active {
		s, err := strategy.ByName(name, v.Thresholds)
		if err != nil {
			return fail(err)
		}
		strats = append(strats, s)
	}

	cfg := o.cfg.Base
	cfg.Indicators = v.Indicators
	cfg.Limits = v.Limits

	eng := New(cfg, strategy.NewCombiner(o.cfg.Mode, strats), nil, zap.NewNop())
	run, err := eng.Run(ctx, series)
	if err != nil {
		return fail(err)
	}
	return Candidate{Variant: v, Summary: run.Summary, Score: o.cfg.Metric(run.Summary)}
}
