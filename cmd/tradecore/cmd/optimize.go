package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvolkov/tradecore/backtest"
	"github.com/mvolkov/tradecore/config"
	"github.com/mvolkov/tradecore/logging"
	"github.com/mvolkov/tradecore/market"
	"github.com/mvolkov/tradecore/strategy"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Sweep strategy parameters over historical bars",
	Long: `Optimize re-runs the backtest over a grid of strategy parameters
and ranks the combinations by the chosen metric. The configured values
seed the grid; EMA periods, RSI thresholds, stop loss and take profit
are swept over their standard ranges.

Example:
  tradecore optimize --config tradecore.yaml --data bars.csv --metric profit_factor`,
	RunE: runOptimize,
}

var (
	optConfigPath string
	optDataPath   string
	optMetric     string
	optWorkers    int
	optTop        int
)

func init() {
	rootCmd.AddCommand(optimizeCmd)

	optimizeCmd.Flags().StringVarP(&optConfigPath, "config", "c", "tradecore.yaml", "path to config file")
	optimizeCmd.Flags().StringVarP(&optDataPath, "data", "d", "", "path to bar CSV (required)")
	optimizeCmd.Flags().StringVarP(&optMetric, "metric", "m", "total_return", "ranking metric (total_return, annual_return, profit_factor, win_rate)")
	optimizeCmd.Flags().IntVarP(&optWorkers, "workers", "w", 4, "concurrent evaluations")
	optimizeCmd.Flags().IntVarP(&optTop, "top", "t", 10, "combinations to print")
	optimizeCmd.MarkFlagRequired("data")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(optConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logging.NewConsole(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	metric, err := backtest.MetricByName(optMetric)
	if err != nil {
		return err
	}
	mode, err := strategy.ParseMode(cfg.Strategy.Mode)
	if err != nil {
		return err
	}

	feed, err := market.OpenCSVFeed(optDataPath)
	if err != nil {
		return fmt.Errorf("open data: %w", err)
	}
	series, dropped, err := market.Collect(feed)
	if err != nil {
		return fmt.Errorf("load data: %w", err)
	}
	for sym, derr := range dropped {
		fmt.Printf("Excluded %s: %v\n", sym, derr)
	}

	opt := backtest.NewOptimizer(backtest.OptimizerConfig{
		Base: backtest.Config{
			Symbols:        cfg.Market.Symbols,
			InitialCapital: cfg.Account.InitialCapital,
			MinDataPoints:  cfg.Market.MinDataPoints,
			CommissionRate: cfg.Risk.CommissionRate,
			Indicators:     cfg.IndicatorParams(),
			Limits:         cfg.RiskLimits(),
		},
		Thresholds: cfg.StrategyThresholds(),
		Mode:       mode,
		Active:     cfg.Strategy.Active,
		Metric:     metric,
		Workers:    optWorkers,
	}, log)

	res, err := opt.Run(context.Background(), series, backtest.DefaultGrid())
	if err != nil {
		return fmt.Errorf("run optimization: %w", err)
	}

	printOptimization(res, optMetric, optTop)
	return nil
}

func printOptimization(res *backtest.OptimizationResult, metric string, top int) {
	fmt.Printf("\nOptimization complete: %d combinations in %s\n", res.Combinations, res.Elapsed.Round(time.Millisecond))
	fmt.Printf("Ranked by %s\n\n", metric)
	fmt.Printf("%4s %9s  %-40s %8s %8s %7s\n", "#", "score", "parameters", "trades", "return%", "win%")

	if top > len(res.Candidates) {
		top = len(res.Candidates)
	}
	for i := 0; i < top; i++ {
		c := res.Candidates[i]
		if c.Err != nil {
			fmt.Printf("%4d %9s  %v\n", i+1, "-", c.Err)
			continue
		}
		params := fmt.Sprintf("ema %d/%d rsi %.0f/%.0f stop %.1f take %.1f",
			c.Variant.Indicators.EMAShort, c.Variant.Indicators.EMALong,
			c.Variant.Thresholds.RSIOversold, c.Variant.Thresholds.RSIOverbought,
			c.Variant.Limits.StopLossPercent, c.Variant.Limits.TakeProfitPercent)
		fmt.Printf("%4d %9.2f  %-40s %8d %8.2f %7.1f\n",
			i+1, c.Score, params,
			c.Summary.TotalTrades, c.Summary.TotalReturn, c.Summary.WinRate)
	}

	best := res.Best.Variant
	fmt.Printf("\nBest parameters:\n")
	fmt.Printf("  ema_short:           %d\n", best.Indicators.EMAShort)
	fmt.Printf("  ema_long:            %d\n", best.Indicators.EMALong)
	fmt.Printf("  rsi_oversold:        %.1f\n", best.Thresholds.RSIOversold)
	fmt.Printf("  rsi_overbought:      %.1f\n", best.Thresholds.RSIOverbought)
	fmt.Printf("  stop_loss_percent:   %.1f\n", best.Limits.StopLossPercent)
	fmt.Printf("  take_profit_percent: %.1f\n", best.Limits.TakeProfitPercent)
}
