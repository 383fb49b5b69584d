package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvolkov/tradecore/backtest"
	"github.com/mvolkov/tradecore/config"
	"github.com/mvolkov/tradecore/logging"
	"github.com/mvolkov/tradecore/market"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical bars through the strategy pipeline",
	Long: `Backtest replays a CSV of historical bars through the configured
strategies, risk limits and the simulated execution engine, then prints
a performance summary.

The CSV columns are: time,symbol,open,high,low,close,volume with RFC3339
timestamps.

Example:
  tradecore backtest --config tradecore.yaml --data bars.csv`,
	RunE: runBacktest,
}

var (
	btConfigPath string
	btDataPath   string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btConfigPath, "config", "c", "tradecore.yaml", "path to config file")
	backtestCmd.Flags().StringVarP(&btDataPath, "data", "d", "", "path to bar CSV (required)")
	backtestCmd.MarkFlagRequired("data")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(btConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logging.NewConsole(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	feed, err := market.OpenCSVFeed(btDataPath)
	if err != nil {
		return fmt.Errorf("open data: %w", err)
	}
	series, dropped, err := market.Collect(feed)
	if err != nil {
		return fmt.Errorf("load data: %w", err)
	}

	extra, err := openJournal(cfg)
	if err != nil {
		return err
	}
	if extra != nil {
		defer extra.Close()
	}

	combiner, err := cfg.BuildCombiner()
	if err != nil {
		return fmt.Errorf("build strategies: %w", err)
	}

	eng := backtest.New(backtest.Config{
		Symbols:        cfg.Market.Symbols,
		InitialCapital: cfg.Account.InitialCapital,
		MinDataPoints:  cfg.Market.MinDataPoints,
		CommissionRate: cfg.Risk.CommissionRate,
		Indicators:     cfg.IndicatorParams(),
		Limits:         cfg.RiskLimits(),
	}, combiner, extra, log)

	res, err := eng.Run(context.Background(), series)
	if err != nil {
		return fmt.Errorf("run backtest: %w", err)
	}
	for sym, derr := range dropped {
		res.SymbolErrors[sym] = derr
	}

	printResult(cfg, res)
	return nil
}

func printResult(cfg *config.Config, res *backtest.Result) {
	s := res.Summary

	fmt.Printf("\nBacktest complete (run %s)\n", res.RunID)
	fmt.Printf("  Period:          %s .. %s\n", res.Start.Format("2006-01-02"), res.End.Format("2006-01-02"))
	fmt.Printf("  Final capital:   %.2f %s\n", res.FinalCapital, cfg.Account.Currency)
	fmt.Printf("  Total return:    %.2f%%\n", s.TotalReturn)
	fmt.Printf("  Annual return:   %.2f%%\n", s.AnnualReturn)
	fmt.Printf("  Max drawdown:    %.2f%%\n", s.MaxDrawdown)
	fmt.Printf("  Trades:          %d (%d won / %d lost, win rate %.1f%%)\n",
		s.TotalTrades, s.WinningTrades, s.LosingTrades, s.WinRate)
	fmt.Printf("  Profit factor:   %.2f\n", s.ProfitFactor)
	fmt.Printf("  Avg duration:    %s\n", s.AvgDuration)
	fmt.Printf("  Commission paid: %.2f\n", s.TotalCommission)
	if res.Skipped > 0 || res.Rejections > 0 {
		fmt.Printf("  Skipped signals: %d, rejected orders: %d\n", res.Skipped, res.Rejections)
	}
	for sym, err := range res.SymbolErrors {
		fmt.Printf("  Excluded %s: %v\n", sym, err)
	}
}
