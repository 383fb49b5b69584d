package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mvolkov/tradecore/bot"
	"github.com/mvolkov/tradecore/config"
	"github.com/mvolkov/tradecore/journal"
	"github.com/mvolkov/tradecore/logging"
	"github.com/mvolkov/tradecore/market"
	"github.com/mvolkov/tradecore/notify"
	"github.com/mvolkov/tradecore/risk"
	"github.com/mvolkov/tradecore/sim"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the live trading loop in paper mode",
	Long: `Run polls a bar CSV on the configured interval and trades it
against the simulated execution engine. A market data collector appends
fresh bars to the file; the bot picks them up on the next poll.

Environment is loaded from .env when present.

Example:
  tradecore run --config tradecore.yaml --data live-bars.csv`,
	RunE: runRun,
}

var (
	runConfigPath string
	runDataPath   string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "tradecore.yaml", "path to config file")
	runCmd.Flags().StringVarP(&runDataPath, "data", "d", "", "path to polled bar CSV (required)")
	runCmd.MarkFlagRequired("data")
}

// csvSource re-reads the data file on every poll, picking up rows the
// collector appended since the previous cycle.
type csvSource struct {
	path string
}

func (s *csvSource) History(_ context.Context, symbol string, _ int) ([]market.Bar, error) {
	feed, err := market.OpenCSVFeed(s.path)
	if err != nil {
		return nil, err
	}
	series, dropped, err := market.Collect(feed)
	if err != nil {
		return nil, err
	}
	if derr, bad := dropped[symbol]; bad {
		return nil, derr
	}
	ser, ok := series[symbol]
	if !ok {
		return nil, nil
	}
	return ser.Bars, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	if p := os.Getenv("TRADECORE_CONFIG"); p != "" && !cmd.Flags().Changed("config") {
		runConfigPath = p
	}

	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	extra, err := openJournal(cfg)
	if err != nil {
		return err
	}
	sink := journal.Journal(journal.NewMemory())
	if extra != nil {
		defer extra.Close()
		sink = extra
	}

	interval, err := cfg.Market.ParseUpdateInterval()
	if err != nil {
		return err
	}
	combiner, err := cfg.BuildCombiner()
	if err != nil {
		return fmt.Errorf("build strategies: %w", err)
	}

	exec := sim.NewEngine(cfg.Risk.CommissionRate)
	mgr := risk.NewManager(cfg.RiskLimits(), cfg.Account.InitialCapital, exec, sink, log)

	if cfg.Metrics.Enabled {
		go func() {
			log.Info("metrics endpoint up", zap.String("addr", cfg.Metrics.ListenAddr))
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.Metrics.ListenAddr, mux); err != nil {
				log.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	b := bot.New(bot.Options{
		Symbols:        cfg.Market.Symbols,
		UpdateInterval: interval,
		MinDataPoints:  cfg.Market.MinDataPoints,
		Indicators:     cfg.IndicatorParams(),
		EmitMetrics:    cfg.Metrics.Enabled,
	}, combiner, mgr, exec, []notify.Notifier{notify.NewLogNotifier(log)}, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = b.Run(ctx, &csvSource{path: runDataPath})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
