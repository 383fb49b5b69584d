package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tradecore",
	Short: "An algorithmic equity trading engine and backtester",
	Long: `Tradecore is an algorithmic trading decision core written in Go.

It provides tools for:
  - Backtesting indicator-driven strategies against historical bars
  - Paper trading against a polled data file
  - Risk-managed position sizing with stop, trailing and take-profit exits
  - Trade journaling to CSV or SQLite with equity curves`,
}

// Execute runs the root command tree.
func Execute() error {
	return rootCmd.Execute()
}
