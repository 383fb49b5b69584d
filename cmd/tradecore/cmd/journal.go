package cmd

import (
	"fmt"

	"github.com/mvolkov/tradecore/config"
	"github.com/mvolkov/tradecore/journal"
)

// openJournal builds the configured ledger sink. A memory journal
// returns nil: the caller's own in-memory ledger already covers it.
func openJournal(cfg *config.Config) (journal.Journal, error) {
	switch cfg.Journal.Type {
	case "sqlite":
		j, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		return j, nil
	case "csv":
		j, err := journal.NewCSV(cfg.Journal.TradesFile, cfg.Journal.EquityFile)
		if err != nil {
			return nil, fmt.Errorf("open csv journal: %w", err)
		}
		return j, nil
	default:
		return nil, nil
	}
}
