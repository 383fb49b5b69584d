package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mvolkov/tradecore/broker"
)

// SQLite persists the ledger to a SQLite database. It is the
// structured report sink consumed by external rendering tools.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, symbol, side, quantity, entry_time, entry_price,
		 exit_time, exit_price, exit_reason, pnl, commission)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Symbol, t.Side.String(), t.Quantity,
		t.EntryTime, t.EntryPrice, t.ExitTime, t.ExitPrice,
		t.ExitReason, t.PnL, t.Commission,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquityPoint) error {
	_, err := j.db.Exec(`
		INSERT INTO equity (time, capital, unrealized_pnl)
		VALUES (?, ?, ?)`,
		e.Time, e.Capital, e.UnrealizedPnL,
	)
	return err
}

// TradesBySymbol returns the symbol's closed trades ordered by exit
// time.
func (j *SQLite) TradesBySymbol(symbol string) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT trade_id, symbol, side, quantity, entry_time, entry_price,
		       exit_time, exit_price, exit_reason, pnl, commission
		FROM trades WHERE symbol = ? ORDER BY exit_time`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

// TradesClosedBetween returns trades with exit_time in [from, to).
func (j *SQLite) TradesClosedBetween(from, to time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT trade_id, symbol, side, quantity, entry_time, entry_price,
		       exit_time, exit_price, exit_reason, pnl, commission
		FROM trades WHERE exit_time >= ? AND exit_time < ? ORDER BY exit_time`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTrades(rows)
}

func scanTrades(rows *sql.Rows) ([]TradeRecord, error) {
	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		var side string
		if err := rows.Scan(&t.ID, &t.Symbol, &side, &t.Quantity,
			&t.EntryTime, &t.EntryPrice, &t.ExitTime, &t.ExitPrice,
			&t.ExitReason, &t.PnL, &t.Commission); err != nil {
			return nil, err
		}
		t.Side = broker.Buy
		if side == "sell" {
			t.Side = broker.Sell
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (j *SQLite) Close() error { return j.db.Close() }
