package journal

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the durable journal. All times are stored in UTC so range queries
// compare correctly.
type SQLite struct {
	db *sql.DB
}

var _ Journal = (*SQLite)(nil)

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO closed_trades
		(trade_id, run_id, symbol, side, entry_time, exit_time, entry_price, exit_price,
		 initial_stop, size, target1_filled, gross_pnl, commission, net_pnl, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.RunID, t.Symbol, string(t.Side), t.EntryTime.UTC(), t.ExitTime.UTC(),
		t.EntryPrice, t.ExitPrice, t.InitialStop, t.Size, t.Target1Filled,
		t.GrossPnL, t.Commission, t.NetPnL, t.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity_snapshots
		(time, run_id, capital, unrealized, equity, open_positions)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Time.UTC(), e.RunID, e.Capital, e.Unrealized, e.Equity, e.OpenPositions,
	)
	return err
}

func (j *SQLite) RecordOperation(op Operation) error {
	_, err := j.db.Exec(`
		INSERT INTO trade_operations
		(time, kind, position_id, symbol, side, price, qty, order_id, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.Time.UTC(), string(op.Kind), op.PositionID, op.Symbol, string(op.Side),
		op.Price, op.Qty, op.OrderID, op.Detail,
	)
	return err
}

func (j *SQLite) RecordBacktest(ctx context.Context, r BacktestRun) error {
	var pf sql.NullFloat64
	if !math.IsInf(r.ProfitFactor, 0) && !math.IsNaN(r.ProfitFactor) {
		pf = sql.NullFloat64{Float64: r.ProfitFactor, Valid: true}
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO backtest_runs
		(run_id, created, symbol, strategy, dataset, config, start_time, end_time,
		 trades, wins, losses, start_capital, end_capital, net_pnl, return_pct,
		 win_rate, profit_factor, commission, max_dd_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created.UTC(), r.Symbol, r.Strategy, r.Dataset, r.Config,
		r.Start.UTC(), r.End.UTC(), r.Trades, r.Wins, r.Losses,
		r.StartCapital, r.EndCapital, r.NetPnL, r.ReturnPct,
		r.WinRate, pf, r.Commission, r.MaxDDPct,
	)
	return err
}

func (j *SQLite) GetBacktestRun(ctx context.Context, runID string) (BacktestRun, error) {
	var (
		r  BacktestRun
		pf sql.NullFloat64
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT run_id, created, symbol, strategy, dataset, config, start_time, end_time,
		       trades, wins, losses, start_capital, end_capital, net_pnl, return_pct,
		       win_rate, profit_factor, commission, max_dd_pct
		FROM backtest_runs WHERE run_id = ?`, runID).Scan(
		&r.RunID, &r.Created, &r.Symbol, &r.Strategy, &r.Dataset, &r.Config, &r.Start, &r.End,
		&r.Trades, &r.Wins, &r.Losses, &r.StartCapital, &r.EndCapital, &r.NetPnL, &r.ReturnPct,
		&r.WinRate, &pf, &r.Commission, &r.MaxDDPct,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return BacktestRun{}, fmt.Errorf("backtest run %q not found", runID)
		}
		return BacktestRun{}, err
	}
	if pf.Valid {
		r.ProfitFactor = pf.Float64
	} else if r.Wins > 0 {
		r.ProfitFactor = math.Inf(1)
	}
	return r, nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
