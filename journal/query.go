package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const tradeColumns = `trade_id, run_id, symbol, side, entry_time, exit_time, entry_price, exit_price,
	initial_stop, size, target1_filled, gross_pnl, commission, net_pnl, reason`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(s scanner) (TradeRecord, error) {
	var rec TradeRecord
	err := s.Scan(
		&rec.TradeID,
		&rec.RunID,
		&rec.Symbol,
		&rec.Side,
		&rec.EntryTime,
		&rec.ExitTime,
		&rec.EntryPrice,
		&rec.ExitPrice,
		&rec.InitialStop,
		&rec.Size,
		&rec.Target1Filled,
		&rec.GrossPnL,
		&rec.Commission,
		&rec.NetPnL,
		&rec.Reason,
	)
	return rec, err
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(tradeID string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM closed_trades WHERE trade_id = ?`, tradeID)

	rec, err := scanTrade(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return TradeRecord{}, fmt.Errorf("trade %q not found", tradeID)
		}
		return TradeRecord{}, err
	}
	return rec, nil
}

// ListTradesClosedBetween returns trades whose exit time is within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+tradeColumns+`
		FROM closed_trades
		WHERE exit_time >= ? AND exit_time < ?
		ORDER BY exit_time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return collectTrades(rows)
}

func (j *SQLite) ListTradesByRunID(ctx context.Context, runID string) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM closed_trades
		WHERE run_id = ?
		ORDER BY exit_time ASC`, runID)
	if err != nil {
		return nil, err
	}
	return collectTrades(rows)
}

func collectTrades(rows *sql.Rows) ([]TradeRecord, error) {
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquityBetween returns live snapshots (no run id) within [start, end).
func (j *SQLite) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT time, run_id, capital, unrealized, equity, open_positions
		FROM equity_snapshots
		WHERE run_id = '' AND time >= ? AND time < ?
		ORDER BY time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.Time, &e.RunID, &e.Capital, &e.Unrealized, &e.Equity, &e.OpenPositions); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListOperations returns the newest operations first. limit <= 0 means 100.
func (j *SQLite) ListOperations(since time.Time, limit int) ([]Operation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.Query(`
		SELECT id, time, kind, position_id, symbol, side, price, qty, order_id, detail
		FROM trade_operations
		WHERE time >= ?
		ORDER BY time DESC, id DESC
		LIMIT ?`, since.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Operation
	for rows.Next() {
		var op Operation
		if err := rows.Scan(&op.ID, &op.Time, &op.Kind, &op.PositionID, &op.Symbol, &op.Side,
			&op.Price, &op.Qty, &op.OrderID, &op.Detail); err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DaySummary aggregates the trades closed in [start, end).
type DaySummary struct {
	Trades       int
	Wins         int
	NetPnL       float64
	GrossProfit  float64
	GrossLoss    float64
	ProfitFactor float64
}

func (j *SQLite) Summarize(start, end time.Time) (DaySummary, error) {
	trades, err := j.ListTradesClosedBetween(start, end)
	if err != nil {
		return DaySummary{}, err
	}
	var s DaySummary
	for _, t := range trades {
		s.Trades++
		s.NetPnL += t.NetPnL
		if t.NetPnL > 0 {
			s.Wins++
			s.GrossProfit += t.NetPnL
		} else {
			s.GrossLoss += -t.NetPnL
		}
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	}
	return s, nil
}
