// Package db persists positions, orders and fills in SQLite.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("record not found")

// InsertPosition stores a freshly opened position.
func (d *Database) InsertPosition(ctx context.Context, p Position) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO positions (
			id, symbol, side, qty, entry_price, stop_price, target_price,
			trailing_pct, opened_at, fees
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.Symbol, p.Side, p.Qty, p.EntryPrice, p.StopPrice, p.TargetPrice,
		p.TrailingPct, p.OpenedAt.UTC(), p.Fees,
	)
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// MarkPositionClosed finalizes a position row. It only touches rows that
// are still open, so a second close of the same id affects zero rows and
// reports false.
func (d *Database) MarkPositionClosed(ctx context.Context, id string, closePrice, realizedPnL, fees float64, reason string, closedAt time.Time) (bool, error) {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE positions
		SET closed_at = ?, close_price = ?, close_reason = ?,
		    realized_pnl = ?, fees = fees + ?
		WHERE id = ? AND closed_at IS NULL
	`, closedAt.UTC(), closePrice, reason, realizedPnL, fees, id)
	if err != nil {
		return false, fmt.Errorf("close position: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdatePositionStop persists a moved stop (trailing).
func (d *Database) UpdatePositionStop(ctx context.Context, id string, stopPrice float64) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE positions SET stop_price = ? WHERE id = ? AND closed_at IS NULL
	`, stopPrice, id)
	if err != nil {
		return fmt.Errorf("update position stop: %w", err)
	}
	return nil
}

// GetOpenPositions returns all positions without a closed_at stamp.
func (d *Database) GetOpenPositions(ctx context.Context) ([]Position, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, side, qty, entry_price, stop_price, target_price,
		       trailing_pct, opened_at, fees
		FROM positions
		WHERE closed_at IS NULL
		ORDER BY opened_at
	`)
	if err != nil {
		return nil, fmt.Errorf("query open positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.ID, &p.Symbol, &p.Side, &p.Qty, &p.EntryPrice,
			&p.StopPrice, &p.TargetPrice, &p.TrailingPct, &p.OpenedAt, &p.Fees); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// GetPosition returns a single position row by id.
func (d *Database) GetPosition(ctx context.Context, id string) (Position, error) {
	var (
		p        Position
		closedAt sql.NullTime
		reason   sql.NullString
	)
	err := d.DB.QueryRowContext(ctx, `
		SELECT id, symbol, side, qty, entry_price, stop_price, target_price,
		       trailing_pct, opened_at, closed_at, close_price, close_reason,
		       realized_pnl, fees
		FROM positions WHERE id = ?
	`, id).Scan(&p.ID, &p.Symbol, &p.Side, &p.Qty, &p.EntryPrice, &p.StopPrice,
		&p.TargetPrice, &p.TrailingPct, &p.OpenedAt, &closedAt, &p.ClosePrice,
		&reason, &p.RealizedPnL, &p.Fees)
	if errors.Is(err, sql.ErrNoRows) {
		return Position{}, ErrNotFound
	}
	if err != nil {
		return Position{}, fmt.Errorf("get position: %w", err)
	}
	if closedAt.Valid {
		t := closedAt.Time
		p.ClosedAt = &t
	}
	p.CloseReason = reason.String
	return p, nil
}

// InsertOrder stores an order row.
func (d *Database) InsertOrder(ctx context.Context, o Order) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (
			id, position_id, exchange_order_id, symbol, side, type, price,
			qty, filled_qty, avg_fill_price, status, intent_key
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.ID, o.PositionID, o.ExchangeOrderID, o.Symbol, o.Side, o.Type,
		o.Price, o.Qty, o.FilledQty, o.AvgFillPrice, o.Status, o.IntentKey,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// UpdateOrderFill records execution progress on an order.
func (d *Database) UpdateOrderFill(ctx context.Context, id string, filledQty, avgPrice float64, status string) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE orders
		SET filled_qty = ?, avg_fill_price = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, filledQty, avgPrice, status, id)
	if err != nil {
		return fmt.Errorf("update order fill: %w", err)
	}
	return nil
}

// InsertFill stores a single execution.
func (d *Database) InsertFill(ctx context.Context, f Fill) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO fills (id, order_id, symbol, side, price, qty, fee, fee_asset)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.OrderID, f.Symbol, f.Side, f.Price, f.Qty, f.Fee, f.FeeAsset)
	if err != nil {
		return fmt.Errorf("insert fill: %w", err)
	}
	return nil
}

// AddDailyResult accumulates a closed trade into the day's stats row.
func (d *Database) AddDailyResult(ctx context.Context, date string, pnl, fees float64) error {
	win, loss := 0, 0
	if pnl >= 0 {
		win = 1
	} else {
		loss = 1
	}
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO daily_stats (date, realized_pnl, fees, trades, wins, losses)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			realized_pnl = realized_pnl + excluded.realized_pnl,
			fees = fees + excluded.fees,
			trades = trades + 1,
			wins = wins + excluded.wins,
			losses = losses + excluded.losses
	`, date, pnl, fees, win, loss)
	if err != nil {
		return fmt.Errorf("add daily result: %w", err)
	}
	return nil
}

// GetDailyStats returns the stats row for a UTC date, zero row if absent.
func (d *Database) GetDailyStats(ctx context.Context, date string) (DayStats, error) {
	s := DayStats{Date: date}
	err := d.DB.QueryRowContext(ctx, `
		SELECT realized_pnl, fees, trades, wins, losses
		FROM daily_stats WHERE date = ?
	`, date).Scan(&s.RealizedPnL, &s.Fees, &s.Trades, &s.Wins, &s.Losses)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("get daily stats: %w", err)
	}
	return s, nil
}

// InsertEquitySnapshot stores a periodic account value record.
func (d *Database) InsertEquitySnapshot(ctx context.Context, s EquitySnapshot) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO equity_snapshots (balance, open_positions, unrealized_pnl)
		VALUES (?, ?, ?)
	`, s.Balance, s.OpenPositions, s.UnrealizedPnL)
	if err != nil {
		return fmt.Errorf("insert equity snapshot: %w", err)
	}
	return nil
}

// RecentClosedPositions returns the latest closed positions, newest first.
func (d *Database) RecentClosedPositions(ctx context.Context, limit int) ([]Position, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, side, qty, entry_price, stop_price, target_price,
		       trailing_pct, opened_at, closed_at, close_price, close_reason,
		       realized_pnl, fees
		FROM positions
		WHERE closed_at IS NOT NULL
		ORDER BY closed_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query closed positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var (
			p        Position
			closedAt sql.NullTime
			reason   sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Symbol, &p.Side, &p.Qty, &p.EntryPrice,
			&p.StopPrice, &p.TargetPrice, &p.TrailingPct, &p.OpenedAt,
			&closedAt, &p.ClosePrice, &reason, &p.RealizedPnL, &p.Fees); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		if closedAt.Valid {
			t := closedAt.Time
			p.ClosedAt = &t
		}
		p.CloseReason = reason.String
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// RecentOrders returns the latest orders, newest first.
func (d *Database) RecentOrders(ctx context.Context, limit int) ([]Order, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, position_id, exchange_order_id, symbol, side, type,
		       price, qty, filled_qty, avg_fill_price, status, intent_key,
		       created_at, updated_at
		FROM orders
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		var (
			o         Order
			posID     sql.NullString
			exID      sql.NullString
			intentKey sql.NullString
		)
		err := rows.Scan(&o.ID, &posID, &exID, &o.Symbol, &o.Side, &o.Type,
			&o.Price, &o.Qty, &o.FilledQty, &o.AvgFillPrice, &o.Status,
			&intentKey, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.PositionID = posID.String
		o.ExchangeOrderID = exID.String
		o.IntentKey = intentKey.String
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
