package db

import (
	"context"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}
	return database
}

func TestPositionLifecycle(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	pos := Position{
		ID:         "pos-1",
		Symbol:     "BTCUSDT",
		Side:       "BUY",
		Qty:        0.5,
		EntryPrice: 50000,
		StopPrice:  48000,
		OpenedAt:   time.Now(),
	}
	if err := database.InsertPosition(ctx, pos); err != nil {
		t.Fatalf("InsertPosition: %v", err)
	}

	open, err := database.GetOpenPositions(ctx)
	if err != nil {
		t.Fatalf("GetOpenPositions: %v", err)
	}
	if len(open) != 1 || open[0].ID != "pos-1" {
		t.Fatalf("expected 1 open position pos-1, got %+v", open)
	}

	if err := database.UpdatePositionStop(ctx, "pos-1", 49000); err != nil {
		t.Fatalf("UpdatePositionStop: %v", err)
	}
	got, err := database.GetPosition(ctx, "pos-1")
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if got.StopPrice != 49000 {
		t.Errorf("stop price = %v, want 49000", got.StopPrice)
	}

	closed, err := database.MarkPositionClosed(ctx, "pos-1", 51000, 500, 2.5, "target", time.Now())
	if err != nil {
		t.Fatalf("MarkPositionClosed: %v", err)
	}
	if !closed {
		t.Fatal("expected first close to report true")
	}

	// Second close must be a no-op.
	closed, err = database.MarkPositionClosed(ctx, "pos-1", 52000, 1000, 0, "manual", time.Now())
	if err != nil {
		t.Fatalf("MarkPositionClosed (second): %v", err)
	}
	if closed {
		t.Fatal("expected second close to report false")
	}

	got, err = database.GetPosition(ctx, "pos-1")
	if err != nil {
		t.Fatalf("GetPosition after close: %v", err)
	}
	if got.ClosedAt == nil {
		t.Fatal("expected closed_at to be set")
	}
	if got.CloseReason != "target" || got.RealizedPnL != 500 {
		t.Errorf("close fields = %q/%v, want target/500", got.CloseReason, got.RealizedPnL)
	}

	open, err = database.GetOpenPositions(ctx)
	if err != nil {
		t.Fatalf("GetOpenPositions after close: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("expected no open positions, got %d", len(open))
	}
}

func TestGetPositionNotFound(t *testing.T) {
	database := openTestDB(t)

	_, err := database.GetPosition(context.Background(), "missing")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDailyStatsAccumulate(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	date := "2025-06-01"
	if err := database.AddDailyResult(ctx, date, 120, 1.2); err != nil {
		t.Fatalf("AddDailyResult: %v", err)
	}
	if err := database.AddDailyResult(ctx, date, -45, 0.8); err != nil {
		t.Fatalf("AddDailyResult: %v", err)
	}

	stats, err := database.GetDailyStats(ctx, date)
	if err != nil {
		t.Fatalf("GetDailyStats: %v", err)
	}
	if stats.Trades != 2 || stats.Wins != 1 || stats.Losses != 1 {
		t.Errorf("trades/wins/losses = %d/%d/%d, want 2/1/1", stats.Trades, stats.Wins, stats.Losses)
	}
	if stats.RealizedPnL != 75 {
		t.Errorf("realized pnl = %v, want 75", stats.RealizedPnL)
	}

	// Unknown date returns a zero row, not an error.
	empty, err := database.GetDailyStats(ctx, "1999-01-01")
	if err != nil {
		t.Fatalf("GetDailyStats empty: %v", err)
	}
	if empty.Trades != 0 || empty.RealizedPnL != 0 {
		t.Errorf("expected zero stats, got %+v", empty)
	}
}

func TestOrderFillProgress(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	order := Order{
		ID:     "ord-1",
		Symbol: "ETHUSDT",
		Side:   "BUY",
		Type:   "LIMIT",
		Price:  3000,
		Qty:    10,
		Status: "NEW",
	}
	if err := database.InsertOrder(ctx, order); err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}
	if err := database.UpdateOrderFill(ctx, "ord-1", 6, 2999.5, "PARTIAL"); err != nil {
		t.Fatalf("UpdateOrderFill: %v", err)
	}
	if err := database.InsertFill(ctx, Fill{
		ID: "fill-1", OrderID: "ord-1", Symbol: "ETHUSDT", Side: "BUY",
		Price: 2999.5, Qty: 6, Fee: 0.006, FeeAsset: "ETH",
	}); err != nil {
		t.Fatalf("InsertFill: %v", err)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	database := openTestDB(t)
	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("second ApplyMigrations: %v", err)
	}
}
