// Package engine drives the trading loop and exposes a unified
// interface for the operator API. The API layer interacts with the
// trader only through the Service interface.
package engine

import (
	"context"

	"spot-trader/internal/monitor"
	"spot-trader/internal/risk"
	"spot-trader/pkg/db"
)

// Service defines the operations the API layer may perform.
type Service interface {
	// Queries
	GetSystemStatus(ctx context.Context) *SystemStatus
	GetPositions(ctx context.Context) []PositionInfo
	GetClosedPositions(ctx context.Context, limit int) ([]ClosedPositionInfo, error)
	GetRecentOrders(ctx context.Context, limit int) ([]OrderInfo, error)
	GetRiskMetrics(ctx context.Context) risk.Metrics
	GetBalance(ctx context.Context) BalanceInfo
	GetMetrics(ctx context.Context) monitor.MetricsSnapshot
	GetDailyStats(ctx context.Context, date string) (db.DayStats, error)

	// Commands
	Halt(ctx context.Context, reason string) error
	Resume(ctx context.Context) error
	ClosePosition(ctx context.Context, id string) error
	FlattenAll(ctx context.Context, reason string) error
}
