package engine

import (
	"context"
	"time"

	"spot-trader/internal/balance"
	"spot-trader/internal/ledger"
	"spot-trader/internal/monitor"
	"spot-trader/internal/risk"
	"spot-trader/pkg/db"
)

// Impl implements Service by composing the trader's modules.
type Impl struct {
	ledger    *ledger.Ledger
	riskMgr   *risk.Manager
	balance   *balance.Manager
	posMon    *monitor.PositionMonitor
	emergency *monitor.EmergencyController
	metrics   *monitor.SystemMetrics
	prices    monitor.PriceSource
	db        *db.Database
	meta      SystemStatus
}

// Config holds the modules an Impl composes.
type Config struct {
	Ledger    *ledger.Ledger
	RiskMgr   *risk.Manager
	Balance   *balance.Manager
	PosMon    *monitor.PositionMonitor
	Emergency *monitor.EmergencyController
	Metrics   *monitor.SystemMetrics
	Prices    monitor.PriceSource
	DB        *db.Database
	Meta      SystemStatus
}

// NewImpl creates a new service implementation.
func NewImpl(cfg Config) *Impl {
	return &Impl{
		ledger:    cfg.Ledger,
		riskMgr:   cfg.RiskMgr,
		balance:   cfg.Balance,
		posMon:    cfg.PosMon,
		emergency: cfg.Emergency,
		metrics:   cfg.Metrics,
		prices:    cfg.Prices,
		db:        cfg.DB,
		meta:      cfg.Meta,
	}
}

func (e *Impl) GetSystemStatus(ctx context.Context) *SystemStatus {
	status := e.meta
	status.ServerTime = time.Now().UTC()
	status.Halted, status.HaltReason = e.riskMgr.Halted()
	status.OpenPositions = e.ledger.Count()
	return &status
}

func (e *Impl) GetPositions(ctx context.Context) []PositionInfo {
	now := time.Now()
	open := e.ledger.List()

	infos := make([]PositionInfo, 0, len(open))
	for _, p := range open {
		info := PositionInfo{
			ID:          p.ID,
			Symbol:      p.Symbol,
			Side:        string(p.Side),
			Qty:         p.Qty,
			EntryPrice:  p.EntryPrice,
			StopPrice:   p.StopPrice,
			TargetPrice: p.TargetPrice,
			TrailingPct: p.TrailingPct,
			HighWater:   p.HighWater,
			Notional:    p.Notional(),
			OpenedAt:    p.OpenedAt,
			AgeSeconds:  now.Sub(p.OpenedAt).Seconds(),
		}
		if price, fresh := e.prices.Quote(p.Symbol); fresh && price > 0 {
			info.CurrentPrice = price
			info.UnrealizedPnL = p.UnrealizedPnL(price)
		}
		infos = append(infos, info)
	}
	return infos
}

func (e *Impl) GetClosedPositions(ctx context.Context, limit int) ([]ClosedPositionInfo, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := e.db.RecentClosedPositions(ctx, limit)
	if err != nil {
		return nil, err
	}

	infos := make([]ClosedPositionInfo, 0, len(rows))
	for _, p := range rows {
		infos = append(infos, ClosedPositionInfo{
			ID:          p.ID,
			Symbol:      p.Symbol,
			Side:        p.Side,
			Qty:         p.Qty,
			EntryPrice:  p.EntryPrice,
			ClosePrice:  p.ClosePrice,
			RealizedPnL: p.RealizedPnL,
			Fees:        p.Fees,
			Reason:      p.CloseReason,
			OpenedAt:    p.OpenedAt,
			ClosedAt:    p.ClosedAt,
		})
	}
	return infos, nil
}

func (e *Impl) GetRecentOrders(ctx context.Context, limit int) ([]OrderInfo, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := e.db.RecentOrders(ctx, limit)
	if err != nil {
		return nil, err
	}

	infos := make([]OrderInfo, 0, len(rows))
	for _, o := range rows {
		infos = append(infos, OrderInfo{
			ID:           o.ID,
			Symbol:       o.Symbol,
			Side:         o.Side,
			Type:         o.Type,
			Price:        o.Price,
			Qty:          o.Qty,
			FilledQty:    o.FilledQty,
			AvgFillPrice: o.AvgFillPrice,
			Status:       o.Status,
			CreatedAt:    o.CreatedAt,
			UpdatedAt:    o.UpdatedAt,
		})
	}
	return infos, nil
}

func (e *Impl) GetRiskMetrics(ctx context.Context) risk.Metrics {
	return e.riskMgr.Metrics()
}

func (e *Impl) GetBalance(ctx context.Context) BalanceInfo {
	snap := e.balance.Get()
	return BalanceInfo{
		Available: snap.Available,
		Locked:    snap.Locked,
		Total:     snap.Total,
	}
}

func (e *Impl) GetMetrics(ctx context.Context) monitor.MetricsSnapshot {
	return e.metrics.GetSnapshot()
}

func (e *Impl) GetDailyStats(ctx context.Context, date string) (db.DayStats, error) {
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	return e.db.GetDailyStats(ctx, date)
}

func (e *Impl) Halt(ctx context.Context, reason string) error {
	e.riskMgr.Halt(reason)
	return nil
}

// Resume clears the halt and rearms the emergency controller so a
// fresh condition can fire again.
func (e *Impl) Resume(ctx context.Context) error {
	e.riskMgr.Resume()
	if e.emergency != nil {
		e.emergency.Rearm()
	}
	return nil
}

func (e *Impl) ClosePosition(ctx context.Context, id string) error {
	return e.posMon.ClosePosition(ctx, id, risk.ExitManual)
}

func (e *Impl) FlattenAll(ctx context.Context, reason string) error {
	if reason == "" {
		reason = risk.ExitManual
	}
	e.posMon.CloseAll(ctx, reason)
	return nil
}
