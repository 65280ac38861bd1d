// Package ledger owns position state. All opens, closes and stop moves
// go through it under a single lock, with SQLite behind for durability.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"spot-trader/pkg/db"
	"spot-trader/pkg/exchanges/common"
)

var (
	// ErrAlreadyClosed is returned when a close races a prior close.
	ErrAlreadyClosed = errors.New("position already closed")
	// ErrNotFound is returned for unknown position ids.
	ErrNotFound = errors.New("position not found")
)

// Position is the live view of an open position.
type Position struct {
	ID          string
	Symbol      string
	Side        common.Side
	Qty         float64
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64
	TrailingPct float64
	HighWater   float64 // best price seen since entry, for trailing stops
	OpenedAt    time.Time
	Fees        float64

	closing bool // claimed by a close path, exchange order in flight
}

// Notional returns the position's entry notional value.
func (p Position) Notional() float64 {
	return p.Qty * p.EntryPrice
}

// UnrealizedPnL values the position at price.
func (p Position) UnrealizedPnL(price float64) float64 {
	if p.Side == common.SideBuy {
		return (price - p.EntryPrice) * p.Qty
	}
	return (p.EntryPrice - price) * p.Qty
}

// CloseResult describes a finalized position.
type CloseResult struct {
	Position    Position
	ClosePrice  float64
	RealizedPnL float64
	Reason      string
	ClosedAt    time.Time
}

// Ledger keeps open positions in memory and persists every transition.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]*Position
	db        *db.Database
}

func New(database *db.Database) *Ledger {
	return &Ledger{
		positions: make(map[string]*Position),
		db:        database,
	}
}

// Load seeds in-memory state from DB on startup.
func (l *Ledger) Load(ctx context.Context) error {
	if l.db == nil {
		return nil
	}
	rows, err := l.db.GetOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, row := range rows {
		p := &Position{
			ID:          row.ID,
			Symbol:      row.Symbol,
			Side:        common.Side(row.Side),
			Qty:         row.Qty,
			EntryPrice:  row.EntryPrice,
			StopPrice:   row.StopPrice,
			TargetPrice: row.TargetPrice,
			TrailingPct: row.TrailingPct,
			HighWater:   row.EntryPrice,
			OpenedAt:    row.OpenedAt,
			Fees:        row.Fees,
		}
		l.positions[p.ID] = p
	}
	if len(rows) > 0 {
		log.Printf("ledger: restored %d open position(s)", len(rows))
	}
	return nil
}

// Open registers a new position and persists it.
func (l *Ledger) Open(ctx context.Context, symbol string, side common.Side, qty, entryPrice, stopPrice, targetPrice, trailingPct, fees float64) (Position, error) {
	if qty <= 0 || entryPrice <= 0 {
		return Position{}, fmt.Errorf("open %s: invalid qty %v or price %v", symbol, qty, entryPrice)
	}
	// Every position carries a stop; an unprotected position cannot be
	// monitored.
	if stopPrice <= 0 {
		return Position{}, fmt.Errorf("open %s: missing stop price", symbol)
	}

	p := &Position{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Side:        side,
		Qty:         qty,
		EntryPrice:  entryPrice,
		StopPrice:   stopPrice,
		TargetPrice: targetPrice,
		TrailingPct: trailingPct,
		HighWater:   entryPrice,
		OpenedAt:    time.Now(),
		Fees:        fees,
	}

	if l.db != nil {
		err := l.db.InsertPosition(ctx, db.Position{
			ID:          p.ID,
			Symbol:      p.Symbol,
			Side:        string(p.Side),
			Qty:         p.Qty,
			EntryPrice:  p.EntryPrice,
			StopPrice:   p.StopPrice,
			TargetPrice: p.TargetPrice,
			TrailingPct: p.TrailingPct,
			OpenedAt:    p.OpenedAt,
			Fees:        p.Fees,
		})
		if err != nil {
			return Position{}, err
		}
	}

	l.mu.Lock()
	l.positions[p.ID] = p
	l.mu.Unlock()

	log.Printf("ledger: opened %s %s qty=%v entry=%v stop=%v", p.Symbol, p.Side, p.Qty, p.EntryPrice, p.StopPrice)
	return *p, nil
}

// BeginClose claims a position for closing. Exactly one caller wins the
// claim; everyone else gets ErrAlreadyClosed until the claim is released
// or the position is finalized. The claim must be taken before any close
// order goes to the exchange.
func (l *Ledger) BeginClose(id string) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[id]
	if !ok {
		return Position{}, ErrNotFound
	}
	if p.closing {
		return Position{}, ErrAlreadyClosed
	}
	p.closing = true
	return *p, nil
}

// AbortClose releases a close claim after the exchange order failed, so
// a later cycle can retry.
func (l *Ledger) AbortClose(id string) {
	l.mu.Lock()
	if p, ok := l.positions[id]; ok {
		p.closing = false
	}
	l.mu.Unlock()
}

// Close finalizes a position exactly once. Concurrent callers race for
// the map entry under the lock; losers get ErrAlreadyClosed.
func (l *Ledger) Close(ctx context.Context, id string, closePrice, closeFees float64, reason string) (CloseResult, error) {
	l.mu.Lock()
	p, ok := l.positions[id]
	if !ok {
		l.mu.Unlock()
		return CloseResult{}, ErrAlreadyClosed
	}
	delete(l.positions, id)
	l.mu.Unlock()

	pnl := p.UnrealizedPnL(closePrice) - p.Fees - closeFees
	closedAt := time.Now()

	if l.db != nil {
		updated, err := l.db.MarkPositionClosed(ctx, id, closePrice, pnl, closeFees, reason, closedAt)
		if err != nil {
			// DB write failed; restore the in-memory entry so the
			// position is not silently lost.
			l.mu.Lock()
			p.closing = false
			l.positions[id] = p
			l.mu.Unlock()
			return CloseResult{}, err
		}
		if !updated {
			return CloseResult{}, ErrAlreadyClosed
		}
		date := closedAt.UTC().Format("2006-01-02")
		if err := l.db.AddDailyResult(ctx, date, pnl, p.Fees+closeFees); err != nil {
			log.Printf("ledger: daily stats update failed: %v", err)
		}
	}

	log.Printf("ledger: closed %s %s qty=%v at %v pnl=%.2f reason=%s", p.Symbol, p.Side, p.Qty, closePrice, pnl, reason)
	return CloseResult{
		Position:    *p,
		ClosePrice:  closePrice,
		RealizedPnL: pnl,
		Reason:      reason,
		ClosedAt:    closedAt,
	}, nil
}

// UpdateStop raises (for longs) or lowers (for shorts) the stop and
// records the new high-water mark. The stop never loosens.
func (l *Ledger) UpdateStop(ctx context.Context, id string, newStop, highWater float64) error {
	l.mu.Lock()
	p, ok := l.positions[id]
	if !ok {
		l.mu.Unlock()
		return ErrNotFound
	}
	if p.Side == common.SideBuy && newStop < p.StopPrice {
		l.mu.Unlock()
		return fmt.Errorf("stop for %s would loosen: %v < %v", p.Symbol, newStop, p.StopPrice)
	}
	if p.Side == common.SideSell && newStop > p.StopPrice {
		l.mu.Unlock()
		return fmt.Errorf("stop for %s would loosen: %v > %v", p.Symbol, newStop, p.StopPrice)
	}
	p.StopPrice = newStop
	if highWater != 0 {
		p.HighWater = highWater
	}
	l.mu.Unlock()

	if l.db != nil {
		return l.db.UpdatePositionStop(ctx, id, newStop)
	}
	return nil
}

// Get returns a snapshot of one open position.
func (l *Ledger) Get(id string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[id]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Open positions snapshot, in no particular order.
func (l *Ledger) List() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	return out
}

// Count returns the number of open positions.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// OpenBySymbol reports whether a symbol already has an open position.
func (l *Ledger) OpenBySymbol(symbol string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.positions {
		if p.Symbol == symbol {
			return *p, true
		}
	}
	return Position{}, false
}

// TotalExposure sums entry notional across open positions.
func (l *Ledger) TotalExposure() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total float64
	for _, p := range l.positions {
		total += p.Notional()
	}
	return total
}
