package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"spot-trader/internal/events"
	"spot-trader/internal/ledger"
	"spot-trader/internal/risk"
	"spot-trader/internal/router"
	"spot-trader/pkg/exchanges/common"
)

// Closer liquidates a position on the exchange.
type Closer interface {
	CloseMarket(ctx context.Context, symbol string, side common.Side, qty, refPrice float64) (router.Report, error)
}

// PriceSource supplies the latest actionable price per symbol.
type PriceSource interface {
	Quote(symbol string) (price float64, fresh bool)
}

// TickerSource queries the venue directly, used when the feed snapshot
// has gone stale.
type TickerSource interface {
	GetTicker(ctx context.Context, symbol string) (common.Ticker, error)
}

// failureAlertThreshold is how many consecutive close failures on one
// position start raising risk alerts.
const failureAlertThreshold = 3

// A failed close is retried within the cycle before the failure counts
// against the position.
const (
	closeRetries      = 3
	closeRetryBackoff = 250 * time.Millisecond
)

// PositionMonitor sweeps open positions on a fixed cycle: advances
// trailing stops, fires stop/target/age exits, and liquidates runaway
// losers. Each position is handled independently so one bad symbol
// cannot stall the rest of the book.
type PositionMonitor struct {
	Ledger          *ledger.Ledger
	Risk            *risk.Manager
	Prices          PriceSource
	Tickers         TickerSource // optional direct venue query for stale feeds
	Closer          Closer
	Bus             *events.Bus
	Interval        time.Duration
	MaxPositionAge  time.Duration
	PositionLossPct float64

	mu       sync.Mutex
	failures map[string]int
}

// Start runs the sweep loop until ctx is cancelled.
func (m *PositionMonitor) Start(ctx context.Context) {
	if m.Interval <= 0 {
		m.Interval = 5 * time.Second
	}
	go func() {
		ticker := time.NewTicker(m.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep(ctx)
			}
		}
	}()
	log.Printf("✓ position monitor started, cycle %s", m.Interval)
}

// Sweep evaluates every open position once.
func (m *PositionMonitor) Sweep(ctx context.Context) {
	for _, p := range m.Ledger.List() {
		m.checkPosition(ctx, p)
	}
}

func (m *PositionMonitor) checkPosition(ctx context.Context, p ledger.Position) {
	price, fresh := m.Prices.Quote(p.Symbol)
	if !fresh && m.Tickers != nil {
		if tk, err := m.Tickers.GetTicker(ctx, p.Symbol); err == nil && tk.Mid() > 0 {
			price, fresh = tk.Mid(), true
		}
	}
	if price <= 0 {
		log.Printf("monitor: %s has no usable price, skipping", p.Symbol)
		return
	}
	if !fresh {
		// Last-known price still drives the safety checks; a feed outage
		// must not disable stops.
		log.Printf("⚠️ monitor: %s price stale, running safety checks on last known %v", p.Symbol, price)
	}

	view := risk.PositionView{
		Side:        p.Side,
		EntryPrice:  p.EntryPrice,
		StopPrice:   p.StopPrice,
		TargetPrice: p.TargetPrice,
		TrailingPct: p.TrailingPct,
		HighWater:   p.HighWater,
		OpenedAt:    p.OpenedAt,
	}

	// A position bleeding past the per-position cap goes out first,
	// whatever the stop says.
	if m.PositionLossPct > 0 && risk.LossFraction(view, p.Qty, price) > m.PositionLossPct {
		if err := m.closePosition(ctx, p, price, risk.ExitEmergency); err != nil {
			log.Printf("monitor: emergency close %s: %v", p.Symbol, err)
		}
		return
	}

	decision := risk.EvaluateExit(view, price, m.MaxPositionAge, time.Now())
	if decision.Close {
		if err := m.closePosition(ctx, p, price, decision.Reason); err != nil {
			log.Printf("monitor: close %s (%s): %v", p.Symbol, decision.Reason, err)
		}
		return
	}
	if decision.HighWater > 0 && fresh {
		newStop := decision.NewStop
		if newStop == 0 {
			newStop = p.StopPrice
		}
		if err := m.Ledger.UpdateStop(ctx, p.ID, newStop, decision.HighWater); err != nil {
			log.Printf("monitor: advance stop %s: %v", p.Symbol, err)
		}
	}
}

// ClosePosition liquidates one position by id at the current market
// price. Used for operator-initiated closes.
func (m *PositionMonitor) ClosePosition(ctx context.Context, id, reason string) error {
	p, ok := m.Ledger.Get(id)
	if !ok {
		return ledger.ErrNotFound
	}
	price, fresh := m.Prices.Quote(p.Symbol)
	if !fresh || price <= 0 {
		price = p.EntryPrice
	}
	return m.closePosition(ctx, p, price, reason)
}

// closePosition liquidates p and settles the ledger. The ledger claim
// is taken before anything reaches the exchange, so a close that races
// another trigger is dropped before it can submit a second order.
func (m *PositionMonitor) closePosition(ctx context.Context, p ledger.Position, price float64, reason string) error {
	if _, err := m.Ledger.BeginClose(p.ID); err != nil {
		if errors.Is(err, ledger.ErrAlreadyClosed) || errors.Is(err, ledger.ErrNotFound) {
			return nil
		}
		return err
	}

	report, err := m.submitClose(ctx, p, price)
	if err != nil {
		m.Ledger.AbortClose(p.ID)
		m.recordFailure(p, err)
		return err
	}
	m.clearFailure(p.ID)

	closePrice := report.AvgPrice
	if closePrice <= 0 {
		closePrice = price
	}
	res, err := m.Ledger.Close(ctx, p.ID, closePrice, report.Fees, reason)
	if err != nil {
		if errors.Is(err, ledger.ErrAlreadyClosed) {
			return nil
		}
		return err
	}

	m.Risk.RecordTradeResult(res.RealizedPnL)
	if m.Bus != nil {
		m.Bus.Publish(events.EventPositionClosed, events.PositionEvent{
			PositionID: p.ID,
			Symbol:     p.Symbol,
			Side:       string(p.Side),
			Qty:        p.Qty,
			Price:      closePrice,
			Reason:     reason,
			PnL:        res.RealizedPnL,
			Time:       res.ClosedAt,
		})
	}
	return nil
}

// submitClose sends the market close, retrying transient failures a few
// times within the cycle. A rejection from the venue stops the retries.
func (m *PositionMonitor) submitClose(ctx context.Context, p ledger.Position, price float64) (router.Report, error) {
	backoff := closeRetryBackoff
	var lastErr error
	for attempt := 0; attempt < closeRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return router.Report{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		report, err := m.Closer.CloseMarket(ctx, p.Symbol, p.Side.Opposite(), p.Qty, price)
		if err == nil {
			return report, nil
		}
		lastErr = err
		if common.IsRejection(err) {
			break
		}
		log.Printf("monitor: close %s attempt %d failed: %v", p.Symbol, attempt+1, err)
	}
	return router.Report{}, lastErr
}

// CloseAll liquidates every open position, continuing past individual
// failures. Used by the emergency controller.
func (m *PositionMonitor) CloseAll(ctx context.Context, reason string) {
	for _, p := range m.Ledger.List() {
		price, fresh := m.Prices.Quote(p.Symbol)
		if !fresh || price <= 0 {
			// Flatten anyway; the entry price is the best reference left.
			price = p.EntryPrice
		}
		if err := m.closePosition(ctx, p, price, reason); err != nil {
			log.Printf("monitor: flatten %s: %v", p.Symbol, err)
		}
	}
}

func (m *PositionMonitor) recordFailure(p ledger.Position, err error) {
	m.mu.Lock()
	if m.failures == nil {
		m.failures = make(map[string]int)
	}
	m.failures[p.ID]++
	count := m.failures[p.ID]
	m.mu.Unlock()

	log.Printf("❌ monitor: close %s failed (%d): %v", p.Symbol, count, err)
	// Keep alerting every cycle once past the threshold; a position that
	// cannot be closed only gets more dangerous with time.
	if count >= failureAlertThreshold && m.Bus != nil {
		m.Bus.Publish(events.EventRiskAlert, events.RiskAlert{
			Kind:   "close_failed",
			Symbol: p.Symbol,
			Detail: fmt.Sprintf("%d consecutive failures: %v", count, err),
			Time:   time.Now(),
		})
	}
}

func (m *PositionMonitor) clearFailure(id string) {
	m.mu.Lock()
	delete(m.failures, id)
	m.mu.Unlock()
}
