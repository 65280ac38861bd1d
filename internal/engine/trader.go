package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"spot-trader/internal/balance"
	"spot-trader/internal/events"
	"spot-trader/internal/ledger"
	"spot-trader/internal/monitor"
	"spot-trader/internal/risk"
	"spot-trader/internal/router"
	"spot-trader/internal/scorer"
	"spot-trader/pkg/exchanges/common"
)

// Executor routes an entry intent to the exchange.
type Executor interface {
	Execute(ctx context.Context, intent router.Intent) (router.Report, error)
}

// Views supplies market snapshots for scoring.
type Views interface {
	View(symbol string) scorer.MarketView
}

// Trader is the entry loop: it scores each symbol's market view on a
// fixed cadence and turns accepted signals into sized, routed orders.
type Trader struct {
	Symbols     []string
	Store       Views
	Scorers     []scorer.Scorer
	Risk        *risk.Manager
	Balance     *balance.Manager
	Ledger      *ledger.Ledger
	Router      Executor
	Bus         *events.Bus
	Metrics     *monitor.SystemMetrics
	Interval    time.Duration
	TrailingPct float64
	DryRun      bool
}

// Start runs the scan loop until ctx is cancelled.
func (t *Trader) Start(ctx context.Context) {
	if t.Interval <= 0 {
		t.Interval = 5 * time.Second
	}
	go func() {
		ticker := time.NewTicker(t.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Scan(ctx)
			}
		}
	}()
	mode := "live"
	if t.DryRun {
		mode = "dry run"
	}
	log.Printf("✓ trader started (%s), %d symbol(s), cycle %s", mode, len(t.Symbols), t.Interval)
}

// Scan scores every symbol once.
func (t *Trader) Scan(ctx context.Context) {
	for _, symbol := range t.Symbols {
		view := t.Store.View(symbol)
		if t.Metrics != nil {
			t.Metrics.IncrementTicks()
		}
		if view.Stale {
			continue
		}
		t.scoreSymbol(ctx, view)
	}
}

func (t *Trader) scoreSymbol(ctx context.Context, view scorer.MarketView) {
	for _, sc := range t.Scorers {
		var timer *monitor.Timer
		if t.Metrics != nil {
			timer = monitor.NewTimer(t.Metrics.ScoreLatency)
		}
		sig, err := sc.Score(view)
		if timer != nil {
			timer.Stop()
		}
		if err != nil {
			log.Printf("trader: %s scorer %s: %v", view.Symbol, sc.Name(), err)
			if t.Metrics != nil {
				t.Metrics.IncrementErrors()
			}
			continue
		}
		if sig == nil {
			continue
		}

		if t.Metrics != nil {
			t.Metrics.IncrementSignals()
		}
		if t.Bus != nil {
			t.Bus.Publish(events.EventSignal, sig)
		}
		log.Printf("💰 signal: %s %s score=%.1f entry=%.4f stop=%.4f target=%.4f (%s)",
			sig.Side, sig.Symbol, sig.Score, sig.Entry, sig.Stop, sig.Target, sc.Name())

		t.handleSignal(ctx, sig)
		// First scorer that fires owns the symbol this cycle.
		return
	}
}

func (t *Trader) handleSignal(ctx context.Context, sig *scorer.Signal) {
	_, hasPosition := t.Ledger.OpenBySymbol(sig.Symbol)
	snap := t.Balance.Get()

	decision, err := t.Risk.ValidateAndSize(risk.Input{
		Symbol:            sig.Symbol,
		Side:              sig.Side,
		Entry:             sig.Entry,
		Stop:              sig.Stop,
		Balance:           snap.Total,
		Available:         snap.Available,
		OpenPositions:     t.Ledger.Count(),
		Exposure:          t.Ledger.TotalExposure(),
		SymbolHasPosition: hasPosition,
	})
	if err != nil {
		var limitErr *risk.LimitError
		if errors.As(err, &limitErr) {
			log.Printf("trader: %s entry blocked: %v", sig.Symbol, err)
		} else {
			log.Printf("trader: %s sizing failed: %v", sig.Symbol, err)
		}
		return
	}
	if decision.Warning != "" {
		log.Printf("⚠️ trader: %s: %s", sig.Symbol, decision.Warning)
	}

	if t.DryRun {
		log.Printf("trader: dry run, would %s %s qty=%v (%.2f notional)",
			sig.Side, sig.Symbol, decision.Qty, decision.Notional)
		return
	}

	if err := t.Balance.Lock(decision.Notional); err != nil {
		log.Printf("trader: %s reserve funds: %v", sig.Symbol, err)
		return
	}

	intent := router.NewIntent(sig.Symbol, sig.Side, decision.Qty, sig.Entry, sig.Stop, sig.Target, t.TrailingPct)
	report, err := t.Router.Execute(ctx, intent)
	if err != nil {
		t.Balance.Unlock(decision.Notional)
		if errors.Is(err, router.ErrDuplicateIntent) {
			log.Printf("trader: %s duplicate intent suppressed", sig.Symbol)
			return
		}
		if t.Metrics != nil {
			t.Metrics.IncrementErrors()
		}
		log.Printf("❌ trader: %s order failed: %v", sig.Symbol, err)
		return
	}
	if t.Metrics != nil {
		t.Metrics.IncrementOrders()
	}

	t.Balance.Unlock(decision.Notional)
	if !report.Filled() {
		log.Printf("trader: %s order filled nothing, no position", sig.Symbol)
		return
	}

	// Settle the quote leg for what actually traded.
	spent := report.FilledQty * report.AvgPrice
	if sig.Side == common.SideBuy {
		t.Balance.Deduct(spent)
	} else {
		t.Balance.Credit(spent)
	}

	pos, err := t.Ledger.Open(ctx, sig.Symbol, sig.Side, report.FilledQty, report.AvgPrice,
		sig.Stop, sig.Target, t.TrailingPct, report.Fees)
	if err != nil {
		log.Printf("❌ trader: %s record position: %v", sig.Symbol, err)
		if t.Metrics != nil {
			t.Metrics.IncrementErrors()
		}
		return
	}

	if t.Metrics != nil {
		t.Metrics.IncrementPositionsOpened()
	}
	if t.Bus != nil {
		t.Bus.Publish(events.EventPositionOpened, events.PositionEvent{
			PositionID: pos.ID,
			Symbol:     pos.Symbol,
			Side:       string(pos.Side),
			Qty:        pos.Qty,
			Price:      pos.EntryPrice,
			Time:       pos.OpenedAt,
		})
	}
}
