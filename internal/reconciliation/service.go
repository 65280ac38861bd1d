package reconciliation

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"spot-trader/internal/events"
	"spot-trader/internal/ledger"
	"spot-trader/pkg/exchanges/common"
)

// BalanceSource pulls current asset balances from the exchange.
type BalanceSource interface {
	GetBalances(ctx context.Context) ([]common.Balance, error)
}

// Service periodically checks that exchange holdings cover the open
// positions in the ledger. Spot has no position endpoint, so the
// comparison runs on base asset balances: a BTCUSDT long of 0.5 needs
// at least 0.5 BTC on the account or the exit will fail. Drifts are
// alerted, never auto-corrected; a ledger that disagrees with the
// exchange needs an operator, not a silent overwrite.
type Service struct {
	Exchange   BalanceSource
	Ledger     *ledger.Ledger
	Bus        *events.Bus
	QuoteAsset string        // e.g. USDT, stripped from symbols to get the base asset
	Interval   time.Duration // default 5m
	Tolerance  float64       // qty slack before a drift counts, default 1e-4

	mu sync.Mutex
}

// Drift is one base asset whose exchange holding cannot cover the
// ledger's open quantity.
type Drift struct {
	Asset       string
	LedgerQty   float64
	ExchangeQty float64
	Shortfall   float64
}

// Report is the outcome of one reconciliation pass.
type Report struct {
	Timestamp time.Time
	Checked   int
	Drifts    []Drift
}

// Clean reports whether every position is covered.
func (r Report) Clean() bool { return len(r.Drifts) == 0 }

// Start begins periodic reconciliation until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	if s.Exchange == nil {
		log.Println("reconciliation: no exchange source, skipping")
		return
	}
	if s.Interval <= 0 {
		s.Interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report, err := s.Reconcile(ctx)
				if err != nil {
					log.Printf("❌ reconciliation failed: %v", err)
					continue
				}
				s.handleReport(report)
			}
		}
	}()
	log.Printf("✓ reconciliation started (interval %v)", s.Interval)
}

// Reconcile runs one pass comparing ledger holdings to exchange
// balances.
func (s *Service) Reconcile(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := Report{Timestamp: time.Now()}

	// Sum open long quantities per base asset. Short positions hold
	// quote, which the balance manager already tracks.
	wanted := make(map[string]float64)
	for _, p := range s.Ledger.List() {
		if p.Side != common.SideBuy {
			continue
		}
		wanted[s.baseAsset(p.Symbol)] += p.Qty
	}
	report.Checked = len(wanted)
	if len(wanted) == 0 {
		return report, nil
	}

	balances, err := s.Exchange.GetBalances(ctx)
	if err != nil {
		return report, err
	}
	held := make(map[string]float64, len(balances))
	for _, b := range balances {
		held[b.Asset] = b.Free + b.Locked
	}

	tol := s.Tolerance
	if tol <= 0 {
		tol = 1e-4
	}
	for asset, qty := range wanted {
		have := held[asset]
		if qty-have > tol {
			report.Drifts = append(report.Drifts, Drift{
				Asset:       asset,
				LedgerQty:   qty,
				ExchangeQty: have,
				Shortfall:   qty - have,
			})
		}
	}
	sort.Slice(report.Drifts, func(i, j int) bool {
		return report.Drifts[i].Asset < report.Drifts[j].Asset
	})
	return report, nil
}

func (s *Service) baseAsset(symbol string) string {
	if s.QuoteAsset != "" {
		if base, ok := strings.CutSuffix(symbol, s.QuoteAsset); ok {
			return base
		}
	}
	return symbol
}

func (s *Service) handleReport(report Report) {
	if report.Clean() {
		return
	}
	for _, d := range report.Drifts {
		log.Printf("⚠️ reconciliation drift: %s ledger=%.8f exchange=%.8f short=%.8f",
			d.Asset, d.LedgerQty, d.ExchangeQty, d.Shortfall)
		if s.Bus != nil {
			s.Bus.Publish(events.EventRiskAlert, events.RiskAlert{
				Kind:   "position_drift",
				Symbol: d.Asset,
				Detail: fmt.Sprintf("exchange holding short by %.8f", d.Shortfall),
				Time:   report.Timestamp,
			})
		}
	}
}
