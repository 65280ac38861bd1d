package monitor

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"spot-trader/internal/events"
	"spot-trader/internal/ledger"
	"spot-trader/internal/risk"
	"spot-trader/internal/router"
	"spot-trader/pkg/exchanges/common"
)

type fakeCloser struct {
	mu     sync.Mutex
	calls  []string      // symbols in close order
	fail   int           // fail this many calls before succeeding
	reject bool          // fail with a rejection instead of a transient error
	delay  time.Duration // simulated exchange latency
}

func (f *fakeCloser) CloseMarket(ctx context.Context, symbol string, side common.Side, qty, refPrice float64) (router.Report, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		if f.reject {
			return router.Report{}, common.Reject("close "+symbol, -2010, "insufficient balance")
		}
		return router.Report{}, common.Transient("close "+symbol, context.DeadlineExceeded)
	}
	f.calls = append(f.calls, symbol)
	return router.Report{RequestedQty: qty, FilledQty: qty, AvgPrice: refPrice, Style: router.StyleMarket}, nil
}

func (f *fakeCloser) closed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakePrices struct {
	prices map[string]float64
	stale  map[string]bool
}

func (f *fakePrices) Quote(symbol string) (float64, bool) {
	p, ok := f.prices[symbol]
	if !ok {
		return 0, false
	}
	return p, !f.stale[symbol]
}

func newTestMonitor(t *testing.T, prices map[string]float64) (*PositionMonitor, *ledger.Ledger, *fakeCloser, *risk.Manager) {
	t.Helper()
	led := ledger.New(nil)
	closer := &fakeCloser{}
	rm := risk.NewManager(risk.DefaultConfig())
	rm.SetDayStartEquity(10000)
	m := &PositionMonitor{
		Ledger:          led,
		Risk:            rm,
		Prices:          &fakePrices{prices: prices},
		Closer:          closer,
		Interval:        time.Hour,
		MaxPositionAge:  24 * time.Hour,
		PositionLossPct: 0.10,
	}
	return m, led, closer, rm
}

func TestSweepClosesStopHitOnce(t *testing.T) {
	m, led, closer, rm := newTestMonitor(t, map[string]float64{"BTCUSDT": 94})
	ctx := context.Background()

	if _, err := led.Open(ctx, "BTCUSDT", common.SideBuy, 1, 100, 95, 110, 0, 0); err != nil {
		t.Fatalf("open: %v", err)
	}

	m.Sweep(ctx)
	m.Sweep(ctx)

	if got := closer.closed(); len(got) != 1 {
		t.Fatalf("close calls = %v, want exactly one", got)
	}
	if led.Count() != 0 {
		t.Errorf("open positions = %d, want 0", led.Count())
	}
	metrics := rm.Metrics()
	if metrics.DailyTrades != 1 {
		t.Errorf("daily trades = %d, want 1", metrics.DailyTrades)
	}
	if math.Abs(metrics.DailyPnL-(-6)) > 1e-9 {
		t.Errorf("daily pnl = %v, want -6", metrics.DailyPnL)
	}
}

func TestSweepAdvancesTrailingStop(t *testing.T) {
	m, led, closer, _ := newTestMonitor(t, map[string]float64{"ETHUSDT": 108})
	ctx := context.Background()

	p, err := led.Open(ctx, "ETHUSDT", common.SideBuy, 1, 100, 95, 0, 0.02, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	m.Sweep(ctx)

	if len(closer.closed()) != 0 {
		t.Fatal("trailing advance must not close the position")
	}
	got, ok := led.Get(p.ID)
	if !ok {
		t.Fatal("position vanished")
	}
	want := 108 * 0.98
	if math.Abs(got.StopPrice-want) > 1e-9 {
		t.Errorf("stop = %v, want %v", got.StopPrice, want)
	}
	if got.HighWater != 108 {
		t.Errorf("high water = %v, want 108", got.HighWater)
	}
}

func TestStalePriceStillFiresStop(t *testing.T) {
	m, led, closer, _ := newTestMonitor(t, map[string]float64{"BTCUSDT": 94})
	m.Prices = &fakePrices{
		prices: map[string]float64{"BTCUSDT": 94},
		stale:  map[string]bool{"BTCUSDT": true},
	}
	ctx := context.Background()

	if _, err := led.Open(ctx, "BTCUSDT", common.SideBuy, 1, 100, 95, 0, 0, 0); err != nil {
		t.Fatalf("open: %v", err)
	}

	m.Sweep(ctx)

	if got := closer.closed(); len(got) != 1 {
		t.Fatalf("close calls = %v, want one: a stale feed must not disable the stop", got)
	}
	if led.Count() != 0 {
		t.Errorf("open positions = %d, want 0", led.Count())
	}
}

func TestStalePriceSkipsTrailingAdvance(t *testing.T) {
	m, led, closer, _ := newTestMonitor(t, nil)
	m.Prices = &fakePrices{
		prices: map[string]float64{"ETHUSDT": 108},
		stale:  map[string]bool{"ETHUSDT": true},
	}
	ctx := context.Background()

	p, err := led.Open(ctx, "ETHUSDT", common.SideBuy, 1, 100, 95, 0, 0.02, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	m.Sweep(ctx)

	if len(closer.closed()) != 0 {
		t.Fatal("stale winner must stay open")
	}
	got, _ := led.Get(p.ID)
	if got.StopPrice != 95 {
		t.Errorf("stop = %v, want 95: stale prices must not move the stop", got.StopPrice)
	}
}

type fakeTickers struct {
	tickers map[string]common.Ticker
}

func (f *fakeTickers) GetTicker(ctx context.Context, symbol string) (common.Ticker, error) {
	tk, ok := f.tickers[symbol]
	if !ok {
		return common.Ticker{}, common.Transient("ticker "+symbol, context.DeadlineExceeded)
	}
	return tk, nil
}

func TestStaleFeedFallsBackToVenueTicker(t *testing.T) {
	m, led, closer, _ := newTestMonitor(t, nil)
	m.Prices = &fakePrices{} // feed knows nothing
	m.Tickers = &fakeTickers{tickers: map[string]common.Ticker{
		"BTCUSDT": {Symbol: "BTCUSDT", Bid: 93.9, Ask: 94.1},
	}}
	ctx := context.Background()

	if _, err := led.Open(ctx, "BTCUSDT", common.SideBuy, 1, 100, 95, 0, 0, 0); err != nil {
		t.Fatalf("open: %v", err)
	}

	m.Sweep(ctx)

	if got := closer.closed(); len(got) != 1 {
		t.Fatalf("close calls = %v, want one via the venue ticker", got)
	}
}

func TestConcurrentCloseSubmitsOneOrder(t *testing.T) {
	m, led, closer, _ := newTestMonitor(t, map[string]float64{"BTCUSDT": 98})
	closer.delay = 50 * time.Millisecond
	ctx := context.Background()

	p, err := led.Open(ctx, "BTCUSDT", common.SideBuy, 1, 100, 95, 0, 0, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// A late trigger may find the position already settled.
			if err := m.ClosePosition(ctx, p.ID, "manual"); err != nil && !errors.Is(err, ledger.ErrNotFound) {
				t.Errorf("close: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := closer.closed(); len(got) != 1 {
		t.Fatalf("exchange received %d close orders, want 1", len(got))
	}
	if led.Count() != 0 {
		t.Error("position must be settled")
	}
}

func TestSweepEmergencyClosesRunawayLoss(t *testing.T) {
	// Stop far away at 80; the 15% drawdown breaches the 10% cap first.
	m, led, closer, _ := newTestMonitor(t, map[string]float64{"SOLUSDT": 85})
	ctx := context.Background()

	if _, err := led.Open(ctx, "SOLUSDT", common.SideBuy, 2, 100, 80, 0, 0, 0); err != nil {
		t.Fatalf("open: %v", err)
	}

	m.Sweep(ctx)

	if got := closer.closed(); len(got) != 1 {
		t.Fatalf("close calls = %v, want one", got)
	}
	if led.Count() != 0 {
		t.Error("runaway loss position must be closed")
	}
}

func TestCloseRetriesTransientFailuresInCycle(t *testing.T) {
	m, led, closer, _ := newTestMonitor(t, map[string]float64{"BTCUSDT": 94})
	closer.fail = 2
	ctx := context.Background()

	if _, err := led.Open(ctx, "BTCUSDT", common.SideBuy, 1, 100, 95, 0, 0, 0); err != nil {
		t.Fatalf("open: %v", err)
	}

	m.Sweep(ctx)

	if got := closer.closed(); len(got) != 1 {
		t.Fatalf("close calls = %v, want one: transient errors retry within the cycle", got)
	}
	if led.Count() != 0 {
		t.Error("position must be settled after the in-cycle retry succeeds")
	}
}

func TestCloseFailureKeepsAlerting(t *testing.T) {
	m, led, closer, _ := newTestMonitor(t, map[string]float64{"BTCUSDT": 94})
	closer.fail = 4
	closer.reject = true // rejections are not retried in-cycle
	bus := events.NewBus()
	m.Bus = bus
	alerts, unsub := bus.Subscribe(events.EventRiskAlert, 10)
	defer unsub()
	ctx := context.Background()

	if _, err := led.Open(ctx, "BTCUSDT", common.SideBuy, 1, 100, 95, 0, 0, 0); err != nil {
		t.Fatalf("open: %v", err)
	}

	for i := 0; i < 4; i++ {
		m.Sweep(ctx)
	}

	var got int
	for done := false; !done; {
		select {
		case msg := <-alerts:
			alert, ok := msg.(events.RiskAlert)
			if !ok || alert.Kind != "close_failed" {
				t.Errorf("alert = %#v, want close_failed", msg)
			}
			got++
		default:
			done = true
		}
	}
	// Threshold is 3: the third and fourth failures each alert.
	if got != 2 {
		t.Fatalf("alerts = %d, want 2: escalation must repeat while the close keeps failing", got)
	}

	// The next sweep succeeds and settles the position.
	m.Sweep(ctx)
	if led.Count() != 0 {
		t.Error("position must close once the exchange recovers")
	}
}
