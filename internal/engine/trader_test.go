package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"spot-trader/internal/balance"
	"spot-trader/internal/ledger"
	"spot-trader/internal/risk"
	"spot-trader/internal/router"
	"spot-trader/internal/scorer"
	"spot-trader/pkg/exchanges/common"
)

type fakeViews struct {
	views map[string]scorer.MarketView
}

func (f *fakeViews) View(symbol string) scorer.MarketView {
	v, ok := f.views[symbol]
	if !ok {
		return scorer.MarketView{Symbol: symbol, Stale: true}
	}
	return v
}

type fakeScorer struct {
	signal *scorer.Signal
	err    error
	calls  int
}

func (f *fakeScorer) Name() string { return "fake" }

func (f *fakeScorer) Score(view scorer.MarketView) (*scorer.Signal, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.signal == nil {
		return nil, nil
	}
	sig := *f.signal
	sig.Symbol = view.Symbol
	return &sig, nil
}

type fakeExecutor struct {
	reports []router.Report
	err     error
	intents []router.Intent
}

func (f *fakeExecutor) Execute(ctx context.Context, intent router.Intent) (router.Report, error) {
	f.intents = append(f.intents, intent)
	if f.err != nil {
		return router.Report{}, f.err
	}
	if len(f.reports) > 0 {
		r := f.reports[0]
		if len(f.reports) > 1 {
			f.reports = f.reports[1:]
		}
		return r, nil
	}
	return router.Report{RequestedQty: intent.Qty, FilledQty: intent.Qty, AvgPrice: intent.Entry}, nil
}

func buySignal() *scorer.Signal {
	return &scorer.Signal{
		Side:   common.SideBuy,
		Score:  8.2,
		Entry:  100,
		Stop:   95,
		Target: 110,
		Time:   time.Now(),
	}
}

func newTestTrader(t *testing.T, sc scorer.Scorer, exec Executor) (*Trader, *ledger.Ledger, *balance.Manager) {
	t.Helper()
	led := ledger.New(nil)
	bal := balance.NewManager(nil, "USDT", time.Hour)
	bal.SetInitial(10000)
	rm := risk.NewManager(risk.DefaultConfig())
	rm.SetDayStartEquity(10000)

	tr := &Trader{
		Symbols: []string{"BTCUSDT"},
		Store: &fakeViews{views: map[string]scorer.MarketView{
			"BTCUSDT": {Symbol: "BTCUSDT", Ticker: common.Ticker{Bid: 99.9, Ask: 100.1}},
		}},
		Scorers: []scorer.Scorer{sc},
		Risk:    rm,
		Balance: bal,
		Ledger:  led,
		Router:  exec,
	}
	return tr, led, bal
}

func TestScanOpensPositionOnSignal(t *testing.T) {
	exec := &fakeExecutor{reports: []router.Report{
		{RequestedQty: 40, FilledQty: 40, AvgPrice: 100.2},
	}}
	tr, led, bal := newTestTrader(t, &fakeScorer{signal: buySignal()}, exec)

	tr.Scan(context.Background())

	if len(exec.intents) != 1 {
		t.Fatalf("intents routed = %d, want 1", len(exec.intents))
	}
	// 2% of 10000 over a 5 point risk distance.
	if got := exec.intents[0].Qty; math.Abs(got-40) > 1e-9 {
		t.Errorf("intent qty = %v, want 40", got)
	}

	if led.Count() != 1 {
		t.Fatalf("open positions = %d, want 1", led.Count())
	}
	p, _ := led.OpenBySymbol("BTCUSDT")
	if p.Qty != 40 || p.EntryPrice != 100.2 {
		t.Errorf("position = %v @ %v, want 40 @ 100.2", p.Qty, p.EntryPrice)
	}
	if p.StopPrice != 95 || p.TargetPrice != 110 {
		t.Errorf("stop/target = %v/%v, want 95/110", p.StopPrice, p.TargetPrice)
	}

	wantAvail := 10000 - 40*100.2
	if got := bal.Available(); math.Abs(got-wantAvail) > 1e-9 {
		t.Errorf("available = %v, want %v", got, wantAvail)
	}
}

func TestScanDryRunRoutesNothing(t *testing.T) {
	exec := &fakeExecutor{}
	tr, led, bal := newTestTrader(t, &fakeScorer{signal: buySignal()}, exec)
	tr.DryRun = true

	tr.Scan(context.Background())

	if len(exec.intents) != 0 {
		t.Errorf("intents routed = %d, want 0 in dry run", len(exec.intents))
	}
	if led.Count() != 0 {
		t.Errorf("open positions = %d, want 0", led.Count())
	}
	if bal.Available() != 10000 {
		t.Errorf("available = %v, want untouched 10000", bal.Available())
	}
}

func TestScanSkipsStaleView(t *testing.T) {
	sc := &fakeScorer{signal: buySignal()}
	tr, _, _ := newTestTrader(t, sc, &fakeExecutor{})
	tr.Store = &fakeViews{views: map[string]scorer.MarketView{
		"BTCUSDT": {Symbol: "BTCUSDT", Stale: true},
	}}

	tr.Scan(context.Background())

	if sc.calls != 0 {
		t.Errorf("scorer calls = %d, want 0 on stale view", sc.calls)
	}
}

func TestScanHaltBlocksEntry(t *testing.T) {
	exec := &fakeExecutor{}
	tr, led, _ := newTestTrader(t, &fakeScorer{signal: buySignal()}, exec)
	tr.Risk.Halt("operator")

	tr.Scan(context.Background())

	if len(exec.intents) != 0 || led.Count() != 0 {
		t.Error("halted risk manager must block entries")
	}
}

func TestScanOrderFailureRestoresBalance(t *testing.T) {
	exec := &fakeExecutor{err: common.Transient("submit", context.DeadlineExceeded)}
	tr, led, bal := newTestTrader(t, &fakeScorer{signal: buySignal()}, exec)

	tr.Scan(context.Background())

	if led.Count() != 0 {
		t.Error("failed order must not open a position")
	}
	if bal.Available() != 10000 {
		t.Errorf("available = %v, want restored 10000", bal.Available())
	}
}

func TestScanUnfilledOrderOpensNothing(t *testing.T) {
	exec := &fakeExecutor{reports: []router.Report{{RequestedQty: 40}}}
	tr, led, bal := newTestTrader(t, &fakeScorer{signal: buySignal()}, exec)

	tr.Scan(context.Background())

	if led.Count() != 0 {
		t.Error("zero-fill order must not open a position")
	}
	if bal.Available() != 10000 {
		t.Errorf("available = %v, want restored 10000", bal.Available())
	}
}
