package market

import (
	"testing"
	"time"

	"spot-trader/pkg/exchanges/common"
	market "spot-trader/pkg/market/binance"
)

func TestStoreViewStaleness(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(10, 10*time.Second)
	s.now = func() time.Time { return now }

	if view := s.View("BTCUSDT"); !view.Stale {
		t.Error("empty store must report stale")
	}

	s.SetTicker("BTCUSDT", common.Ticker{Bid: 99, Ask: 101})
	if view := s.View("BTCUSDT"); view.Stale {
		t.Error("fresh update must not be stale")
	}

	now = now.Add(11 * time.Second)
	if view := s.View("BTCUSDT"); !view.Stale {
		t.Error("view past max age must be stale")
	}

	// Any new data revives the symbol.
	s.AddTrade("BTCUSDT", market.Trade{Price: 100, Qty: 1})
	if view := s.View("BTCUSDT"); view.Stale {
		t.Error("new trade must clear staleness")
	}
}

func TestStoreTradeWindowEviction(t *testing.T) {
	s := NewStore(3, time.Minute)

	for i := 1; i <= 5; i++ {
		s.AddTrade("ETHUSDT", market.Trade{Price: float64(100 + i), Qty: 1})
	}

	view := s.View("ETHUSDT")
	if len(view.Trades) != 3 {
		t.Fatalf("trades kept = %d, want 3", len(view.Trades))
	}
	if view.Trades[0].Price != 103 || view.Trades[2].Price != 105 {
		t.Errorf("window = [%v..%v], want [103..105]", view.Trades[0].Price, view.Trades[2].Price)
	}
}

func TestStoreViewCopiesTrades(t *testing.T) {
	s := NewStore(10, time.Minute)
	s.AddTrade("BTCUSDT", market.Trade{Price: 100, Qty: 1})

	view := s.View("BTCUSDT")
	view.Trades[0].Price = 0

	if again := s.View("BTCUSDT"); again.Trades[0].Price != 100 {
		t.Error("View must hand out a copy of the trade window")
	}
}

func TestStoreLastPrice(t *testing.T) {
	s := NewStore(10, time.Minute)

	if _, ok := s.LastPrice("BTCUSDT"); ok {
		t.Error("unknown symbol must report no price")
	}

	s.SetTicker("BTCUSDT", common.Ticker{Bid: 99, Ask: 101})
	if p, ok := s.LastPrice("BTCUSDT"); !ok || p != 100 {
		t.Errorf("LastPrice from ticker = %v, %v; want 100, true", p, ok)
	}

	s.AddTrade("BTCUSDT", market.Trade{Price: 100.5, Qty: 1})
	if p, _ := s.LastPrice("BTCUSDT"); p != 100.5 {
		t.Errorf("LastPrice from trade = %v, want 100.5", p)
	}
}
