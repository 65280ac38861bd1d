package market

import (
	"context"
	"log"
	"math/rand"
	"time"

	"spot-trader/internal/events"
	"spot-trader/pkg/exchanges/common"
	market "spot-trader/pkg/market/binance"
)

// MockFeed writes a synthetic random walk into the snapshot store for
// local development without exchange connectivity.
type MockFeed struct {
	Bus        *events.Bus
	Store      *Store
	Symbols    []string
	StartPrice float64
	Step       float64
	Interval   time.Duration
}

func (m *MockFeed) Start(ctx context.Context) {
	if m.Store == nil {
		log.Println("mock feed: store not set")
		return
	}
	if len(m.Symbols) == 0 {
		m.Symbols = []string{"BTCUSDT"}
	}
	if m.StartPrice == 0 {
		m.StartPrice = 100.0
	}
	if m.Step == 0 {
		m.Step = 0.05
	}
	if m.Interval == 0 {
		m.Interval = time.Second
	}

	prices := make(map[string]float64, len(m.Symbols))
	for _, sym := range m.Symbols {
		prices[sym] = m.StartPrice
	}

	go func() {
		t := time.NewTicker(m.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				for _, sym := range m.Symbols {
					prices[sym] = m.tick(sym, prices[sym])
				}
			}
		}
	}()
	log.Printf("✓ mock feed started for %d symbol(s)", len(m.Symbols))
}

// tick advances the walk one step and records trade, ticker and a
// synthetic two-sided book.
func (m *MockFeed) tick(symbol string, price float64) float64 {
	price += (rand.Float64()*2 - 1) * m.Step
	if price <= 0 {
		price = m.Step
	}
	now := time.Now()

	m.Store.AddTrade(symbol, market.Trade{
		Symbol:       symbol,
		Price:        price,
		Qty:          0.5 + rand.Float64(),
		Time:         now.UnixMilli(),
		IsBuyerMaker: rand.Intn(2) == 0,
	})

	half := price * 0.0005
	ticker := common.Ticker{
		Bid:       price - half,
		Ask:       price + half,
		Last:      price,
		Timestamp: now,
	}
	m.Store.SetTicker(symbol, ticker)

	book := common.OrderBook{}
	for i := 1; i <= 10; i++ {
		gap := half * float64(i)
		book.Bids = append(book.Bids, common.BookLevel{Price: price - gap, Qty: 5 + rand.Float64()*10})
		book.Asks = append(book.Asks, common.BookLevel{Price: price + gap, Qty: 5 + rand.Float64()*10})
	}
	m.Store.SetBook(symbol, book)

	if m.Bus != nil {
		m.Bus.Publish(events.EventPriceTick, events.PriceTick{Symbol: symbol, Price: price, Time: now})
	}
	return price
}
