package market

import (
	"context"
	"log"
	"sync"
	"time"

	"spot-trader/internal/events"
	"spot-trader/pkg/exchanges/common"
	market "spot-trader/pkg/market/binance"
)

// Feed supervises the websocket streams per symbol and keeps the
// snapshot store warm. Each stream reconnects with jittered exponential
// backoff; while a book ticker stream is down the REST endpoint fills
// the gap so the snapshot does not go stale silently.
type Feed struct {
	Stream       *market.StreamClient
	Rest         *market.Client
	Exchange     common.Gateway // depth snapshots
	Bus          *events.Bus
	Store        *Store
	Symbols      []string
	BookInterval time.Duration // depth poll cadence
	BookDepth    int

	wg sync.WaitGroup
}

// Start launches the stream supervisors and the depth poller. It
// returns immediately; Wait blocks until ctx cancellation drains them.
func (f *Feed) Start(ctx context.Context) {
	if f.Store == nil || f.Stream == nil {
		log.Println("market feed not fully configured; skipping start")
		return
	}
	if f.BookInterval <= 0 {
		f.BookInterval = 2 * time.Second
	}
	if f.BookDepth <= 0 {
		f.BookDepth = 10
	}

	for _, sym := range f.Symbols {
		symbol := sym

		f.wg.Add(2)
		go func() {
			defer f.wg.Done()
			f.superviseTrades(ctx, symbol)
		}()
		go func() {
			defer f.wg.Done()
			f.superviseBookTicker(ctx, symbol)
		}()
	}

	if f.Exchange != nil {
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.pollBooks(ctx)
		}()
	}
}

// Wait blocks until all supervisors exit.
func (f *Feed) Wait() {
	f.wg.Wait()
}

// superviseTrades keeps the trade stream for symbol alive.
func (f *Feed) superviseTrades(ctx context.Context, symbol string) {
	backoff := NewBackoff()
	for {
		if ctx.Err() != nil {
			return
		}

		ch, stop, err := f.Stream.SubscribeTrades(ctx, symbol)
		if err != nil {
			f.sleepBackoff(ctx, symbol, "trades", backoff, err)
			continue
		}
		backoff.Reset()
		log.Printf("✓ market feed: %s trade stream connected", symbol)

		for trade := range ch {
			f.Store.AddTrade(symbol, trade)
		}
		stop()
		// Channel closed: the read loop died, reconnect.
		f.sleepBackoff(ctx, symbol, "trades", backoff, nil)
	}
}

// superviseBookTicker keeps the top-of-book stream alive and publishes
// price ticks. While reconnecting it falls back to REST once per cycle.
func (f *Feed) superviseBookTicker(ctx context.Context, symbol string) {
	backoff := NewBackoff()
	for {
		if ctx.Err() != nil {
			return
		}

		ch, stop, err := f.Stream.SubscribeBookTicker(ctx, symbol)
		if err != nil {
			f.restFallback(ctx, symbol)
			f.sleepBackoff(ctx, symbol, "bookTicker", backoff, err)
			continue
		}
		backoff.Reset()
		log.Printf("✓ market feed: %s book ticker stream connected", symbol)

		for bt := range ch {
			f.applyBookTicker(symbol, bt)
		}
		stop()
		f.restFallback(ctx, symbol)
		f.sleepBackoff(ctx, symbol, "bookTicker", backoff, nil)
	}
}

func (f *Feed) applyBookTicker(symbol string, bt market.BookTicker) {
	ticker := common.Ticker{
		Bid:       bt.BidPrice,
		Ask:       bt.AskPrice,
		Last:      (bt.BidPrice + bt.AskPrice) / 2,
		Timestamp: time.Now(),
	}
	f.Store.SetTicker(symbol, ticker)

	if f.Bus != nil {
		f.Bus.Publish(events.EventPriceTick, events.PriceTick{
			Symbol: symbol,
			Price:  ticker.Mid(),
			Time:   ticker.Timestamp,
		})
	}
}

// restFallback refreshes the ticker over REST so one failed websocket
// cycle does not mark the symbol stale.
func (f *Feed) restFallback(ctx context.Context, symbol string) {
	if f.Rest == nil || ctx.Err() != nil {
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	bt, err := f.Rest.GetBookTicker(reqCtx, symbol)
	if err != nil {
		log.Printf("market feed: %s REST fallback: %v", symbol, err)
		return
	}
	f.applyBookTicker(symbol, bt)
}

func (f *Feed) sleepBackoff(ctx context.Context, symbol, stream string, b *Backoff, err error) {
	delay := b.Next()
	if err != nil {
		log.Printf("⚠️ market feed: %s %s stream error: %v (retry in %s)", symbol, stream, err, delay.Round(time.Millisecond))
	} else {
		log.Printf("🔄 market feed: %s %s stream closed, reconnecting in %s", symbol, stream, delay.Round(time.Millisecond))
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// pollBooks refreshes depth snapshots for all symbols on a fixed
// cadence. Depth has no combined websocket stream worth the churn at
// this trade frequency; polling keeps the imbalance factor honest.
func (f *Feed) pollBooks(ctx context.Context) {
	ticker := time.NewTicker(f.BookInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range f.Symbols {
				reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				book, err := f.Exchange.GetOrderBook(reqCtx, symbol, f.BookDepth)
				cancel()
				if err != nil {
					log.Printf("market feed: %s depth poll: %v", symbol, err)
					continue
				}
				f.Store.SetBook(symbol, book)
			}
		}
	}
}
