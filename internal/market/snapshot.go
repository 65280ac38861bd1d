package market

import (
	"sync"
	"time"

	"spot-trader/internal/scorer"
	"spot-trader/pkg/exchanges/common"
	market "spot-trader/pkg/market/binance"
)

// Store holds the latest market snapshot per symbol: top of book,
// depth, and a bounded window of recent trades feeding the scorers.
type Store struct {
	mu          sync.RWMutex
	snapshots   map[string]*snapshot
	tradeWindow int
	maxAge      time.Duration
	now         func() time.Time
}

type snapshot struct {
	ticker  common.Ticker
	book    common.OrderBook
	trades  []market.Trade
	updated time.Time
}

// NewStore creates a store keeping up to tradeWindow trades per symbol.
// Views older than maxAge are flagged stale.
func NewStore(tradeWindow int, maxAge time.Duration) *Store {
	if tradeWindow <= 0 {
		tradeWindow = 200
	}
	return &Store{
		snapshots:   make(map[string]*snapshot),
		tradeWindow: tradeWindow,
		maxAge:      maxAge,
		now:         time.Now,
	}
}

func (s *Store) get(symbol string) *snapshot {
	snap, ok := s.snapshots[symbol]
	if !ok {
		snap = &snapshot{}
		s.snapshots[symbol] = snap
	}
	return snap
}

// SetTicker records the latest top of book.
func (s *Store) SetTicker(symbol string, t common.Ticker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.get(symbol)
	snap.ticker = t
	snap.updated = s.now()
}

// SetBook records the latest depth snapshot.
func (s *Store) SetBook(symbol string, book common.OrderBook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.get(symbol)
	snap.book = book
	snap.updated = s.now()
}

// AddTrade appends a trade, evicting the oldest past the window.
func (s *Store) AddTrade(symbol string, t market.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.get(symbol)
	snap.trades = append(snap.trades, t)
	if len(snap.trades) > s.tradeWindow {
		snap.trades = snap.trades[len(snap.trades)-s.tradeWindow:]
	}
	snap.updated = s.now()
}

// View assembles the scoring snapshot for symbol. The Stale flag is
// set when no update arrived within maxAge, or nothing arrived at all.
func (s *Store) View(symbol string) scorer.MarketView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view := scorer.MarketView{Symbol: symbol, Stale: true}
	snap, ok := s.snapshots[symbol]
	if !ok {
		return view
	}

	view.Ticker = snap.ticker
	view.Book = snap.book
	view.Trades = append([]market.Trade(nil), snap.trades...)
	if !snap.updated.IsZero() && s.now().Sub(snap.updated) <= s.maxAge {
		view.Stale = false
	}
	return view
}

// Quote returns the latest price and whether it is fresh enough to act
// on. Exit logic must not fire on a feed that went dark.
func (s *Store) Quote(symbol string) (float64, bool) {
	s.mu.RLock()
	snap, ok := s.snapshots[symbol]
	fresh := ok && !snap.updated.IsZero() && s.now().Sub(snap.updated) <= s.maxAge
	s.mu.RUnlock()

	price, has := s.LastPrice(symbol)
	return price, has && fresh
}

// LastPrice returns the most recent trade or mid price for symbol.
func (s *Store) LastPrice(symbol string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[symbol]
	if !ok {
		return 0, false
	}
	if n := len(snap.trades); n > 0 {
		return snap.trades[n-1].Price, true
	}
	if mid := snap.ticker.Mid(); mid > 0 {
		return mid, true
	}
	return 0, false
}
