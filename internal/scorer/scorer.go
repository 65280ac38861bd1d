// Package scorer turns market snapshots into scored entry signals.
package scorer

import (
	"time"

	market "spot-trader/pkg/market/binance"

	"spot-trader/pkg/exchanges/common"
)

// Signal is a scored trade suggestion. Score is on a 0-10 scale.
type Signal struct {
	Symbol  string
	Side    common.Side
	Score   float64
	Entry   float64
	Stop    float64
	Target  float64
	Factors map[string]float64
	Note    string
	Time    time.Time
}

// MarketView is the snapshot a scorer judges: top of book, depth, and
// a window of recent trades, oldest first.
type MarketView struct {
	Symbol string
	Ticker common.Ticker
	Book   common.OrderBook
	Trades []market.Trade
	Stale  bool
}

// Scorer evaluates one market view. A nil signal means no trade.
type Scorer interface {
	Name() string
	Score(view MarketView) (*Signal, error)
}
