package common

import "time"

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side for a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType denotes basic order types.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC" // Good Till Cancelled
	TIFIOC TimeInForce = "IOC" // Immediate Or Cancel
	TIFFOK TimeInForce = "FOK" // Fill Or Kill
)

// OrderStatus normalizes exchange status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusPartial  OrderStatus = "PARTIAL"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusExpired  OrderStatus = "EXPIRED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// Terminal reports whether the status can no longer change.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// CanProgress reports whether an order may legally move from s to t.
// Status comes from polling, so responses can arrive out of order;
// callers discard moves out of a terminal state or from PARTIAL back
// to NEW.
func (s OrderStatus) CanProgress(t OrderStatus) bool {
	if s == t {
		return true
	}
	if s.Terminal() {
		return false
	}
	if s == StatusPartial && t == StatusNew {
		return false
	}
	return true
}

// OrderRequest captures an order to be sent to an exchange.
type OrderRequest struct {
	Symbol      string
	Side        Side
	Type        OrderType
	Qty         float64
	Price       float64 // required for LIMIT
	TimeInForce TimeInForce
	ClientID    string // optional client order id
}

// OrderResult returns the exchange ack.
type OrderResult struct {
	ExchangeOrderID string
	ClientID        string
	Status          OrderStatus
	ExecutedQty     float64
	AvgPrice        float64
}

// OrderState is the polled view of a resting order.
type OrderState struct {
	ExchangeOrderID string
	Status          OrderStatus
	OrigQty         float64
	ExecutedQty     float64
	AvgPrice        float64
}

// Fill represents a trade fill update.
type Fill struct {
	ExchangeOrderID string
	TradeID         string
	Symbol          string
	Side            Side
	Qty             float64
	Price           float64
	Fee             float64
	FeeAsset        string
}

// Ticker is a best bid/ask snapshot for a symbol.
type Ticker struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Last      float64
	Timestamp time.Time
}

// Mid returns the bid/ask midpoint, falling back to last.
func (t Ticker) Mid() float64 {
	if t.Bid > 0 && t.Ask > 0 {
		return (t.Bid + t.Ask) / 2
	}
	return t.Last
}

// SpreadPct returns the relative bid/ask spread, or 0 when unknown.
func (t Ticker) SpreadPct() float64 {
	mid := t.Mid()
	if mid <= 0 || t.Bid <= 0 || t.Ask <= 0 {
		return 0
	}
	return (t.Ask - t.Bid) / mid
}

// BookLevel is one price level of an order book.
type BookLevel struct {
	Price float64
	Qty   float64
}

// OrderBook is a depth snapshot.
type OrderBook struct {
	Symbol    string
	Bids      []BookLevel // descending by price
	Asks      []BookLevel // ascending by price
	Timestamp time.Time
}

// DepthNotional sums price*qty over the top n levels of the side an
// incoming order would consume.
func (ob OrderBook) DepthNotional(side Side, n int) float64 {
	levels := ob.Bids
	if side == SideBuy {
		levels = ob.Asks
	}
	if n > len(levels) {
		n = len(levels)
	}
	var total float64
	for _, lv := range levels[:n] {
		total += lv.Price * lv.Qty
	}
	return total
}

// SpreadPct returns the relative top-of-book spread, or 0 when either
// side is empty.
func (ob OrderBook) SpreadPct() float64 {
	if len(ob.Bids) == 0 || len(ob.Asks) == 0 {
		return 0
	}
	bid, ask := ob.Bids[0].Price, ob.Asks[0].Price
	mid := (bid + ask) / 2
	if mid <= 0 {
		return 0
	}
	return (ask - bid) / mid
}

// Balance is a single-asset account balance.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}
