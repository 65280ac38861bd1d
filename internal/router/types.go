// Package router turns approved trade decisions into exchange orders:
// idempotency keys, execution style selection, and fill tracking.
package router

import (
	"errors"
	"fmt"
	"time"

	"spot-trader/pkg/exchanges/common"
)

// ErrDuplicateIntent means an equivalent order was already submitted
// inside the dedup window.
var ErrDuplicateIntent = errors.New("duplicate order intent")

// intentBucket is the time quantum for idempotency keys. Two identical
// intents inside the same bucket collapse into one.
const intentBucket = 5 * time.Minute

// Intent is a fully sized, risk-approved order request.
type Intent struct {
	Key         string
	Symbol      string
	Side        common.Side
	Qty         float64
	Entry       float64 // reference price used for sizing and the key
	Stop        float64
	Target      float64
	TrailingPct float64
	CreatedAt   time.Time
}

// IntentKey builds the idempotency key: symbol, side, reference price
// rounded to 2 decimals, and the 5-minute bucket.
func IntentKey(symbol string, side common.Side, price float64, t time.Time) string {
	return fmt.Sprintf("%s_%s_%.2f_%d", symbol, side, price, t.Unix()/int64(intentBucket.Seconds()))
}

// NewIntent builds an Intent with its key stamped.
func NewIntent(symbol string, side common.Side, qty, entry, stop, target, trailingPct float64) Intent {
	now := time.Now()
	return Intent{
		Key:         IntentKey(symbol, side, entry, now),
		Symbol:      symbol,
		Side:        side,
		Qty:         qty,
		Entry:       entry,
		Stop:        stop,
		Target:      target,
		TrailingPct: trailingPct,
		CreatedAt:   now,
	}
}

// Notional returns the intent's reference notional value.
func (i Intent) Notional() float64 {
	return i.Qty * i.Entry
}

// Style is the chosen execution method.
type Style string

const (
	StyleMarket Style = "market"
	StyleLimit  Style = "limit"
	StyleTWAP   Style = "twap"
)

// Report describes how an intent executed.
type Report struct {
	OrderID      string
	Style        Style
	RequestedQty float64
	FilledQty    float64
	AvgPrice     float64
	Fees         float64
	Slices       int
	AbortReason  string // non-empty when a TWAP stopped early
}

// Filled reports whether anything executed.
func (r Report) Filled() bool { return r.FilledQty > 0 }

// Complete reports whether the full requested quantity executed.
func (r Report) Complete() bool {
	return r.FilledQty >= r.RequestedQty-1e-12
}
