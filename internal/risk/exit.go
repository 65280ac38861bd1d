package risk

import (
	"time"

	"spot-trader/pkg/exchanges/common"
)

// Exit reasons recorded on closed positions.
const (
	ExitStopLoss  = "stop_loss"
	ExitTarget    = "target"
	ExitMaxAge    = "max_age"
	ExitEmergency = "emergency"
	ExitManual    = "manual"
)

// PositionView is the slice of position state exit checks need.
type PositionView struct {
	Side        common.Side
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64
	TrailingPct float64
	HighWater   float64
	OpenedAt    time.Time
}

// ExitDecision says what the monitor should do with a position.
type ExitDecision struct {
	Close     bool
	Reason    string
	NewStop   float64 // non-zero when the trailing stop should advance
	HighWater float64 // updated mark when NewStop is set
}

// EvaluateExit checks a position against the current price. Hard stops
// win over targets, targets over age, and trailing adjustments only
// happen when nothing closes.
func EvaluateExit(p PositionView, price float64, maxAge time.Duration, now time.Time) ExitDecision {
	if p.Side == common.SideBuy {
		if price <= p.StopPrice {
			return ExitDecision{Close: true, Reason: ExitStopLoss}
		}
		if p.TargetPrice > 0 && price >= p.TargetPrice {
			return ExitDecision{Close: true, Reason: ExitTarget}
		}
	} else {
		if price >= p.StopPrice {
			return ExitDecision{Close: true, Reason: ExitStopLoss}
		}
		if p.TargetPrice > 0 && price <= p.TargetPrice {
			return ExitDecision{Close: true, Reason: ExitTarget}
		}
	}

	if maxAge > 0 && now.Sub(p.OpenedAt) >= maxAge {
		return ExitDecision{Close: true, Reason: ExitMaxAge}
	}

	if p.TrailingPct > 0 {
		if p.Side == common.SideBuy && price > p.HighWater {
			candidate := price * (1 - p.TrailingPct)
			if candidate > p.StopPrice {
				return ExitDecision{NewStop: candidate, HighWater: price}
			}
			return ExitDecision{HighWater: price}
		}
		if p.Side == common.SideSell && price < p.HighWater {
			candidate := price * (1 + p.TrailingPct)
			if candidate < p.StopPrice {
				return ExitDecision{NewStop: candidate, HighWater: price}
			}
			return ExitDecision{HighWater: price}
		}
	}

	return ExitDecision{}
}

// LossFraction returns the unrealized loss as a fraction of entry
// notional, 0 when the position is in profit.
func LossFraction(p PositionView, qty, price float64) float64 {
	notional := qty * p.EntryPrice
	if notional <= 0 {
		return 0
	}
	var pnl float64
	if p.Side == common.SideBuy {
		pnl = (price - p.EntryPrice) * qty
	} else {
		pnl = (p.EntryPrice - price) * qty
	}
	if pnl >= 0 {
		return 0
	}
	return -pnl / notional
}
