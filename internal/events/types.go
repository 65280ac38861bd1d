package events

import "time"

// Event enumerates high-level topics inside the trader.
type Event string

const (
	EventPriceTick      Event = "price_tick"
	EventSignal         Event = "signal"
	EventOrderSubmitted Event = "order.submitted"
	EventOrderRejected  Event = "order.rejected"
	EventOrderFilled    Event = "order.filled"
	EventOrderPartial   Event = "order.partially_filled"
	EventPositionOpened Event = "position.opened"
	EventPositionClosed Event = "position.closed"
	EventRiskAlert      Event = "risk_alert"
	EventEmergencyHalt  Event = "emergency_halt"
)

// PriceTick is the payload for EventPriceTick.
type PriceTick struct {
	Symbol string
	Price  float64
	Time   time.Time
}

// RiskAlert is the payload for EventRiskAlert.
type RiskAlert struct {
	Kind   string
	Symbol string
	Detail string
	Time   time.Time
}

// PositionEvent is the payload for position open/close topics.
type PositionEvent struct {
	PositionID string
	Symbol     string
	Side       string
	Qty        float64
	Price      float64
	Reason     string
	PnL        float64
	Time       time.Time
}
