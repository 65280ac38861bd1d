package db

import "time"

// Position is a stored position row. ClosedAt is nil while open.
type Position struct {
	ID          string
	Symbol      string
	Side        string
	Qty         float64
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64
	TrailingPct float64
	OpenedAt    time.Time
	ClosedAt    *time.Time
	ClosePrice  float64
	CloseReason string
	RealizedPnL float64
	Fees        float64
}

// Order is a stored order row.
type Order struct {
	ID              string
	PositionID      string
	ExchangeOrderID string
	Symbol          string
	Side            string
	Type            string
	Price           float64
	Qty             float64
	FilledQty       float64
	AvgFillPrice    float64
	Status          string
	IntentKey       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Fill is a stored fill row.
type Fill struct {
	ID        string
	OrderID   string
	Symbol    string
	Side      string
	Price     float64
	Qty       float64
	Fee       float64
	FeeAsset  string
	CreatedAt time.Time
}

// DayStats aggregates realized results for one UTC day.
type DayStats struct {
	Date        string // YYYY-MM-DD
	RealizedPnL float64
	Fees        float64
	Trades      int
	Wins        int
	Losses      int
}

// EquitySnapshot is a periodic account value record.
type EquitySnapshot struct {
	TakenAt       time.Time
	Balance       float64
	OpenPositions int
	UnrealizedPnL float64
}
