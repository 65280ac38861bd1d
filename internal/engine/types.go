package engine

import "time"

// PositionInfo is an open position enriched with the live mark.
type PositionInfo struct {
	ID            string    `json:"id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Qty           float64   `json:"qty"`
	EntryPrice    float64   `json:"entry_price"`
	StopPrice     float64   `json:"stop_price"`
	TargetPrice   float64   `json:"target_price"`
	TrailingPct   float64   `json:"trailing_pct,omitempty"`
	HighWater     float64   `json:"high_water"`
	CurrentPrice  float64   `json:"current_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	Notional      float64   `json:"notional"`
	OpenedAt      time.Time `json:"opened_at"`
	AgeSeconds    float64   `json:"age_seconds"`
}

// ClosedPositionInfo summarizes a finished trade.
type ClosedPositionInfo struct {
	ID          string     `json:"id"`
	Symbol      string     `json:"symbol"`
	Side        string     `json:"side"`
	Qty         float64    `json:"qty"`
	EntryPrice  float64    `json:"entry_price"`
	ClosePrice  float64    `json:"close_price"`
	RealizedPnL float64    `json:"realized_pnl"`
	Fees        float64    `json:"fees"`
	Reason      string     `json:"close_reason"`
	OpenedAt    time.Time  `json:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at"`
}

// OrderInfo represents a routed order for API consumers.
type OrderInfo struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"`
	Type         string    `json:"type"`
	Price        float64   `json:"price,omitempty"`
	Qty          float64   `json:"qty"`
	FilledQty    float64   `json:"filled_qty"`
	AvgFillPrice float64   `json:"avg_fill_price"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BalanceInfo represents quote asset balance information.
type BalanceInfo struct {
	Available float64 `json:"available"`
	Locked    float64 `json:"locked"`
	Total     float64 `json:"total"`
}

// SystemStatus represents the trader runtime status.
type SystemStatus struct {
	Mode          string    `json:"mode"`
	DryRun        bool      `json:"dry_run"`
	Venue         string    `json:"venue"`
	Symbols       []string  `json:"symbols"`
	UseMockFeed   bool      `json:"use_mock_feed"`
	Version       string    `json:"version"`
	Halted        bool      `json:"halted"`
	HaltReason    string    `json:"halt_reason,omitempty"`
	OpenPositions int       `json:"open_positions"`
	ServerTime    time.Time `json:"server_time"`
}
