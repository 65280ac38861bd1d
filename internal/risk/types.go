package risk

import (
	"errors"
	"fmt"

	"spot-trader/pkg/exchanges/common"
)

// ErrInvalidRiskDistance means entry and stop do not define a usable
// risk distance (equal, inverted, or non-positive prices).
var ErrInvalidRiskDistance = errors.New("invalid risk distance between entry and stop")

// LimitError reports which risk rule blocked a trade.
type LimitError struct {
	Rule   string
	Detail string
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("risk limit %s: %s", e.Rule, e.Detail)
}

// Limit rule names used in LimitError and logs.
const (
	RuleHalted       = "trading_halted"
	RuleDuplicate    = "duplicate_position"
	RuleMaxPositions = "max_positions"
	RuleDailyLoss    = "daily_loss_limit"
	RuleDrawdown     = "max_drawdown"
	RuleMinNotional  = "min_notional"
	RuleExposure     = "max_exposure"
)

// Config defines risk management parameters.
type Config struct {
	RiskPerTrade      float64 // fraction of balance risked per trade
	MaxPositions      int
	MaxExposurePct    float64 // open notional ceiling as a fraction of balance
	DailyLossLimitPct float64
	MaxDrawdownPct    float64 // drawdown from peak equity that blocks new entries
	PositionLossPct   float64 // single-position loss fraction for emergency close
	MinOrderNotional  float64
	MaxOrderNotional  float64
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		RiskPerTrade:      0.02,
		MaxPositions:      5,
		MaxExposurePct:    0.50,
		DailyLossLimitPct: 0.05,
		MaxDrawdownPct:    0.20,
		PositionLossPct:   0.10,
		MinOrderNotional:  10.0,
		MaxOrderNotional:  100000.0,
	}
}

// Input carries everything ValidateAndSize needs to judge one entry.
type Input struct {
	Symbol            string
	Side              common.Side
	Entry             float64
	Stop              float64
	Balance           float64 // total account value
	Available         float64 // spendable quote balance
	OpenPositions     int
	Exposure          float64 // current open notional
	SymbolHasPosition bool
}

// Decision is an approved, sized trade.
type Decision struct {
	Qty      float64
	Notional float64
	Warning  string
}

// Metrics tracks realized results and check counters.
type Metrics struct {
	DailyPnL         float64 `json:"daily_pnl"`
	DailyTrades      int     `json:"daily_trades"`
	TotalRealizedPnL float64 `json:"total_realized_pnl"`
	MaxProfit        float64 `json:"max_profit"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	WinRate          float64 `json:"win_rate"`
	ProfitFactor     float64 `json:"profit_factor"`
	Wins             int     `json:"wins"`
	Losses           int     `json:"losses"`
	GrossProfit      float64 `json:"gross_profit"`
	GrossLoss        float64 `json:"gross_loss"`
	ChecksTotal      uint64  `json:"checks_total"`
	RejectionsTotal  uint64  `json:"rejections_total"`
}
