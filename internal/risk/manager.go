// Package risk gates every entry: position sizing from stop distance,
// portfolio limits, and the daily loss circuit breaker.
package risk

import (
	"log"
	"sync"
)

// Manager evaluates trades against configured limits and tracks
// realized results.
type Manager struct {
	mu      sync.RWMutex
	config  Config
	metrics Metrics

	halted     bool
	haltReason string

	// Equity at the start of the trading day; the daily loss limit is
	// measured against this, not the moving balance.
	dayStartEquity float64

	// Highest equity seen across the account's life. The drawdown gate
	// measures the distance from here.
	peakEquity float64
}

// NewManager creates a risk manager.
func NewManager(cfg Config) *Manager {
	log.Printf("Risk Manager initialized: risk/trade=%.1f%% max_positions=%d daily_loss=%.1f%%",
		cfg.RiskPerTrade*100, cfg.MaxPositions, cfg.DailyLossLimitPct*100)
	return &Manager{config: cfg}
}

// Config returns a copy of the active configuration.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// ValidateAndSize runs the full entry gate. Checks run cheapest-first;
// the first failed rule decides the error.
func (m *Manager) ValidateAndSize(in Input) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.ChecksTotal++

	if m.halted {
		m.metrics.RejectionsTotal++
		return Decision{}, &LimitError{Rule: RuleHalted, Detail: m.haltReason}
	}
	if in.SymbolHasPosition {
		m.metrics.RejectionsTotal++
		return Decision{}, &LimitError{Rule: RuleDuplicate, Detail: in.Symbol + " already has an open position"}
	}
	if in.OpenPositions >= m.config.MaxPositions {
		m.metrics.RejectionsTotal++
		return Decision{}, &LimitError{Rule: RuleMaxPositions, Detail: "open position cap reached"}
	}
	if m.config.MaxDrawdownPct > 0 && m.peakEquity > 0 {
		equity := m.dayStartEquity + m.metrics.DailyPnL
		if m.peakEquity-equity > m.peakEquity*m.config.MaxDrawdownPct {
			m.metrics.RejectionsTotal++
			return Decision{}, &LimitError{Rule: RuleDrawdown, Detail: "drawdown from peak equity exceeds limit"}
		}
	}

	qty, err := SizeByRisk(in.Side, in.Entry, in.Stop, in.Balance, m.config.RiskPerTrade)
	if err != nil {
		m.metrics.RejectionsTotal++
		return Decision{}, err
	}

	// Worst case for this trade is the full risk budget; reject when a
	// stop-out would push the day past the loss limit.
	if m.dayStartEquity > 0 && m.config.DailyLossLimitPct > 0 {
		worstCase := -m.metrics.DailyPnL + in.Balance*m.config.RiskPerTrade
		if worstCase > m.dayStartEquity*m.config.DailyLossLimitPct {
			m.metrics.RejectionsTotal++
			return Decision{}, &LimitError{Rule: RuleDailyLoss, Detail: "stop-out would breach the daily loss limit"}
		}
	}

	notional := qty * in.Entry
	var warning string

	if notional < m.config.MinOrderNotional {
		m.metrics.RejectionsTotal++
		return Decision{}, &LimitError{Rule: RuleMinNotional, Detail: "sized order below exchange minimum"}
	}
	if m.config.MaxOrderNotional > 0 && notional > m.config.MaxOrderNotional {
		qty = m.config.MaxOrderNotional / in.Entry
		notional = m.config.MaxOrderNotional
		warning = "order clamped to max notional"
	}
	if notional > in.Available {
		qty = in.Available / in.Entry
		notional = in.Available
		warning = "order clamped to available balance"
		if notional < m.config.MinOrderNotional {
			m.metrics.RejectionsTotal++
			return Decision{}, &LimitError{Rule: RuleMinNotional, Detail: "available balance below exchange minimum"}
		}
	}
	if m.config.MaxExposurePct > 0 && in.Exposure+notional > in.Balance*m.config.MaxExposurePct {
		m.metrics.RejectionsTotal++
		return Decision{}, &LimitError{Rule: RuleExposure, Detail: "total exposure cap reached"}
	}

	return Decision{Qty: qty, Notional: notional, Warning: warning}, nil
}

// RecordTradeResult folds a closed trade into the metrics and trips the
// daily loss breaker when the day's drawdown exceeds the limit.
func (m *Manager) RecordTradeResult(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.DailyPnL += pnl
	m.metrics.DailyTrades++
	m.metrics.TotalRealizedPnL += pnl

	if pnl >= 0 {
		m.metrics.Wins++
		m.metrics.GrossProfit += pnl
	} else {
		m.metrics.Losses++
		m.metrics.GrossLoss += -pnl
	}
	if total := m.metrics.Wins + m.metrics.Losses; total > 0 {
		m.metrics.WinRate = float64(m.metrics.Wins) / float64(total)
	}
	if m.metrics.GrossLoss > 0 {
		m.metrics.ProfitFactor = m.metrics.GrossProfit / m.metrics.GrossLoss
	}

	// Drawdown is measured from the best cumulative result so far.
	if m.metrics.TotalRealizedPnL > m.metrics.MaxProfit {
		m.metrics.MaxProfit = m.metrics.TotalRealizedPnL
	}
	if dd := m.metrics.MaxProfit - m.metrics.TotalRealizedPnL; dd > m.metrics.MaxDrawdown {
		m.metrics.MaxDrawdown = dd
	}
	if equity := m.dayStartEquity + m.metrics.DailyPnL; equity > m.peakEquity {
		m.peakEquity = equity
	}

	if m.dayStartEquity > 0 && m.metrics.DailyPnL <= -m.dayStartEquity*m.config.DailyLossLimitPct {
		if !m.halted {
			m.halted = true
			m.haltReason = "daily loss limit reached"
			log.Printf("⚠️ trading halted: daily pnl %.2f breached %.1f%% of %.2f",
				m.metrics.DailyPnL, m.config.DailyLossLimitPct*100, m.dayStartEquity)
		}
	}
}

// ResetDaily zeroes the day's counters and rearms the breaker. Called
// at midnight UTC with the current account equity.
func (m *Manager) ResetDaily(equity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.DailyPnL = 0
	m.metrics.DailyTrades = 0
	m.dayStartEquity = equity
	if equity > m.peakEquity {
		m.peakEquity = equity
	}
	if m.haltReason == "daily loss limit reached" {
		m.halted = false
		m.haltReason = ""
		log.Printf("🔄 daily loss breaker rearmed, day equity %.2f", equity)
	}
}

// SetDayStartEquity seeds the reference equity at startup.
func (m *Manager) SetDayStartEquity(equity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dayStartEquity = equity
	if equity > m.peakEquity {
		m.peakEquity = equity
	}
}

// Halt stops all new entries until Resume or a daily reset.
func (m *Manager) Halt(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.halted {
		return
	}
	m.halted = true
	m.haltReason = reason
	log.Printf("⚠️ trading halted: %s", reason)
}

// Resume clears a manual halt.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halted = false
	m.haltReason = ""
	log.Printf("✓ trading resumed")
}

// Halted reports the breaker state and reason.
func (m *Manager) Halted() (bool, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.halted, m.haltReason
}

// Metrics returns a copy of current metrics.
func (m *Manager) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}
