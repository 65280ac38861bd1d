package monitor

import (
	"context"
	"log"
	"os"
	"sync/atomic"
	"time"

	"spot-trader/internal/events"
	"spot-trader/internal/risk"
)

// EmergencyController flattens the whole book exactly once when a
// halt condition fires: the kill switch file appears, or the risk
// manager tripped the daily loss breaker. Repeat triggers are no-ops
// until Rearm.
type EmergencyController struct {
	Risk           *risk.Manager
	Monitor        *PositionMonitor
	Bus            *events.Bus
	KillSwitchFile string
	Interval       time.Duration

	triggered atomic.Bool
}

// Start polls the halt conditions until ctx is cancelled.
func (c *EmergencyController) Start(ctx context.Context) {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	go func() {
		ticker := time.NewTicker(c.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.check(ctx)
			}
		}
	}()
	log.Printf("✓ emergency controller started, kill switch at %s", c.KillSwitchFile)
}

func (c *EmergencyController) check(ctx context.Context) {
	if c.KillSwitchFile != "" {
		if _, err := os.Stat(c.KillSwitchFile); err == nil {
			c.Trigger(ctx, "kill switch file present")
			return
		}
	}
	if halted, reason := c.Risk.Halted(); halted && reason == "daily loss limit reached" {
		c.Trigger(ctx, reason)
	}
}

// Trigger halts trading and closes all positions. Idempotent: only the
// first caller acts, concurrent and repeat triggers return immediately.
func (c *EmergencyController) Trigger(ctx context.Context, reason string) {
	if !c.triggered.CompareAndSwap(false, true) {
		return
	}

	log.Printf("⚠️ EMERGENCY HALT: %s", reason)
	c.Risk.Halt(reason)
	if c.Bus != nil {
		c.Bus.Publish(events.EventEmergencyHalt, events.RiskAlert{
			Kind:   "emergency_halt",
			Detail: reason,
			Time:   time.Now(),
		})
	}
	c.Monitor.CloseAll(ctx, risk.ExitEmergency)
}

// Triggered reports whether the controller already fired.
func (c *EmergencyController) Triggered() bool {
	return c.triggered.Load()
}

// Rearm re-enables the controller after an operator resume.
func (c *EmergencyController) Rearm() {
	c.triggered.Store(false)
	log.Printf("🔄 emergency controller rearmed")
}
