package monitor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"spot-trader/pkg/exchanges/common"
)

func TestEmergencyTriggerFlattensOnce(t *testing.T) {
	m, led, closer, rm := newTestMonitor(t, map[string]float64{
		"BTCUSDT": 100,
		"ETHUSDT": 200,
	})
	ctx := context.Background()

	if _, err := led.Open(ctx, "BTCUSDT", common.SideBuy, 1, 100, 95, 0, 0, 0); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := led.Open(ctx, "ETHUSDT", common.SideSell, 1, 200, 210, 0, 0, 0); err != nil {
		t.Fatalf("open: %v", err)
	}

	ec := &EmergencyController{Risk: rm, Monitor: m}
	ec.Trigger(ctx, "manual kill")
	ec.Trigger(ctx, "manual kill")

	if got := closer.closed(); len(got) != 2 {
		t.Errorf("close calls = %v, want both positions exactly once", got)
	}
	if led.Count() != 0 {
		t.Errorf("open positions = %d, want 0", led.Count())
	}
	if halted, reason := rm.Halted(); !halted || reason != "manual kill" {
		t.Errorf("halted = %v %q, want true with the trigger reason", halted, reason)
	}
	if !ec.Triggered() {
		t.Error("controller must report triggered")
	}
}

func TestEmergencyRearmAllowsNewTrigger(t *testing.T) {
	m, led, closer, rm := newTestMonitor(t, map[string]float64{"BTCUSDT": 100})
	ctx := context.Background()

	ec := &EmergencyController{Risk: rm, Monitor: m}
	ec.Trigger(ctx, "first")
	ec.Rearm()
	rm.Resume()

	if _, err := led.Open(ctx, "BTCUSDT", common.SideBuy, 1, 100, 95, 0, 0, 0); err != nil {
		t.Fatalf("open: %v", err)
	}
	ec.Trigger(ctx, "second")

	if got := closer.closed(); len(got) != 1 {
		t.Errorf("close calls = %v, want one after rearm", got)
	}
}

func TestEmergencyKillSwitchFile(t *testing.T) {
	m, led, closer, rm := newTestMonitor(t, map[string]float64{"BTCUSDT": 100})
	ctx := context.Background()

	if _, err := led.Open(ctx, "BTCUSDT", common.SideBuy, 1, 100, 95, 0, 0, 0); err != nil {
		t.Fatalf("open: %v", err)
	}

	path := filepath.Join(t.TempDir(), "KILL_SWITCH")
	ec := &EmergencyController{Risk: rm, Monitor: m, KillSwitchFile: path}

	ec.check(ctx)
	if ec.Triggered() {
		t.Fatal("must not trigger without the file")
	}

	if err := os.WriteFile(path, []byte("halt"), 0o644); err != nil {
		t.Fatalf("write kill switch: %v", err)
	}
	ec.check(ctx)

	if !ec.Triggered() {
		t.Fatal("kill switch file must trigger the halt")
	}
	if len(closer.closed()) != 1 || led.Count() != 0 {
		t.Error("kill switch must flatten the book")
	}
}

func TestEmergencyDailyLossHalt(t *testing.T) {
	m, led, closer, rm := newTestMonitor(t, map[string]float64{"BTCUSDT": 100})
	ctx := context.Background()

	if _, err := led.Open(ctx, "BTCUSDT", common.SideBuy, 1, 100, 95, 0, 0, 0); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Breaches 5% of the 10000 day-start equity.
	rm.RecordTradeResult(-600)

	ec := &EmergencyController{Risk: rm, Monitor: m}
	ec.check(ctx)

	if !ec.Triggered() {
		t.Fatal("daily loss halt must trigger the flatten")
	}
	if len(closer.closed()) != 1 {
		t.Errorf("close calls = %v, want one", closer.closed())
	}
}
