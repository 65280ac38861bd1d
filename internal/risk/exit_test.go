package risk

import (
	"testing"
	"time"

	"spot-trader/pkg/exchanges/common"
)

func TestEvaluateExit(t *testing.T) {
	opened := time.Now().Add(-time.Hour)
	long := PositionView{
		Side:        common.SideBuy,
		EntryPrice:  100,
		StopPrice:   95,
		TargetPrice: 110,
		OpenedAt:    opened,
	}

	tests := []struct {
		name       string
		pos        PositionView
		price      float64
		maxAge     time.Duration
		wantClose  bool
		wantReason string
	}{
		{"long stop hit", long, 94.5, 0, true, ExitStopLoss},
		{"long stop exact", long, 95, 0, true, ExitStopLoss},
		{"long target hit", long, 110.5, 0, true, ExitTarget},
		{"long holds", long, 102, 0, false, ""},
		{"max age", long, 102, 30 * time.Minute, true, ExitMaxAge},
		{
			name: "short stop hit",
			pos: PositionView{
				Side: common.SideSell, EntryPrice: 100, StopPrice: 105, OpenedAt: opened,
			},
			price: 106, wantClose: true, wantReason: ExitStopLoss,
		},
		{
			name: "short target hit",
			pos: PositionView{
				Side: common.SideSell, EntryPrice: 100, StopPrice: 105, TargetPrice: 90, OpenedAt: opened,
			},
			price: 89, wantClose: true, wantReason: ExitTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := EvaluateExit(tt.pos, tt.price, tt.maxAge, time.Now())
			if dec.Close != tt.wantClose {
				t.Errorf("close = %v, want %v", dec.Close, tt.wantClose)
			}
			if dec.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", dec.Reason, tt.wantReason)
			}
		})
	}
}

func TestEvaluateExitTrailingAdvances(t *testing.T) {
	pos := PositionView{
		Side:        common.SideBuy,
		EntryPrice:  100,
		StopPrice:   95,
		TrailingPct: 0.02,
		HighWater:   100,
		OpenedAt:    time.Now(),
	}

	// New high: stop should trail to 108*0.98.
	dec := EvaluateExit(pos, 108, 0, time.Now())
	if dec.Close {
		t.Fatal("should not close on a new high")
	}
	if dec.NewStop == 0 || dec.HighWater != 108 {
		t.Fatalf("expected trailing advance, got %+v", dec)
	}
	want := 108 * 0.98
	if diff := dec.NewStop - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("new stop = %v, want %v", dec.NewStop, want)
	}

	// Price below the high-water mark: nothing moves.
	pos.HighWater = 108
	pos.StopPrice = dec.NewStop
	dec = EvaluateExit(pos, 106, 0, time.Now())
	if dec.Close || dec.NewStop != 0 || dec.HighWater != 0 {
		t.Errorf("expected no-op below high water, got %+v", dec)
	}
}

func TestLossFraction(t *testing.T) {
	pos := PositionView{Side: common.SideBuy, EntryPrice: 100}

	if got := LossFraction(pos, 10, 90); got != 0.10 {
		t.Errorf("loss fraction = %v, want 0.10", got)
	}
	if got := LossFraction(pos, 10, 105); got != 0 {
		t.Errorf("loss fraction in profit = %v, want 0", got)
	}
}
