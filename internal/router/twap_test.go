package router

import (
	"context"
	"math"
	"testing"

	"spot-trader/pkg/exchanges/common"
)

func TestSliceCount(t *testing.T) {
	cases := []struct {
		name          string
		notional      float64
		sliceNotional float64
		want          int
	}{
		{"exact fit", 10000, 2500, 4},
		{"rounds up", 10001, 2500, 5},
		{"floor at three", 2000, 2500, 3},
		{"cap at five", 100000, 2500, 5},
		{"zero slice notional", 10000, 0, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sliceCount(tc.notional, tc.sliceNotional); got != tc.want {
				t.Errorf("sliceCount(%v, %v) = %d, want %d", tc.notional, tc.sliceNotional, got, tc.want)
			}
		})
	}
}

func TestExecuteTWAPFillsAllSlices(t *testing.T) {
	gw := &fakeGateway{
		ticker:    common.Ticker{Bid: 149.9, Ask: 150.1},
		book:      deepBook(150),
		submitRes: common.OrderResult{Status: common.StatusFilled},
	}
	r := New(gw, nil, nil, testConfig())

	// 100 * 150 = 15000 notional: above the TWAP cutoff, capped at 5 slices.
	report, err := r.Execute(context.Background(), NewIntent("SOLUSDT", common.SideBuy, 100, 150, 145, 0, 0))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.Style != StyleTWAP {
		t.Errorf("style = %s, want twap", report.Style)
	}
	if report.Slices != 5 {
		t.Errorf("slices = %d, want 5", report.Slices)
	}
	if len(gw.submitted) != 5 {
		t.Errorf("orders submitted = %d, want 5", len(gw.submitted))
	}
	if math.Abs(report.FilledQty-100) > 1e-9 {
		t.Errorf("filled = %v, want 100", report.FilledQty)
	}
	if math.Abs(report.AvgPrice-150) > 1e-9 {
		t.Errorf("vwap = %v, want 150", report.AvgPrice)
	}
	if report.AbortReason != "" {
		t.Errorf("abort reason = %q, want none", report.AbortReason)
	}
}

func TestExecuteTWAPAbortsOnSpreadKeepsFills(t *testing.T) {
	tight := common.Ticker{Bid: 149.9, Ask: 150.1}
	wide := common.Ticker{Bid: 148, Ask: 152}
	gw := &fakeGateway{
		ticker:    tight,
		book:      deepBook(150),
		submitRes: common.OrderResult{Status: common.StatusFilled},
		tickers:   []common.Ticker{tight, tight, wide},
	}
	r := New(gw, nil, nil, testConfig())

	report, err := r.Execute(context.Background(), NewIntent("SOLUSDT", common.SideBuy, 100, 150, 145, 0, 0))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.AbortReason != "spread widened" {
		t.Errorf("abort reason = %q, want %q", report.AbortReason, "spread widened")
	}
	if report.Slices != 2 {
		t.Errorf("slices = %d, want 2", report.Slices)
	}
	if math.Abs(report.FilledQty-40) > 1e-9 {
		t.Errorf("filled = %v, want 40", report.FilledQty)
	}
	// VWAP over the two filled slices, both at mid 150.
	if math.Abs(report.AvgPrice-150) > 1e-9 {
		t.Errorf("vwap = %v, want 150", report.AvgPrice)
	}
	if report.Complete() {
		t.Error("aborted TWAP must not report complete")
	}
}

func TestExecuteTWAPAbortsOnDrift(t *testing.T) {
	start := common.Ticker{Bid: 149.9, Ask: 150.1}
	drifted := common.Ticker{Bid: 152.9, Ask: 153.1} // mid 153, 2% off 150
	gw := &fakeGateway{
		ticker:    start,
		book:      deepBook(150),
		submitRes: common.OrderResult{Status: common.StatusFilled},
		tickers:   []common.Ticker{start, drifted},
	}
	r := New(gw, nil, nil, testConfig())

	report, err := r.Execute(context.Background(), NewIntent("SOLUSDT", common.SideBuy, 100, 150, 145, 0, 0))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if report.AbortReason != "price drifted" {
		t.Errorf("abort reason = %q, want %q", report.AbortReason, "price drifted")
	}
	if report.Slices != 1 {
		t.Errorf("slices = %d, want 1", report.Slices)
	}
}
