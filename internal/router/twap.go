package router

import (
	"context"
	"log"
	"math"
	"time"
)

const (
	twapMinSlices = 3
	twapMaxSlices = 5
)

// sliceCount derives the number of TWAP slices from notional, bounded
// to [3, 5].
func sliceCount(notional, sliceNotional float64) int {
	if sliceNotional <= 0 {
		return twapMinSlices
	}
	n := int(math.Ceil(notional / sliceNotional))
	if n < twapMinSlices {
		n = twapMinSlices
	}
	if n > twapMaxSlices {
		n = twapMaxSlices
	}
	return n
}

// executeTWAP splits the intent into equal market slices spaced by the
// slice interval. Before each slice it re-checks the spread and the
// drift from the starting price; a failed check aborts the remaining
// slices but keeps what already filled.
func (r *Router) executeTWAP(ctx context.Context, intent Intent) (report Report, _ error) {
	slices := sliceCount(intent.Notional(), r.cfg.TWAPSliceNotional)
	sliceQty := intent.Qty / float64(slices)

	report = Report{RequestedQty: intent.Qty}
	var filledNotional float64
	defer func() {
		if report.FilledQty > 0 {
			report.AvgPrice = filledNotional / report.FilledQty
		}
	}()

	for i := 0; i < slices; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				report.AbortReason = "context cancelled"
				return report, nil
			case <-time.After(r.cfg.TWAPSliceInterval):
			}
		}

		ticker, err := r.gw.GetTicker(ctx, intent.Symbol)
		if err != nil {
			report.AbortReason = "ticker unavailable"
			log.Printf("router: twap %s aborted at slice %d/%d: %v", intent.Symbol, i+1, slices, err)
			return report, nil
		}
		if spread := ticker.SpreadPct(); spread > r.cfg.MaxSpreadPct {
			report.AbortReason = "spread widened"
			log.Printf("router: twap %s aborted at slice %d/%d: spread %.4f%%", intent.Symbol, i+1, slices, spread*100)
			return report, nil
		}
		if dev := math.Abs(ticker.Mid()-intent.Entry) / intent.Entry; dev > r.cfg.MaxDeviationPct {
			report.AbortReason = "price drifted"
			log.Printf("router: twap %s aborted at slice %d/%d: deviation %.4f%%", intent.Symbol, i+1, slices, dev*100)
			return report, nil
		}

		sliceReport, err := r.executeMarket(ctx, intent, sliceQty)
		if err != nil {
			report.AbortReason = "slice failed"
			log.Printf("router: twap %s slice %d/%d failed: %v", intent.Symbol, i+1, slices, err)
			return report, nil
		}

		report.FilledQty += sliceReport.FilledQty
		filledNotional += sliceReport.FilledQty * sliceReport.AvgPrice
		report.Slices++
	}

	if report.FilledQty > 0 {
		report.AvgPrice = filledNotional / report.FilledQty
	}
	log.Printf("router: twap %s done, %d slice(s), qty=%v vwap=%.4f",
		intent.Symbol, report.Slices, report.FilledQty, report.AvgPrice)
	return report, nil
}
