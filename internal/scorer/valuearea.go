package scorer

import (
	"sort"

	market "spot-trader/pkg/market/binance"
)

// ValueArea is the price band holding a target share of traded volume.
type ValueArea struct {
	Low  float64 // VAL
	High float64 // VAH
	POC  float64 // price level with the most volume
}

// computeValueArea builds a price histogram over the trade window and
// greedily collects the highest-volume bins until areaPct of total
// volume is covered.
func computeValueArea(trades []market.Trade, bins int, areaPct float64) (ValueArea, bool) {
	if len(trades) < 2 || bins < 2 {
		return ValueArea{}, false
	}

	lo, hi := trades[0].Price, trades[0].Price
	for _, t := range trades {
		if t.Price < lo {
			lo = t.Price
		}
		if t.Price > hi {
			hi = t.Price
		}
	}
	if hi <= lo {
		return ValueArea{}, false
	}

	width := (hi - lo) / float64(bins)
	vols := make([]float64, bins)
	var total float64
	for _, t := range trades {
		idx := int((t.Price - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		vols[idx] += t.Qty
		total += t.Qty
	}
	if total <= 0 {
		return ValueArea{}, false
	}

	order := make([]int, bins)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return vols[order[a]] > vols[order[b]] })

	target := total * areaPct
	var covered float64
	loIdx, hiIdx := order[0], order[0]
	for _, idx := range order {
		covered += vols[idx]
		if idx < loIdx {
			loIdx = idx
		}
		if idx > hiIdx {
			hiIdx = idx
		}
		if covered >= target {
			break
		}
	}

	return ValueArea{
		Low:  lo + float64(loIdx)*width,
		High: lo + float64(hiIdx+1)*width,
		POC:  lo + (float64(order[0])+0.5)*width,
	}, true
}
