package risk

import "spot-trader/pkg/exchanges/common"

// riskDistance returns the per-unit loss if the stop is hit. The stop
// must sit on the losing side of the entry for the given direction.
func riskDistance(side common.Side, entry, stop float64) (float64, error) {
	if entry <= 0 || stop <= 0 {
		return 0, ErrInvalidRiskDistance
	}
	var dist float64
	if side == common.SideBuy {
		dist = entry - stop
	} else {
		dist = stop - entry
	}
	if dist <= 0 {
		return 0, ErrInvalidRiskDistance
	}
	return dist, nil
}

// SizeByRisk computes quantity so that a stop-out loses at most
// balance*riskPerTrade.
func SizeByRisk(side common.Side, entry, stop, balance, riskPerTrade float64) (float64, error) {
	dist, err := riskDistance(side, entry, stop)
	if err != nil {
		return 0, err
	}
	riskBudget := balance * riskPerTrade
	if riskBudget <= 0 {
		return 0, ErrInvalidRiskDistance
	}
	return riskBudget / dist, nil
}
