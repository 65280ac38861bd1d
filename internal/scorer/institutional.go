package scorer

import (
	"time"

	"spot-trader/pkg/exchanges/common"
)

// Institutional scores entries by combining a volume-profile value
// area, order book imbalance, short-term momentum and volume surge
// into one weighted composite.
type Institutional struct {
	cfg Config
}

func NewInstitutional(cfg Config) *Institutional {
	return &Institutional{cfg: cfg}
}

func (s *Institutional) Name() string { return "institutional" }

// Score computes the weighted composite on [-1, 1], maps its magnitude
// to 0-10, and emits a signal when both the directional threshold and
// the minimum score are met.
func (s *Institutional) Score(view MarketView) (*Signal, error) {
	if view.Stale {
		return nil, nil
	}
	price := view.Ticker.Mid()
	if price <= 0 {
		return nil, nil
	}

	factors := map[string]float64{
		"value_area":     s.valueAreaFactor(view, price),
		"book_imbalance": s.imbalanceFactor(view),
		"momentum":       s.momentumFactor(view),
		"volume_surge":   s.volumeSurgeFactor(view),
	}

	composite := (s.cfg.Weights.ValueArea*factors["value_area"] +
		s.cfg.Weights.BookImbalance*factors["book_imbalance"] +
		s.cfg.Weights.Momentum*factors["momentum"] +
		s.cfg.Weights.VolumeSurge*factors["volume_surge"]) / s.cfg.WeightSum()

	var side common.Side
	switch {
	case composite >= s.cfg.BuyThreshold:
		side = common.SideBuy
	case composite <= -s.cfg.SellThreshold:
		side = common.SideSell
	default:
		return nil, nil
	}

	score := abs(composite) * 10
	if score > 10 {
		score = 10
	}
	if score < s.cfg.MinScore {
		return nil, nil
	}

	stopDist := price * s.cfg.StopPct
	var stop, target float64
	if side == common.SideBuy {
		stop = price - stopDist
		target = price + stopDist*s.cfg.TargetRRatio
	} else {
		stop = price + stopDist
		target = price - stopDist*s.cfg.TargetRRatio
	}

	return &Signal{
		Symbol:  view.Symbol,
		Side:    side,
		Score:   score,
		Entry:   price,
		Stop:    stop,
		Target:  target,
		Factors: factors,
		Time:    time.Now(),
	}, nil
}

// valueAreaFactor favors buying below the value area and selling above
// it, fading linearly across the band.
func (s *Institutional) valueAreaFactor(view MarketView, price float64) float64 {
	va, ok := computeValueArea(view.Trades, s.cfg.ValueAreaBins, s.cfg.ValueAreaPct)
	if !ok {
		return 0
	}
	switch {
	case price <= va.Low:
		return 1
	case price >= va.High:
		return -1
	default:
		// Linear from +1 at VAL to -1 at VAH.
		span := va.High - va.Low
		return 1 - 2*(price-va.Low)/span
	}
}

func (s *Institutional) imbalanceFactor(view MarketView) float64 {
	bid := view.Book.DepthNotional(common.SideSell, s.cfg.DepthLevels) // bids
	ask := view.Book.DepthNotional(common.SideBuy, s.cfg.DepthLevels)  // asks
	if bid+ask <= 0 {
		return 0
	}
	return (bid - ask) / (bid + ask)
}

func (s *Institutional) momentumFactor(view MarketView) float64 {
	n := len(view.Trades)
	if n < 2 {
		return 0
	}
	first := view.Trades[0].Price
	last := view.Trades[n-1].Price
	if first <= 0 {
		return 0
	}
	return clamp((last-first)/first/s.cfg.MomentumFullPct, -1, 1)
}

// volumeSurgeFactor measures recent volume against the window average;
// the sign follows momentum, since surge alone has no direction.
func (s *Institutional) volumeSurgeFactor(view MarketView) float64 {
	n := len(view.Trades)
	if n < s.cfg.VolumeWindow/2 || n < 4 {
		return 0
	}
	recent := n / 4
	var recentVol, totalVol float64
	for i, t := range view.Trades {
		totalVol += t.Qty
		if i >= n-recent {
			recentVol += t.Qty
		}
	}
	avgPerTrade := totalVol / float64(n)
	if avgPerTrade <= 0 {
		return 0
	}
	surge := (recentVol / float64(recent)) / avgPerTrade
	magnitude := clamp((surge-1)/(s.cfg.VolumeSurgeMult-1), 0, 1)

	if s.momentumFactor(view) < 0 {
		return -magnitude
	}
	return magnitude
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
