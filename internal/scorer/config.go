package scorer

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds scorer weights and thresholds, loaded from YAML.
type Config struct {
	// Factor weights. Their sum defines the maximum raw score, which
	// is normalized to the 0-10 scale.
	Weights struct {
		ValueArea     float64 `yaml:"value_area"`
		BookImbalance float64 `yaml:"book_imbalance"`
		Momentum      float64 `yaml:"momentum"`
		VolumeSurge   float64 `yaml:"volume_surge"`
	} `yaml:"weights"`

	// MinScore gates signal emission on the 0-10 scale.
	MinScore float64 `yaml:"min_score"`
	// Directional thresholds on the normalized [-1, 1] composite.
	BuyThreshold  float64 `yaml:"buy_threshold"`
	SellThreshold float64 `yaml:"sell_threshold"`

	// Factor parameters.
	ValueAreaPct    float64 `yaml:"value_area_pct"`    // volume share inside the value area
	ValueAreaBins   int     `yaml:"value_area_bins"`   // price histogram bins
	DepthLevels     int     `yaml:"depth_levels"`      // order book levels per side
	MomentumFullPct float64 `yaml:"momentum_full_pct"` // price change that saturates momentum
	VolumeWindow    int     `yaml:"volume_window"`     // trades in the volume baseline
	VolumeSurgeMult float64 `yaml:"volume_surge_mult"` // surge multiple for full score

	// Risk levels attached to emitted signals.
	StopPct      float64 `yaml:"stop_pct"`       // stop distance from entry
	TargetRRatio float64 `yaml:"target_r_ratio"` // target as a multiple of stop distance
}

// DefaultConfig mirrors the shipped configs/scorer.yaml.
func DefaultConfig() Config {
	var c Config
	c.Weights.ValueArea = 3
	c.Weights.BookImbalance = 3
	c.Weights.Momentum = 2
	c.Weights.VolumeSurge = 2
	c.MinScore = 7.0
	c.BuyThreshold = 0.35
	c.SellThreshold = 0.35
	c.ValueAreaPct = 0.70
	c.ValueAreaBins = 24
	c.DepthLevels = 10
	c.MomentumFullPct = 0.005
	c.VolumeWindow = 200
	c.VolumeSurgeMult = 2.0
	c.StopPct = 0.01
	c.TargetRRatio = 2.0
	return c
}

// WeightSum returns the maximum raw composite magnitude.
func (c Config) WeightSum() float64 {
	return c.Weights.ValueArea + c.Weights.BookImbalance + c.Weights.Momentum + c.Weights.VolumeSurge
}

// LoadConfig reads scorer settings from a YAML file, filling gaps with
// defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read scorer config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse scorer config: %w", err)
	}
	if cfg.WeightSum() <= 0 {
		return cfg, fmt.Errorf("scorer config: weights must sum to a positive value")
	}
	return cfg, nil
}
