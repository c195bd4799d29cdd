package indicators

import (
	"fmt"

	"candleBacktest/internal/domain"
)

// KeltnerConfig holds the Keltner Channel parameters.
type KeltnerConfig struct {
	ATRMultiplierMin    float64
	ATRMultiplierMax    float64
	ATRLength           int
	MovingAverageLength int
	MovingAverageType   MovingAverageType
}

// DefaultKeltnerConfig returns the parameters the backtester ships with.
func DefaultKeltnerConfig() KeltnerConfig {
	return KeltnerConfig{
		ATRMultiplierMin:    1.5,
		ATRMultiplierMax:    3.5,
		ATRLength:           88,
		MovingAverageLength: 34,
		MovingAverageType:   ExponentialMovingAverage,
	}
}

// Validate checks that both window lengths are usable.
func (c KeltnerConfig) Validate() error {
	if err := checkLength("Keltner ATR", c.ATRLength); err != nil {
		return err
	}
	return checkLength("Keltner moving average", c.MovingAverageLength)
}

// RequiredDataPoints is the shortest prefix Keltner accepts.
func (c KeltnerConfig) RequiredDataPoints() int {
	return max(c.ATRLength, c.MovingAverageLength)
}

// KeltnerResult is the channel computed for one prefix.
type KeltnerResult struct {
	Mid       float64
	TopMin    float64
	TopMax    float64
	BottomMin float64
	BottomMax float64
}

func newKeltnerResult(mid, atr float64, cfg KeltnerConfig) KeltnerResult {
	return KeltnerResult{
		Mid:       mid,
		TopMin:    mid + atr*cfg.ATRMultiplierMin,
		TopMax:    mid + atr*cfg.ATRMultiplierMax,
		BottomMin: mid - atr*cfg.ATRMultiplierMin,
		BottomMax: mid - atr*cfg.ATRMultiplierMax,
	}
}

// Keltner computes the channel over the whole candle prefix.
func Keltner(candles []domain.Candle, cfg KeltnerConfig) (KeltnerResult, error) {
	if err := cfg.Validate(); err != nil {
		return KeltnerResult{}, err
	}
	if need := cfg.RequiredDataPoints(); len(candles) < need {
		return KeltnerResult{}, insufficient("Keltner Channel", len(candles), need)
	}

	atr, err := ATR(candles, cfg.ATRLength)
	if err != nil {
		return KeltnerResult{}, fmt.Errorf("keltner atr: %w", err)
	}
	mid, err := MovingAverage(cfg.MovingAverageType, Closes(candles), cfg.MovingAverageLength)
	if err != nil {
		return KeltnerResult{}, fmt.Errorf("keltner mid: %w", err)
	}
	return newKeltnerResult(mid, atr, cfg), nil
}
