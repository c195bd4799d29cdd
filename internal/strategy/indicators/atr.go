package indicators

import (
	"fmt"
	"iter"
	"math"
	"slices"

	"candleBacktest/internal/domain"
)

// TrueRanges yields one true range per candle.
// The first candle has no previous close, so its true range is high - low.
func TrueRanges(candles []domain.Candle) iter.Seq[float64] {
	return func(yield func(float64) bool) {
		for i, c := range candles {
			var tr float64
			if i == 0 {
				tr = c.High - c.Low
			} else {
				tr = trueRange(c, candles[i-1].Close)
			}
			if !yield(tr) {
				return
			}
		}
	}
}

func trueRange(c domain.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}

// ATR is the simple average of the last length true ranges.
func ATR(candles []domain.Candle, length int) (float64, error) {
	if err := checkLength("ATR", length); err != nil {
		return 0, err
	}
	if len(candles) < length {
		return 0, insufficient(fmt.Sprintf("ATR(%d)", length), len(candles), length)
	}
	return SMA(slices.Collect(TrueRanges(candles)), length)
}
