package domain

import (
	"math"
	"time"
)

// Candle represents a single OHLCV bar. Times are epoch milliseconds.
type Candle struct {
	OpenTime  int64   // Start of the interval (ms)
	CloseTime int64   // End of the interval (ms)
	Open      float64 // Opening price
	High      float64 // Highest price
	Low       float64 // Lowest price
	Close     float64 // Closing price
	Volume    float64 // Trading volume
}

// Placeholder returns the zero-filled candle that stands in for a malformed record.
func Placeholder() Candle {
	return Candle{}
}

// IsPlaceholder reports whether the candle is a zero-filled stand-in for a malformed record.
func (c Candle) IsPlaceholder() bool {
	return c == Candle{}
}

// Tradable reports whether the candle can drive indicators and trades:
// a positive close and finite high, low and close.
func (c Candle) Tradable() bool {
	return !c.IsPlaceholder() && c.Close > 0 && finite(c.Close) && finite(c.High) && finite(c.Low)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// OpenAt returns the open time as a UTC time.Time.
func (c Candle) OpenAt() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// CloseAt returns the close time as a UTC time.Time.
func (c Candle) CloseAt() time.Time {
	return time.UnixMilli(c.CloseTime).UTC()
}
