package indicators

import (
	"math"

	"candleBacktest/internal/domain"
)

// KeltnerTracker maintains Keltner Channel state across candles.
// After n updates Value equals Keltner over those n candles.
type KeltnerTracker struct {
	cfg       KeltnerConfig
	count     int
	prevClose float64
	ranges    *window
	closes    *window // nil when the mid line is an EMA
	ema       float64
	alpha     float64
}

// NewKeltnerTracker validates cfg and returns an empty tracker.
func NewKeltnerTracker(cfg KeltnerConfig) (*KeltnerTracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t := &KeltnerTracker{
		cfg:    cfg,
		ranges: newWindow(cfg.ATRLength),
		alpha:  emaAlpha(cfg.MovingAverageLength),
	}
	if cfg.MovingAverageType != ExponentialMovingAverage {
		t.closes = newWindow(cfg.MovingAverageLength)
	}
	return t, nil
}

// Update feeds the next candle.
func (t *KeltnerTracker) Update(c domain.Candle) {
	if t.count == 0 {
		t.ranges.push(c.High - c.Low)
		t.ema = c.Close
	} else {
		t.ranges.push(trueRange(c, t.prevClose))
		t.ema = t.alpha*c.Close + (1-t.alpha)*t.ema
	}
	if t.closes != nil {
		t.closes.push(c.Close)
	}
	t.prevClose = c.Close
	t.count++
}

// Value returns the channel for the candles seen so far.
func (t *KeltnerTracker) Value() (KeltnerResult, error) {
	if need := t.cfg.RequiredDataPoints(); t.count < need {
		return KeltnerResult{}, insufficient("Keltner Channel", t.count, need)
	}
	mid := t.ema
	if t.closes != nil {
		mid = t.closes.mean()
	}
	return newKeltnerResult(mid, t.ranges.mean(), t.cfg), nil
}

// RSITracker keeps running gain and loss sums.
type RSITracker struct {
	count     int
	prevClose float64
	gainSum   float64
	lossSum   float64
	gains     int
	losses    int
}

// NewRSITracker returns an empty tracker.
func NewRSITracker() *RSITracker {
	return &RSITracker{}
}

// Update feeds the next candle.
func (t *RSITracker) Update(c domain.Candle) {
	if t.count > 0 {
		diff := c.Close - t.prevClose
		if diff > 0 {
			t.gainSum += diff
			t.gains++
		} else {
			t.lossSum += math.Abs(diff)
			t.losses++
		}
	}
	t.prevClose = c.Close
	t.count++
}

// Value returns the RSI of the candles seen so far.
func (t *RSITracker) Value() (float64, error) {
	if t.count < 2 {
		return 0, insufficient("RSI", t.count, 2)
	}
	return rsiFromAverages(mean(t.gainSum, t.gains), mean(t.lossSum, t.losses)), nil
}

// CrossoverTracker keeps the short and long close windows.
type CrossoverTracker struct {
	short *window
	long  *window
}

// NewCrossoverTracker validates cfg and returns an empty tracker.
func NewCrossoverTracker(cfg CrossoverConfig) (*CrossoverTracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &CrossoverTracker{
		short: newWindow(cfg.ShortLength),
		long:  newWindow(cfg.LongLength),
	}, nil
}

// Update feeds the next candle.
func (t *CrossoverTracker) Update(c domain.Candle) {
	t.short.push(c.Close)
	t.long.push(c.Close)
}

// Value returns the crossover signal for the candles seen so far.
func (t *CrossoverTracker) Value() (domain.Signal, error) {
	if !t.long.full() {
		return domain.SignalHold, insufficient("moving average crossover", t.long.count, len(t.long.buf))
	}
	return compareAverages(t.short.mean(), t.long.mean()), nil
}
