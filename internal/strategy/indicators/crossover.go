package indicators

import (
	"fmt"

	"candleBacktest/internal/domain"
)

// CrossoverConfig holds the short and long SMA lengths.
type CrossoverConfig struct {
	ShortLength int
	LongLength  int
}

// DefaultCrossoverConfig returns the 5/20 pair.
func DefaultCrossoverConfig() CrossoverConfig {
	return CrossoverConfig{ShortLength: 5, LongLength: 20}
}

// Validate checks that both lengths are positive and ordered.
func (c CrossoverConfig) Validate() error {
	if err := checkLength("crossover short", c.ShortLength); err != nil {
		return err
	}
	if err := checkLength("crossover long", c.LongLength); err != nil {
		return err
	}
	if c.ShortLength >= c.LongLength {
		return fmt.Errorf("crossover short length %d must be below long length %d", c.ShortLength, c.LongLength)
	}
	return nil
}

// MovingAverageCrossover compares the short and long SMAs of the closes.
func MovingAverageCrossover(candles []domain.Candle, cfg CrossoverConfig) (domain.Signal, error) {
	if err := cfg.Validate(); err != nil {
		return domain.SignalHold, err
	}
	closes := Closes(candles)
	long, err := SMA(closes, cfg.LongLength)
	if err != nil {
		return domain.SignalHold, err
	}
	short, err := SMA(closes, cfg.ShortLength)
	if err != nil {
		return domain.SignalHold, err
	}
	return compareAverages(short, long), nil
}

func compareAverages(short, long float64) domain.Signal {
	switch {
	case short > long:
		return domain.SignalBuy
	case short < long:
		return domain.SignalSell
	default:
		return domain.SignalHold
	}
}
