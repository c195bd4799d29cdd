package indicators

import (
	"math"

	"candleBacktest/internal/domain"
)

// RSIConfig holds the thresholds that turn an RSI value into a signal.
type RSIConfig struct {
	Overbought float64
	Oversold   float64
}

// DefaultRSIConfig returns the 70/30 thresholds.
func DefaultRSIConfig() RSIConfig {
	return RSIConfig{Overbought: 70, Oversold: 30}
}

// RSI averages every close-to-close gain and every loss over the whole prefix.
// Unchanged closes count as zero losses. No Wilder smoothing is applied.
func RSI(candles []domain.Candle) (float64, error) {
	if len(candles) < 2 {
		return 0, insufficient("RSI", len(candles), 2)
	}

	var gainSum, lossSum float64
	var gains, losses int
	for i := 1; i < len(candles); i++ {
		diff := candles[i].Close - candles[i-1].Close
		if diff > 0 {
			gainSum += diff
			gains++
		} else {
			lossSum += math.Abs(diff)
			losses++
		}
	}
	return rsiFromAverages(mean(gainSum, gains), mean(lossSum, losses)), nil
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50 // Flat series
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// RSISignal maps an RSI value onto buy/sell/hold using strict thresholds.
func RSISignal(rsi float64, cfg RSIConfig) domain.Signal {
	switch {
	case rsi > cfg.Overbought:
		return domain.SignalSell
	case rsi < cfg.Oversold:
		return domain.SignalBuy
	default:
		return domain.SignalHold
	}
}
