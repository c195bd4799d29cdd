// Package indicators implements the technical indicators used by the backtester.
//
// Every exported function is pure: it reads the candle prefix it is given and
// nothing else. The *Tracker types compute the same values incrementally, one
// candle at a time, for the simulator's single-pass mode.
package indicators

import (
	"fmt"

	"candleBacktest/internal/domain"
	"candleBacktest/internal/ports"
)

// MovingAverageType selects how the Keltner mid line is smoothed.
type MovingAverageType string

const (
	// SimpleMovingAverage represents a simple moving average
	SimpleMovingAverage MovingAverageType = "SMA"
	// ExponentialMovingAverage represents an exponential moving average
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// Closes extracts closing prices in series order.
func Closes(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func checkLength(name string, length int) error {
	if length <= 0 {
		return fmt.Errorf("%s length %d: %w", name, length, ports.ErrInvalidLength)
	}
	return nil
}

func insufficient(name string, have, need int) error {
	return fmt.Errorf("not enough data (%d) to calculate %s, need %d: %w", have, name, need, ports.ErrInsufficientData)
}

// window keeps the last n values in a circular buffer.
// mean sums oldest to newest so it matches SMA over a slice bit for bit.
type window struct {
	buf   []float64
	idx   int
	count int
}

func newWindow(n int) *window {
	return &window{buf: make([]float64, n)}
}

func (w *window) push(v float64) {
	w.buf[w.idx] = v
	w.idx = (w.idx + 1) % len(w.buf)
	w.count++
}

func (w *window) full() bool { return w.count >= len(w.buf) }

func (w *window) mean() float64 {
	n := len(w.buf)
	total := 0.0
	for i := 0; i < n; i++ {
		total += w.buf[(w.idx+i)%n]
	}
	return total / float64(n)
}
