package indicators

import "fmt"

// SMA returns the mean of the last length values.
// It fails with ports.ErrInsufficientData rather than averaging a shorter tail.
func SMA(values []float64, length int) (float64, error) {
	if err := checkLength("SMA", length); err != nil {
		return 0, err
	}
	if len(values) < length {
		return 0, insufficient(fmt.Sprintf("SMA(%d)", length), len(values), length)
	}

	total := 0.0
	for _, v := range values[len(values)-length:] {
		total += v
	}
	return total / float64(length), nil
}

// EMA folds the whole input with alpha = 2/(length+1), seeded by the first value.
// length only sets the smoothing factor; it does not bound the data consumed.
func EMA(values []float64, length int) (float64, error) {
	if err := checkLength("EMA", length); err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, insufficient(fmt.Sprintf("EMA(%d)", length), 0, 1)
	}

	alpha := emaAlpha(length)
	ema := values[0]
	for _, v := range values[1:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema, nil
}

func emaAlpha(length int) float64 {
	return 2.0 / float64(length+1)
}

// MovingAverage dispatches on typ. Anything other than EMA is treated as SMA.
func MovingAverage(typ MovingAverageType, values []float64, length int) (float64, error) {
	if typ == ExponentialMovingAverage {
		return EMA(values, length)
	}
	return SMA(values, length)
}
