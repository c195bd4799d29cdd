package indicators

import (
	"math/rand"
	"time"

	"candleBacktest/internal/domain"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

func ohlc(i int, open, high, low, cls float64) domain.Candle {
	openTime := baseTime + int64(i)*time.Hour.Milliseconds()
	return domain.Candle{
		OpenTime:  openTime,
		CloseTime: openTime + time.Hour.Milliseconds() - 1,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    1,
	}
}

func fromCloses(closes ...float64) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		out[i] = ohlc(i, c, c, c, c)
	}
	return out
}

// randomWalk returns a reproducible series with non-trivial ranges.
func randomWalk(n int, seed int64) []domain.Candle {
	r := rand.New(rand.NewSource(seed))
	out := make([]domain.Candle, n)
	price := 100.0
	for i := range out {
		open := price
		price += r.NormFloat64() * 2
		if price < 1 {
			price = 1
		}
		high := max(open, price) + r.Float64()*1.5
		low := min(open, price) - r.Float64()*1.5
		out[i] = ohlc(i, open, high, low, price)
	}
	return out
}
