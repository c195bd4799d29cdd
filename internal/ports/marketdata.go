package ports

import (
	"context"

	"candleBacktest/internal/domain"
)

// CandleSource supplies historical candles for a symbol and interval.
// Implementations own pagination, retries and timeouts; they must return a single
// merged series ordered by open time with no duplicates. The result may be empty.
type CandleSource interface {
	FetchSeries(ctx context.Context, symbol, interval string, startMillis, endMillis int64) ([]domain.Candle, error)
}
