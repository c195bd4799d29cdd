package ports

import (
	"context"

	"candleBacktest/internal/domain"
)

// CandleCache stores previously fetched candle series, keyed by the exact request.
type CandleCache interface {
	// SaveRange stores candles as the series for [start, end], replacing any earlier copy.
	SaveRange(ctx context.Context, symbol, interval string, startMillis, endMillis int64, candles []domain.Candle) error
	// HasRange reports whether a series was saved for exactly this range.
	HasRange(ctx context.Context, symbol, interval string, startMillis, endMillis int64) (bool, error)
	// FindRange returns the saved series in its original order, placeholders included.
	// It fails with ErrNotFound when nothing was saved for the range.
	FindRange(ctx context.Context, symbol, interval string, startMillis, endMillis int64) ([]domain.Candle, error)
}
