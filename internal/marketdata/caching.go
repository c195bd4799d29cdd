// Package marketdata provides ports.CandleSource implementations that sit in
// front of, or replace, the exchange adapter.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"candleBacktest/internal/domain"
	"candleBacktest/internal/ports"
)

// CachingSource decorates a CandleSource with a CandleCache.
// A range already in the cache is served without calling the inner source.
type CachingSource struct {
	inner    ports.CandleSource
	cache    ports.CandleCache
	logger   ports.Logger
	recorder ports.Recorder
	now      func() time.Time
}

// NewCachingSource wraps inner. A nil recorder discards events.
func NewCachingSource(inner ports.CandleSource, cache ports.CandleCache, logger ports.Logger, recorder ports.Recorder) (*CachingSource, error) {
	if inner == nil || cache == nil {
		return nil, fmt.Errorf("caching source needs an inner source and a cache")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for caching source")
	}
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	return &CachingSource{inner: inner, cache: cache, logger: logger, recorder: recorder, now: time.Now}, nil
}

// FetchSeries returns the cached series when present, otherwise fetches and
// stores it. Empty or still-open ranges are returned but not stored.
// Cache failures are logged and never fail the fetch.
func (s *CachingSource) FetchSeries(ctx context.Context, symbol, interval string, startMillis, endMillis int64) ([]domain.Candle, error) {
	fields := map[string]interface{}{"symbol": symbol, "interval": interval, "start": startMillis, "end": endMillis}

	began := time.Now()
	hit, err := s.cache.HasRange(ctx, symbol, interval, startMillis, endMillis)
	if err != nil {
		s.logger.Warn(ctx, "Candle cache lookup failed", mergeFields(fields, "error", err.Error()))
	}
	if hit {
		candles, err := s.cache.FindRange(ctx, symbol, interval, startMillis, endMillis)
		if err == nil {
			s.logger.Info(ctx, "Serving candles from cache", mergeFields(fields, "candles", len(candles)))
			s.recorder.FetchCompleted("cache", len(candles), time.Since(began), nil)
			return candles, nil
		}
		s.logger.Warn(ctx, "Candle cache read failed, refetching", mergeFields(fields, "error", err.Error()))
	}

	candles, err := s.inner.FetchSeries(ctx, symbol, interval, startMillis, endMillis)
	if err != nil {
		return nil, err
	}
	if !s.complete(candles, endMillis) {
		s.logger.Debug(ctx, "Range incomplete, not caching", mergeFields(fields, "candles", len(candles)))
		return candles, nil
	}
	if err := s.cache.SaveRange(ctx, symbol, interval, startMillis, endMillis, candles); err != nil {
		s.logger.Warn(ctx, "Failed to cache candles", mergeFields(fields, "error", err.Error()))
	}
	return candles, nil
}

// complete reports whether candles cover the whole range up to endMillis and
// the range has already closed.
func (s *CachingSource) complete(candles []domain.Candle, endMillis int64) bool {
	if endMillis > s.now().UnixMilli() {
		return false
	}
	for i := len(candles) - 1; i >= 0; i-- {
		if !candles[i].IsPlaceholder() {
			return endMillis <= candles[i].CloseTime
		}
	}
	return false
}

func mergeFields(base map[string]interface{}, key string, value interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[key] = value
	return out
}
