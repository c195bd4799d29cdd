package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"candleBacktest/config"
	"candleBacktest/internal/adapters/binanceclient"
	"candleBacktest/internal/adapters/logger"
	"candleBacktest/internal/adapters/rediscache"
	"candleBacktest/internal/adapters/sqlite"
	"candleBacktest/internal/marketdata"
	"candleBacktest/internal/ports"
)

// NewLogger builds the logger selected by LOG_FORMAT. The returned func flushes it.
func NewLogger(cfg *config.Config) (ports.Logger, func(), error) {
	if cfg.LogFormat == "json" {
		zl, err := logger.NewZapLogger(cfg.LogLevel)
		if err != nil {
			return nil, nil, fmt.Errorf("build zap logger: %w", err)
		}
		return zl, func() { _ = zl.Sync() }, nil
	}
	return logger.NewStdLogger(cfg.LogLevel), func() {}, nil
}

// NewCandleSource builds the source chain for cfg: a CSV file when
// CANDLE_CSV_PATH is set, otherwise Binance behind the configured cache.
// Binance is pinged first; without a cache an unreachable exchange is an error.
// The returned func releases whatever the chain opened.
func NewCandleSource(ctx context.Context, cfg *config.Config, log ports.Logger, recorder ports.Recorder) (ports.CandleSource, func() error, error) {
	noop := func() error { return nil }

	if cfg.CandleCSVPath != "" {
		src, err := marketdata.NewCSVSource(cfg.CandleCSVPath, log, recorder)
		if err != nil {
			return nil, nil, err
		}
		log.Info(ctx, "Reading candles from CSV", map[string]interface{}{"path": cfg.CandleCSVPath})
		return src, noop, nil
	}

	client, err := binanceclient.New(binanceclient.Config{
		APIKey:         cfg.APIKey,
		SecretKey:      cfg.SecretKey,
		BaseURL:        cfg.BaseURL,
		RequestTimeout: cfg.RequestTimeout,
		MaxRetries:     cfg.MaxFetchRetries,
		Logger:         log,
		Recorder:       recorder,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialize Binance client: %w", err)
	}

	cache, closeCache, err := newCandleCache(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx); err != nil {
		if cache == nil {
			_ = closeCache()
			return nil, nil, fmt.Errorf("reach Binance at %s: %w", cfg.BaseURL, err)
		}
		log.Warn(ctx, "Binance unreachable, only cached ranges can be served", map[string]interface{}{
			"baseURL": cfg.BaseURL,
			"error":   err.Error(),
		})
	}
	if cache == nil {
		return client, noop, nil
	}

	src, err := marketdata.NewCachingSource(client, cache, log, recorder)
	if err != nil {
		_ = closeCache()
		return nil, nil, err
	}
	return src, closeCache, nil
}

// newCandleCache returns a nil cache for CANDLE_CACHE=none. An unreachable
// Redis is logged and treated the same way.
func newCandleCache(ctx context.Context, cfg *config.Config, log ports.Logger) (ports.CandleCache, func() error, error) {
	switch cfg.CacheBackend {
	case config.CacheSQLite:
		repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.CandleCachePath, Logger: log})
		if err != nil {
			return nil, nil, fmt.Errorf("initialize candle cache: %w", err)
		}
		return repo, repo.Close, nil

	case config.CacheRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn(ctx, "Redis unavailable, running without candle cache", map[string]interface{}{
				"addr":  cfg.RedisAddr,
				"error": err.Error(),
			})
			_ = rdb.Close()
			return nil, func() error { return nil }, nil
		}
		cache, err := rediscache.New(rdb, cfg.RedisTTL, "", log)
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return cache, rdb.Close, nil

	default:
		return nil, func() error { return nil }, nil
	}
}
