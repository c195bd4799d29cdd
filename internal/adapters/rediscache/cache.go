// Package rediscache keeps fetched candle series in Redis with a TTL.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"candleBacktest/internal/domain"
	"candleBacktest/internal/ports"
)

// Cache implements ports.CandleCache on a Redis client.
type Cache struct {
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
	logger    ports.Logger
}

// New wraps rdb. ttl <= 0 falls back to 24h; an empty namespace means "candles".
func New(rdb *redis.Client, ttl time.Duration, namespace string, logger ports.Logger) (*Cache, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client is required for candle cache")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for candle cache")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if namespace == "" {
		namespace = "candles"
	}
	return &Cache{rdb: rdb, ttl: ttl, namespace: namespace, logger: logger}, nil
}

// SaveRange stores the series as one JSON value.
func (c *Cache) SaveRange(ctx context.Context, symbol, interval string, startMillis, endMillis int64, candles []domain.Candle) error {
	if candles == nil {
		candles = []domain.Candle{}
	}
	b, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("encode candles for %s %s: %w", symbol, interval, err)
	}
	key := c.cacheKey(symbol, interval, startMillis, endMillis)
	if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w: %w", key, ports.ErrQueryFailed, err)
	}
	c.logger.Debug(ctx, "Candle range cached", map[string]interface{}{"key": key, "candles": len(candles)})
	return nil
}

// HasRange reports whether the key for the range exists.
func (c *Cache) HasRange(ctx context.Context, symbol, interval string, startMillis, endMillis int64) (bool, error) {
	key := c.cacheKey(symbol, interval, startMillis, endMillis)
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w: %w", key, ports.ErrQueryFailed, err)
	}
	return n > 0, nil
}

// FindRange decodes the stored series. A corrupt value is deleted and reported as missing.
func (c *Cache) FindRange(ctx context.Context, symbol, interval string, startMillis, endMillis int64) ([]domain.Candle, error) {
	key := c.cacheKey(symbol, interval, startMillis, endMillis)
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("no cached range %s: %w", key, ports.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w: %w", key, ports.ErrQueryFailed, err)
	}

	var out []domain.Candle
	if err := json.Unmarshal(b, &out); err != nil {
		c.logger.Warn(ctx, "Dropping corrupt cached range", map[string]interface{}{"key": key, "error": err.Error()})
		_ = c.rdb.Del(ctx, key).Err()
		return nil, fmt.Errorf("cached range %s unreadable: %w", key, ports.ErrNotFound)
	}
	return out, nil
}

func (c *Cache) cacheKey(symbol, interval string, startMillis, endMillis int64) string {
	return fmt.Sprintf("%s:%s:%s:%d:%d",
		c.namespace,
		safe(symbol),
		safe(interval),
		startMillis,
		endMillis,
	)
}

func safe(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ":", "_")
}
