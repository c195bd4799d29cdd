package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"candleBacktest/internal/domain"
	"candleBacktest/internal/ports"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/jpillora/backoff"
)

const (
	// Base URLs
	BaseURLUS     = "https://api.binance.us"
	BaseURLGlobal = "https://api.binance.com"

	// maxKlinesPerRequest is the largest page the spot klines endpoint returns.
	maxKlinesPerRequest = 1000
	sourceName          = "binance"
)

// Client implements ports.CandleSource against the Binance spot klines endpoint.
type Client struct {
	spotClient     *binance.Client
	logger         ports.Logger
	recorder       ports.Recorder
	requestTimeout time.Duration
	maxRetries     int
	retryMin       time.Duration
	retryMax       time.Duration
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey         string
	SecretKey      string
	BaseURL        string        // Defaults to BaseURLUS
	RequestTimeout time.Duration // Per page request (e.g., 5 * time.Second)
	MaxRetries     int           // Extra attempts for retryable failures
	RetryMin       time.Duration // First backoff delay
	RetryMax       time.Duration // Backoff cap
	Logger         ports.Logger
	Recorder       ports.Recorder
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.Recorder == nil {
		cfg.Recorder = ports.NopRecorder{}
	}
	if cfg.APIKey == "" {
		cfg.Logger.Debug(context.Background(), "No Binance API key configured; using public market data endpoints")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	client.BaseURL = BaseURLUS
	if cfg.BaseURL != "" {
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	client.HTTPClient = &http.Client{}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 5 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	retryMin := cfg.RetryMin
	if retryMin <= 0 {
		retryMin = 500 * time.Millisecond
	}
	retryMax := cfg.RetryMax
	if retryMax < retryMin {
		retryMax = 30 * time.Second
	}

	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{
		"baseURL":    client.BaseURL,
		"timeout":    requestTimeout.String(),
		"maxRetries": maxRetries,
	})

	return &Client{
		spotClient:     client,
		logger:         cfg.Logger,
		recorder:       cfg.Recorder,
		requestTimeout: requestTimeout,
		maxRetries:     maxRetries,
		retryMin:       retryMin,
		retryMax:       retryMax,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003, -1015: // Too many requests / orders
			mappedErr = ports.ErrRateLimited
		case -1001, -1016: // Internal disconnect / service shutting down
			mappedErr = ports.ErrExchangeUnavailable
		case -1007, -1021: // Backend timeout / timestamp outside recvWindow
			mappedErr = ports.ErrTimeout
		case -1002, -1022, -2014, -2015: // Unauthorized / bad signature / bad API key
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1112, -1120, -1121, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case 0: // Error status without a JSON body, e.g. a proxy 5xx page
			mappedErr = ports.ErrExchangeUnavailable
		default:
			mappedErr = ports.ErrUnknown
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if isConnectionError(err) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "EOF")
}

// retryable reports whether another attempt may succeed.
func retryable(err error) bool {
	return errors.Is(err, ports.ErrRateLimited) ||
		errors.Is(err, ports.ErrConnectionFailed) ||
		errors.Is(err, ports.ErrExchangeUnavailable) ||
		errors.Is(err, ports.ErrTimeout)
}

// Ping checks connectivity to the REST API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	if err := c.spotClient.NewPingService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// FetchSeries fetches every candle with open time in [startMillis, endMillis].
// Pages of up to 1000 klines are requested from the last close time + 1 until
// a short page or the end of the range. Duplicate open times are dropped.
// Klines that cannot be parsed are replaced by placeholder candles.
func (c *Client) FetchSeries(ctx context.Context, symbol, interval string, startMillis, endMillis int64) (candles []domain.Candle, err error) {
	op := "FetchSeries"
	if symbol == "" || interval == "" || startMillis > endMillis {
		return nil, fmt.Errorf("%s: symbol %q interval %q range [%d, %d]: %w", op, symbol, interval, startMillis, endMillis, ports.ErrInvalidRequest)
	}

	began := time.Now()
	defer func() {
		c.recorder.FetchCompleted(sourceName, len(candles), time.Since(began), err)
	}()

	seen := make(map[int64]struct{})
	from := startMillis
	pages := 0

	for {
		klines, err := c.fetchPage(ctx, symbol, interval, from, endMillis)
		if err != nil {
			return nil, err
		}
		pages++

		for i, bk := range klines {
			if bk != nil {
				if _, dup := seen[bk.OpenTime]; dup {
					continue
				}
				seen[bk.OpenTime] = struct{}{}
			}
			candle, terr := translateBinanceKline(bk)
			if terr != nil {
				c.logger.Warn(ctx, "Malformed kline replaced by placeholder", map[string]interface{}{
					"symbol": symbol,
					"page":   pages,
					"offset": i,
					"error":  terr.Error(),
				})
				candle = domain.Placeholder()
			}
			candles = append(candles, candle)
		}

		if len(klines) < maxKlinesPerRequest {
			break
		}
		next := lastCloseTime(klines) + 1
		if next <= from || next > endMillis {
			break
		}
		from = next
	}

	c.logger.Info(ctx, "Fetched candles", map[string]interface{}{
		"symbol":   symbol,
		"interval": interval,
		"candles":  len(candles),
		"pages":    pages,
	})
	return candles, nil
}

// fetchPage requests one page, retrying retryable failures with jittered backoff.
func (c *Client) fetchPage(ctx context.Context, symbol, interval string, from, end int64) ([]*binance.Kline, error) {
	op := "GetKlines"
	b := &backoff.Backoff{Min: c.retryMin, Max: c.retryMax, Factor: 2, Jitter: true}

	for {
		klines, err := c.doFetchPage(ctx, symbol, interval, from, end)
		if err == nil {
			return klines, nil
		}
		mapped := c.handleError(ctx, err, op)
		if ctx.Err() != nil || !retryable(mapped) || int(b.Attempt()) >= c.maxRetries {
			return nil, mapped
		}

		delay := b.Duration()
		c.logger.Warn(ctx, "Retrying kline request", map[string]interface{}{
			"symbol":  symbol,
			"from":    from,
			"attempt": int(b.Attempt()),
			"delay":   delay.String(),
		})
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s canceled during backoff: %w: %w", op, ports.ErrContextCanceled, ctx.Err())
		case <-time.After(delay):
		}
	}
}

func (c *Client) doFetchPage(ctx context.Context, symbol, interval string, from, end int64) ([]*binance.Kline, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	return c.spotClient.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		StartTime(from).
		EndTime(end).
		Limit(maxKlinesPerRequest).
		Do(ctx)
}

func lastCloseTime(klines []*binance.Kline) int64 {
	for i := len(klines) - 1; i >= 0; i-- {
		if klines[i] != nil {
			return klines[i].CloseTime
		}
	}
	return 0
}

// translateBinanceKline converts the library's string-typed kline into a domain candle.
func translateBinanceKline(bk *binance.Kline) (domain.Candle, error) {
	if bk == nil {
		return domain.Candle{}, fmt.Errorf("received nil historical kline: %w", ports.ErrMalformedCandle)
	}
	fields := []struct {
		name string
		raw  string
	}{
		{"open", bk.Open},
		{"high", bk.High},
		{"low", bk.Low},
		{"close", bk.Close},
		{"volume", bk.Volume},
	}
	var values [5]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("parsing %s '%s': %w: %w", f.name, f.raw, ports.ErrMalformedCandle, err)
		}
		values[i] = v
	}
	if bk.OpenTime >= bk.CloseTime {
		return domain.Candle{}, fmt.Errorf("open time %d not before close time %d: %w", bk.OpenTime, bk.CloseTime, ports.ErrMalformedCandle)
	}

	return domain.Candle{
		OpenTime:  bk.OpenTime,
		CloseTime: bk.CloseTime,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}
