package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"candleBacktest/config"
	"candleBacktest/internal/adapters/binanceclient"
	"candleBacktest/internal/adapters/logger"
	"candleBacktest/internal/domain"
	"candleBacktest/internal/marketdata"
	"candleBacktest/internal/ports"
	"candleBacktest/internal/strategy"
	"candleBacktest/internal/strategy/backtesting"
	"candleBacktest/internal/strategy/indicators"
	"candleBacktest/internal/utils"
)

// Mock implementations
type mockLogger struct {
	infoMsgs []string
	warnMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockSource struct {
	candles []domain.Candle
	err     error

	calls    int
	symbol   string
	interval string
	start    int64
	end      int64
}

func (m *mockSource) FetchSeries(ctx context.Context, symbol, interval string, startMillis, endMillis int64) ([]domain.Candle, error) {
	m.calls++
	m.symbol, m.interval, m.start, m.end = symbol, interval, startMillis, endMillis
	return m.candles, m.err
}

var rangeStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func hourlyCandles(closes ...float64) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		open := rangeStart.Add(time.Duration(i) * time.Hour).UnixMilli()
		out[i] = domain.Candle{
			OpenTime:  open,
			CloseTime: open + time.Hour.Milliseconds() - 1,
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1,
		}
	}
	return out
}

func testConfig() *config.Config {
	params := strategy.DefaultConfig()
	params.Keltner = indicators.KeltnerConfig{
		ATRMultiplierMin:    0.25,
		ATRMultiplierMax:    0.25,
		ATRLength:           1,
		MovingAverageLength: 2,
		MovingAverageType:   indicators.SimpleMovingAverage,
	}
	return &config.Config{
		Asset:          "BTC",
		Currency:       "USDC",
		CandleSize:     60,
		Interval:       "1h",
		Start:          rangeStart,
		End:            rangeStart.Add(72 * time.Hour),
		Strategy:       strategy.KeltnerChannel,
		Params:         params,
		InitialBalance: 1000,
		Mode:           backtesting.ModeIncremental,
		CacheBackend:   config.CacheNone,
		LogFormat:      "text",
		LogLevel:       logger.LevelInfo,
	}
}

func TestNewBacktestService(t *testing.T) {
	cfg := testConfig()
	log := &mockLogger{}
	src := &mockSource{}

	_, err := NewBacktestService(nil, log, src, nil)
	assert.Error(t, err)
	_, err = NewBacktestService(cfg, nil, src, nil)
	assert.Error(t, err)
	_, err = NewBacktestService(cfg, log, nil, nil)
	assert.Error(t, err)

	reversed := testConfig()
	reversed.End = reversed.Start
	_, err = NewBacktestService(reversed, log, src, nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	svc, err := NewBacktestService(cfg, log, src, nil)
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestBacktestService_Run(t *testing.T) {
	cfg := testConfig()
	log := &mockLogger{}
	src := &mockSource{candles: hourlyCandles(100, 80, 120)}

	svc, err := NewBacktestService(cfg, log, src, nil)
	require.NoError(t, err)

	res, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, "BTCUSDC", src.symbol)
	assert.Equal(t, "1h", src.interval)
	assert.Equal(t, cfg.StartMillis(), src.start)
	assert.Equal(t, cfg.EndMillis(), src.end)

	require.NotNil(t, res.Report)
	assert.Equal(t, 2, res.Report.TradeCount)
	assert.InDelta(t, 1500, res.Report.FinalBalance, 1e-9)
	assert.InDelta(t, 500, res.Report.Profit, 1e-9)
	assert.InDelta(t, 200, res.Report.BuyAndHoldProfit, 1e-9)

	require.NotNil(t, res.Performance)
	assert.Equal(t, 1, res.Performance.TotalTrades)
	assert.Equal(t, 1, res.Performance.WinningTrades)
	assert.Contains(t, log.infoMsgs, "Performance analysed")
}

func TestBacktestService_RunErrors(t *testing.T) {
	t.Run("source failure", func(t *testing.T) {
		src := &mockSource{err: ports.ErrRateLimited}
		svc, err := NewBacktestService(testConfig(), &mockLogger{}, src, nil)
		require.NoError(t, err)

		_, err = svc.Run(context.Background())
		assert.ErrorIs(t, err, ports.ErrRateLimited)
	})

	t.Run("empty series", func(t *testing.T) {
		log := &mockLogger{}
		svc, err := NewBacktestService(testConfig(), log, &mockSource{}, nil)
		require.NoError(t, err)

		_, err = svc.Run(context.Background())
		assert.ErrorIs(t, err, ports.ErrDataUnavailable)
		assert.Contains(t, log.warnMsgs, "No data returned for the requested range")
	})

	t.Run("invalid simulator config", func(t *testing.T) {
		cfg := testConfig()
		cfg.InitialBalance = 0
		svc, err := NewBacktestService(cfg, &mockLogger{}, &mockSource{candles: hourlyCandles(1, 2)}, nil)
		require.NoError(t, err)

		_, err = svc.Run(context.Background())
		assert.ErrorIs(t, err, ports.ErrConfigurationError)
	})
}

func TestBacktestService_StartHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc, err := NewBacktestService(testConfig(), &mockLogger{}, &mockSource{candles: hourlyCandles(100, 80, 120)}, nil)
	require.NoError(t, err)

	_, err = svc.Start(ctx)
	assert.True(t, errors.Is(err, ports.ErrContextCanceled) || errors.Is(err, context.Canceled))
}

func TestNewLogger(t *testing.T) {
	cfg := testConfig()

	l, flush, err := NewLogger(cfg)
	require.NoError(t, err)
	assert.IsType(t, &logger.StdLogger{}, l)
	flush()

	cfg.LogFormat = "json"
	l, flush, err = NewLogger(cfg)
	require.NoError(t, err)
	assert.IsType(t, &logger.ZapLogger{}, l)
	flush()
}

func TestNewCandleSource(t *testing.T) {
	ctx := context.Background()
	log := &mockLogger{}

	t.Run("csv", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "candles.csv")
		require.NoError(t, utils.WriteCandlesToCSV(hourlyCandles(1, 2, 3), path))

		cfg := testConfig()
		cfg.CandleCSVPath = path
		src, closeFn, err := NewCandleSource(ctx, cfg, log, nil)
		require.NoError(t, err)
		defer closeFn()

		assert.IsType(t, &marketdata.CSVSource{}, src)
		candles, err := src.FetchSeries(ctx, cfg.Symbol(), cfg.Interval, cfg.StartMillis(), cfg.EndMillis())
		require.NoError(t, err)
		assert.Len(t, candles, 3)
	})

	up := pingServer(t, http.StatusOK, "{}")
	down := pingServer(t, http.StatusServiceUnavailable, `{"code":-1016,"msg":"This service is no longer available."}`)

	t.Run("binance without cache", func(t *testing.T) {
		cfg := testConfig()
		cfg.BaseURL = up.URL
		src, closeFn, err := NewCandleSource(ctx, cfg, log, nil)
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &binanceclient.Client{}, src)
	})

	t.Run("binance behind sqlite", func(t *testing.T) {
		cfg := testConfig()
		cfg.BaseURL = up.URL
		cfg.CacheBackend = config.CacheSQLite
		cfg.CandleCachePath = filepath.Join(t.TempDir(), "candles.db")

		src, closeFn, err := NewCandleSource(ctx, cfg, log, nil)
		require.NoError(t, err)
		assert.IsType(t, &marketdata.CachingSource{}, src)
		assert.NoError(t, closeFn())
	})

	t.Run("unreachable binance without cache fails", func(t *testing.T) {
		cfg := testConfig()
		cfg.BaseURL = down.URL
		src, _, err := NewCandleSource(ctx, cfg, log, nil)
		assert.ErrorIs(t, err, ports.ErrExchangeUnavailable)
		assert.Nil(t, src)
	})

	t.Run("unreachable binance behind sqlite warns", func(t *testing.T) {
		warnLog := &mockLogger{}
		cfg := testConfig()
		cfg.BaseURL = down.URL
		cfg.CacheBackend = config.CacheSQLite
		cfg.CandleCachePath = filepath.Join(t.TempDir(), "candles.db")

		src, closeFn, err := NewCandleSource(ctx, cfg, warnLog, nil)
		require.NoError(t, err)
		assert.IsType(t, &marketdata.CachingSource{}, src)
		assert.Contains(t, warnLog.warnMsgs, "Binance unreachable, only cached ranges can be served")
		assert.NoError(t, closeFn())
	})
}

// pingServer answers the exchange ping endpoint with status and body.
func pingServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ping" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}
