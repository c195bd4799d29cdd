package binanceclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"candleBacktest/internal/domain"
	"candleBacktest/internal/ports"

	"github.com/adshao/go-binance/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hourMs = int64(time.Hour / time.Millisecond)

var rangeStart = time.Date(2023, 8, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

type fetchRecord struct {
	source  string
	candles int
	err     error
}

type fakeRecorder struct {
	ports.NopRecorder
	fetches []fetchRecord
}

func (r *fakeRecorder) FetchCompleted(source string, candles int, _ time.Duration, err error) {
	r.fetches = append(r.fetches, fetchRecord{source: source, candles: candles, err: err})
}

// klineRow renders one kline the way /api/v3/klines does.
func klineRow(openTime int64, price float64) []interface{} {
	p := strconv.FormatFloat(price, 'f', 2, 64)
	return []interface{}{
		openTime, p, strconv.FormatFloat(price+1, 'f', 2, 64), strconv.FormatFloat(price-1, 'f', 2, 64), p, "10.5",
		openTime + hourMs - 1, "1000.0", 42, "5.0", "500.0", "0",
	}
}

// klineServer serves hourly klines for [startTime, endTime], one page per call.
// With overlap each page also repeats the kline before startTime.
type klineServer struct {
	requests atomic.Int32
	overlap  bool
	malform  int64 // open time whose open price is unparseable
	failures int32 // leading requests answered with failStatus/failBody
	failCode int
	failBody string
}

func (s *klineServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/v3/ping" {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "{}")
		return
	}
	n := s.requests.Add(1)
	if r.URL.Path != "/api/v3/klines" {
		http.NotFound(w, r)
		return
	}
	if n <= s.failures {
		w.WriteHeader(s.failCode)
		fmt.Fprint(w, s.failBody)
		return
	}

	q := r.URL.Query()
	start, _ := strconv.ParseInt(q.Get("startTime"), 10, 64)
	end, _ := strconv.ParseInt(q.Get("endTime"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))

	first := rangeStart + (start-rangeStart+hourMs-1)/hourMs*hourMs
	if s.overlap && first > rangeStart {
		first -= hourMs
	}
	rows := make([][]interface{}, 0, limit)
	for t := first; t <= end && len(rows) < limit; t += hourMs {
		row := klineRow(t, 100+float64((t-rangeStart)/hourMs))
		if t == s.malform {
			row[1] = "not-a-number"
		}
		rows = append(rows, row)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}

func newTestClient(t *testing.T, srv *httptest.Server, recorder ports.Recorder, maxRetries int) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL:        srv.URL,
		RequestTimeout: 2 * time.Second,
		MaxRetries:     maxRetries,
		RetryMin:       time.Millisecond,
		RetryMax:       5 * time.Millisecond,
		Logger:         ports.NopLogger{},
		Recorder:       recorder,
	})
	require.NoError(t, err)
	return c
}

func TestFetchSeries_Paginates(t *testing.T) {
	handler := &klineServer{}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	recorder := &fakeRecorder{}
	c := newTestClient(t, srv, recorder, 0)

	end := rangeStart + 2499*hourMs
	candles, err := c.FetchSeries(context.Background(), "BTCUSDC", "1h", rangeStart, end)
	require.NoError(t, err)

	assert.Len(t, candles, 2500)
	assert.Equal(t, int32(3), handler.requests.Load())
	assert.Equal(t, rangeStart, candles[0].OpenTime)
	assert.Equal(t, end, candles[len(candles)-1].OpenTime)
	for i := 1; i < len(candles); i++ {
		require.Less(t, candles[i-1].OpenTime, candles[i].OpenTime, "candle %d out of order", i)
	}
	assert.Equal(t, 100.0, candles[0].Close)
	assert.Equal(t, 101.0, candles[0].High)
	assert.Equal(t, 10.5, candles[0].Volume)

	require.Len(t, recorder.fetches, 1)
	assert.Equal(t, "binance", recorder.fetches[0].source)
	assert.Equal(t, 2500, recorder.fetches[0].candles)
	assert.NoError(t, recorder.fetches[0].err)
}

func TestFetchSeries_DropsDuplicateOpenTimes(t *testing.T) {
	handler := &klineServer{overlap: true}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	c := newTestClient(t, srv, nil, 0)
	end := rangeStart + 1499*hourMs
	candles, err := c.FetchSeries(context.Background(), "BTCUSDC", "1h", rangeStart, end)
	require.NoError(t, err)

	seen := make(map[int64]bool)
	for _, candle := range candles {
		assert.False(t, seen[candle.OpenTime], "duplicate open time %d", candle.OpenTime)
		seen[candle.OpenTime] = true
	}
	assert.Len(t, candles, 1500)
}

func TestFetchSeries_ShortRange(t *testing.T) {
	handler := &klineServer{}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	c := newTestClient(t, srv, nil, 0)
	candles, err := c.FetchSeries(context.Background(), "BTCUSDC", "1h", rangeStart, rangeStart+2*hourMs)
	require.NoError(t, err)
	assert.Len(t, candles, 3)
	assert.Equal(t, int32(1), handler.requests.Load())
}

func TestFetchSeries_MalformedKlineBecomesPlaceholder(t *testing.T) {
	handler := &klineServer{malform: rangeStart + hourMs}
	srv := httptest.NewServer(handler)
	defer srv.Close()

	c := newTestClient(t, srv, nil, 0)
	candles, err := c.FetchSeries(context.Background(), "BTCUSDC", "1h", rangeStart, rangeStart+2*hourMs)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	assert.False(t, candles[0].IsPlaceholder())
	assert.True(t, candles[1].IsPlaceholder())
	assert.False(t, candles[2].IsPlaceholder())
}

func TestFetchSeries_Errors(t *testing.T) {
	tests := []struct {
		name         string
		handler      *klineServer
		maxRetries   int
		wantErr      error
		wantRequests int32
		wantCandles  int
	}{
		{
			name:         "rate limited then recovers",
			handler:      &klineServer{failures: 2, failCode: http.StatusTooManyRequests, failBody: `{"code":-1003,"msg":"Too many requests"}`},
			maxRetries:   3,
			wantRequests: 3,
			wantCandles:  3,
		},
		{
			name:         "rate limited beyond retries",
			handler:      &klineServer{failures: 5, failCode: http.StatusTooManyRequests, failBody: `{"code":-1003,"msg":"Too many requests"}`},
			maxRetries:   1,
			wantErr:      ports.ErrRateLimited,
			wantRequests: 2,
		},
		{
			name:         "invalid symbol is not retried",
			handler:      &klineServer{failures: 5, failCode: http.StatusBadRequest, failBody: `{"code":-1121,"msg":"Invalid symbol."}`},
			maxRetries:   3,
			wantErr:      ports.ErrInvalidRequest,
			wantRequests: 1,
		},
		{
			name:         "gateway error page",
			handler:      &klineServer{failures: 5, failCode: http.StatusBadGateway, failBody: `<html>bad gateway</html>`},
			maxRetries:   2,
			wantErr:      ports.ErrExchangeUnavailable,
			wantRequests: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := newTestClient(t, srv, nil, tt.maxRetries)
			candles, err := c.FetchSeries(context.Background(), "BTCUSDC", "1h", rangeStart, rangeStart+2*hourMs)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, candles)
			} else {
				require.NoError(t, err)
				assert.Len(t, candles, tt.wantCandles)
			}
			assert.Equal(t, tt.wantRequests, tt.handler.requests.Load())
		})
	}
}

func TestFetchSeries_InvalidRange(t *testing.T) {
	srv := httptest.NewServer(&klineServer{})
	defer srv.Close()

	c := newTestClient(t, srv, nil, 0)
	_, err := c.FetchSeries(context.Background(), "BTCUSDC", "1h", rangeStart+hourMs, rangeStart)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestFetchSeries_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(&klineServer{})
	defer srv.Close()

	c := newTestClient(t, srv, nil, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchSeries(ctx, "BTCUSDC", "1h", rangeStart, rangeStart+hourMs)
	assert.ErrorIs(t, err, ports.ErrContextCanceled)
}

func TestTranslateBinanceKline(t *testing.T) {
	valid := &binance.Kline{
		OpenTime: rangeStart, CloseTime: rangeStart + hourMs - 1,
		Open: "1.5", High: "2.5", Low: "1.0", Close: "2.0", Volume: "300",
	}

	tests := []struct {
		name    string
		kline   *binance.Kline
		want    domain.Candle
		wantErr bool
	}{
		{
			name:  "valid",
			kline: valid,
			want: domain.Candle{
				OpenTime: rangeStart, CloseTime: rangeStart + hourMs - 1,
				Open: 1.5, High: 2.5, Low: 1.0, Close: 2.0, Volume: 300,
			},
		},
		{name: "nil", kline: nil, wantErr: true},
		{name: "empty close", kline: &binance.Kline{OpenTime: 1, CloseTime: 2, Open: "1", High: "1", Low: "1", Volume: "1"}, wantErr: true},
		{name: "inverted times", kline: &binance.Kline{OpenTime: 5, CloseTime: 2, Open: "1", High: "1", Low: "1", Close: "1", Volume: "1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := translateBinanceKline(tt.kline)
			if tt.wantErr {
				assert.ErrorIs(t, err, ports.ErrMalformedCandle)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPing(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		handler := &klineServer{}
		srv := httptest.NewServer(handler)
		defer srv.Close()

		c := newTestClient(t, srv, nil, 0)
		require.NoError(t, c.Ping(context.Background()))
		assert.Zero(t, handler.requests.Load(), "ping does not touch klines")
	})

	t.Run("gateway down", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			fmt.Fprint(w, "<html>bad gateway</html>")
		}))
		defer srv.Close()

		c := newTestClient(t, srv, nil, 0)
		assert.ErrorIs(t, c.Ping(context.Background()), ports.ErrExchangeUnavailable)
	})
}

func TestNew_RequiresLogger(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
