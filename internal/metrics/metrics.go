// Package metrics records backtest and fetch activity as Prometheus metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"candleBacktest/internal/domain"
)

// Metrics holds all Prometheus metrics for the backtester.
// It implements ports.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	CandlesTotal      prometheus.Counter
	PlaceholdersTotal prometheus.Counter
	FailedStepsTotal  *prometheus.CounterVec // labels: strategy
	TradesTotal       *prometheus.CounterVec // labels: side

	FetchDuration     *prometheus.HistogramVec // labels: source
	FetchCandlesTotal *prometheus.CounterVec   // labels: source
	FetchErrorsTotal  *prometheus.CounterVec   // labels: source
}

// NewMetrics registers all metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_candles_total",
			Help: "Candles processed by the simulator, placeholders included",
		}),
		PlaceholdersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_placeholder_candles_total",
			Help: "Placeholder candles skipped by the simulator",
		}),
		FailedStepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_failed_steps_total",
			Help: "Simulation steps skipped because the strategy could not be evaluated",
		}, []string{"strategy"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_trades_total",
			Help: "Simulated trades by side",
		}, []string{"side"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backtest_fetch_duration_seconds",
			Help:    "Time spent fetching a candle series",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
		FetchCandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_fetched_candles_total",
			Help: "Candles returned by each source",
		}, []string{"source"}),
		FetchErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_fetch_errors_total",
			Help: "Failed candle series fetches",
		}, []string{"source"}),
	}

	m.registry.MustRegister(
		m.CandlesTotal,
		m.PlaceholdersTotal,
		m.FailedStepsTotal,
		m.TradesTotal,
		m.FetchDuration,
		m.FetchCandlesTotal,
		m.FetchErrorsTotal,
	)
	return m
}

// Registry exposes the private registry, e.g. for promhttp or tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) CandleProcessed()    { m.CandlesTotal.Inc() }
func (m *Metrics) PlaceholderSkipped() { m.PlaceholdersTotal.Inc() }

func (m *Metrics) StepFailed(strategy string) {
	m.FailedStepsTotal.WithLabelValues(strategy).Inc()
}

func (m *Metrics) TradeExecuted(side domain.OrderSide) {
	m.TradesTotal.WithLabelValues(string(side)).Inc()
}

func (m *Metrics) FetchCompleted(source string, candles int, elapsed time.Duration, err error) {
	m.FetchDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	if err != nil {
		m.FetchErrorsTotal.WithLabelValues(source).Inc()
		return
	}
	m.FetchCandlesTotal.WithLabelValues(source).Add(float64(candles))
}

// WriteTextfile dumps the registry in the text exposition format, for the
// node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry()); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
