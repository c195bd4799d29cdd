package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"candleBacktest/config"
	"candleBacktest/internal/domain"
	"candleBacktest/internal/ports"
	"candleBacktest/internal/strategy/analytics"
	"candleBacktest/internal/strategy/backtesting"
)

// BacktestService fetches the configured range and runs one backtest over it.
type BacktestService struct {
	cfg      *config.Config
	logger   ports.Logger
	source   ports.CandleSource
	recorder ports.Recorder
}

// Result bundles the simulator report with the derived trade statistics.
type Result struct {
	Report      *backtesting.Report
	Performance *analytics.PerformanceMetrics
}

// NewBacktestService creates a new application service instance.
func NewBacktestService(
	cfg *config.Config,
	logger ports.Logger,
	source ports.CandleSource,
	recorder ports.Recorder,
) (*BacktestService, error) {
	if cfg == nil || logger == nil || source == nil {
		return nil, fmt.Errorf("missing required dependencies for BacktestService")
	}
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	if !cfg.Start.Before(cfg.End) {
		return nil, fmt.Errorf("%w: start %s is not before end %s", ports.ErrConfigurationError, cfg.Start, cfg.End)
	}
	return &BacktestService{cfg: cfg, logger: logger, source: source, recorder: recorder}, nil
}

// Start runs the backtest, cancelling the fetch on SIGINT or SIGTERM.
func (s *BacktestService) Start(ctx context.Context) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	return s.Run(ctx)
}

// FetchCandles loads the configured range from the candle source.
func (s *BacktestService) FetchCandles(ctx context.Context) ([]domain.Candle, error) {
	symbol := s.cfg.Symbol()
	s.logger.Info(ctx, "Fetching historical data", map[string]interface{}{
		"symbol":   symbol,
		"interval": s.cfg.Interval,
		"start":    s.cfg.Start.Format("2006-01-02T15:04:05Z"),
		"end":      s.cfg.End.Format("2006-01-02T15:04:05Z"),
	})

	candles, err := s.source.FetchSeries(ctx, symbol, s.cfg.Interval, s.cfg.StartMillis(), s.cfg.EndMillis())
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", symbol, s.cfg.Interval, err)
	}
	if len(candles) == 0 {
		s.logger.Warn(ctx, "No data returned for the requested range", map[string]interface{}{"symbol": symbol})
	}
	return candles, nil
}

// Run fetches candles and simulates the configured strategy over them.
func (s *BacktestService) Run(ctx context.Context) (*Result, error) {
	candles, err := s.FetchCandles(ctx)
	if err != nil {
		return nil, err
	}

	sim, err := backtesting.NewSimulator(s.cfg.Backtest(), s.logger, s.recorder)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrConfigurationError, err)
	}

	report, err := sim.Run(ctx, candles)
	if err != nil {
		return nil, err
	}

	perf := analytics.AnalyzePerformance(report.Trades, report.InitialBalance, report.FinalPrice,
		time.UnixMilli(report.FinalTime).UTC())

	s.logger.Info(ctx, "Performance analysed", map[string]interface{}{
		"runID":       report.RunID,
		"roundTrips":  perf.TotalTrades,
		"winRate":     perf.WinRate,
		"maxDrawdown": perf.MaxDrawdown,
	})
	return &Result{Report: report, Performance: perf}, nil
}
