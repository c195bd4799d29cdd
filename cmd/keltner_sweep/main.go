package main

import (
	"context"
	"flag"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"

	"candleBacktest/config"
	"candleBacktest/internal/app"
	"candleBacktest/internal/metrics"
	"candleBacktest/internal/strategy"
	"candleBacktest/internal/strategy/optimization"
	"candleBacktest/internal/utils"
)

var (
	minFrom = flag.Float64("min-from", 0.5, "first ATR multiplier for the lower band")
	minTo   = flag.Float64("min-to", 2.5, "last ATR multiplier for the lower band")
	maxFrom = flag.Float64("max-from", 1.5, "first ATR multiplier for the upper band")
	maxTo   = flag.Float64("max-to", 4.5, "last ATR multiplier for the upper band")
	step    = flag.Float64("step", 0.5, "multiplier increment")
	workers = flag.Int("workers", 0, "concurrent backtests (0 = one per CPU)")
	top     = flag.Int("top", 10, "results to print (0 = all)")
	score   = flag.String("score", "profit", "ranking: profit or risk")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("FATAL: Failed to load configuration: %v", err)
		return 1
	}
	cfg.Strategy = strategy.KeltnerChannel

	appLogger, flush, err := app.NewLogger(cfg)
	if err != nil {
		log.Printf("FATAL: Failed to initialize logger: %v", err)
		return 1
	}
	defer flush()

	recorder := metrics.NewMetrics()
	if cfg.MetricsTextfile != "" {
		defer func() {
			if err := recorder.WriteTextfile(cfg.MetricsTextfile); err != nil {
				appLogger.Error(ctx, err, "Failed to write metrics textfile")
			}
		}()
	}

	// 2. Load candles once; every combination runs over the same series
	source, closeSource, err := app.NewCandleSource(ctx, cfg, appLogger, recorder)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize candle source")
		return 1
	}
	defer func() {
		if err := closeSource(); err != nil {
			appLogger.Error(ctx, err, "Error closing candle source")
		}
	}()

	service, err := app.NewBacktestService(cfg, appLogger, source, recorder)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize backtest service")
		return 1
	}
	candles, err := service.FetchCandles(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching candles")
		return 1
	}

	// 3. Sweep
	scoreFn := optimization.DefaultScoreFunction
	if *score == "risk" {
		scoreFn = optimization.RiskAdjustedScoreFunction
	}
	optimizer, err := optimization.NewOptimizer(optimization.OptimizerConfig{
		ParameterRanges: []optimization.ParameterRange{
			{Name: optimization.ParamATRMultiplierMin, Min: *minFrom, Max: *minTo, Step: *step},
			{Name: optimization.ParamATRMultiplierMax, Min: *maxFrom, Max: *maxTo, Step: *step},
		},
		Base:          cfg.Backtest(),
		MaxWorkers:    *workers,
		ScoreFunction: scoreFn,
	}, appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Invalid sweep parameters")
		return 1
	}

	results, err := optimizer.Optimize(ctx, candles)
	if err != nil {
		appLogger.Error(ctx, err, "Sweep failed")
		return 1
	}
	if *top > 0 && len(results) > *top {
		results = results[:*top]
	}

	// 4. Report
	if err := utils.RenderSweep(os.Stdout, results, []string{optimization.ParamATRMultiplierMin, optimization.ParamATRMultiplierMax}); err != nil {
		appLogger.Error(ctx, err, "Failed to render sweep")
		return 1
	}
	return 0
}
