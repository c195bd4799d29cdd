package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"

	"candleBacktest/config"
	"candleBacktest/internal/app"
	"candleBacktest/internal/metrics"
	"candleBacktest/internal/utils"
)

func main() {
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

	// 2. Initialize Logger
	appLogger, flush, err := app.NewLogger(cfg)
	if err != nil {
		log.Printf("FATAL: Failed to initialize logger: %v", err)
		return 1
	}
	defer flush()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Metrics
	recorder := metrics.NewMetrics()
	if cfg.MetricsTextfile != "" {
		defer func() {
			if err := recorder.WriteTextfile(cfg.MetricsTextfile); err != nil {
				appLogger.Error(ctx, err, "Failed to write metrics textfile")
			}
		}()
	}

	// 4. Candle source (CSV, or Binance behind the candle cache)
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

	// 5. Backtest
	service, err := app.NewBacktestService(cfg, appLogger, source, recorder)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize backtest service")
		return 1
	}
	result, err := service.Start(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "Backtest failed")
		return 1
	}

	// 6. Report
	if err := utils.RenderReport(os.Stdout, result.Report, result.Performance); err != nil {
		appLogger.Error(ctx, err, "Failed to render report")
		return 1
	}
	return 0
}
