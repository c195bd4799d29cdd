package main

import (
	"context"
	"flag"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"

	"candleBacktest/config"
	"candleBacktest/internal/app"
	"candleBacktest/internal/metrics"
	"candleBacktest/internal/utils"
)

var outPath = flag.String("out", "", "CSV file to write (default data/<symbol>_<interval>_<start>_to_<end>.csv)")

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
	// Always hit the exchange (or its cache), never an existing CSV.
	cfg.CandleCSVPath = ""

	// 2. Initialize Logger
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

	// 3. Initialize candle source
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

	symbol := cfg.Symbol()
	fmt.Printf("Fetching candles for %s %s from %s to %s...\n", symbol, cfg.Interval, cfg.Start, cfg.End)
	candles, err := source.FetchSeries(ctx, symbol, cfg.Interval, cfg.StartMillis(), cfg.EndMillis())
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching candles")
		return 1
	}
	appLogger.Info(ctx, "Fetched candles", map[string]interface{}{"count": len(candles)})

	filename := *outPath
	if filename == "" {
		filename = fmt.Sprintf("data/%s_%s_%s_to_%s.csv", symbol, cfg.Interval, cfg.Start.Format("20060102"), cfg.End.Format("20060102"))
	}
	if err := utils.WriteCandlesToCSV(candles, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		return 1
	}
	appLogger.Info(ctx, "Saved to", map[string]interface{}{"filename": filename})
	return 0
}
