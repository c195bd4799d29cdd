package marketdata

import (
	"context"
	"fmt"
	"os"
	"time"

	"candleBacktest/internal/domain"
	"candleBacktest/internal/ports"
	"candleBacktest/internal/utils"
)

// CSVSource serves candles from a file written by cmd/fetch_candles.
type CSVSource struct {
	path     string
	logger   ports.Logger
	recorder ports.Recorder
}

// NewCSVSource creates a source reading path on every fetch.
func NewCSVSource(path string, logger ports.Logger, recorder ports.Recorder) (*CSVSource, error) {
	if path == "" {
		return nil, fmt.Errorf("csv source path is empty: %w", ports.ErrConfigurationError)
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for csv source")
	}
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	return &CSVSource{path: path, logger: logger, recorder: recorder}, nil
}

// FetchSeries returns the file's candles whose open time falls in
// [startMillis, endMillis]. Placeholder rows between in-range rows are kept
// in their position.
// symbol and interval are not checked; the file is assumed to match.
func (s *CSVSource) FetchSeries(ctx context.Context, symbol, interval string, startMillis, endMillis int64) (candles []domain.Candle, err error) {
	began := time.Now()
	defer func() {
		s.recorder.FetchCompleted("csv", len(candles), time.Since(began), err)
	}()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open candle file %s: %w: %w", s.path, ports.ErrDataUnavailable, err)
	}
	defer f.Close()

	all, malformed, err := utils.ReadCandles(f)
	if err != nil {
		return nil, fmt.Errorf("read candle file %s: %w", s.path, err)
	}
	for _, line := range malformed {
		s.logger.Warn(ctx, "Malformed candle row replaced by placeholder", map[string]interface{}{"file": s.path, "line": line})
	}

	candles = inRange(all, startMillis, endMillis)
	s.logger.Info(ctx, "Loaded candles from file", map[string]interface{}{
		"file":      s.path,
		"symbol":    symbol,
		"interval":  interval,
		"candles":   len(candles),
		"malformed": len(malformed),
	})
	return candles, nil
}

// inRange keeps rows opening in [startMillis, endMillis] and the placeholders
// found between two such rows.
func inRange(all []domain.Candle, startMillis, endMillis int64) []domain.Candle {
	var out []domain.Candle
	pending := 0
	for _, c := range all {
		if c.IsPlaceholder() {
			if len(out) > 0 {
				pending++
			}
			continue
		}
		if c.OpenTime < startMillis || c.OpenTime > endMillis {
			pending = 0
			continue
		}
		for ; pending > 0; pending-- {
			out = append(out, domain.Placeholder())
		}
		out = append(out, c)
	}
	return out
}
