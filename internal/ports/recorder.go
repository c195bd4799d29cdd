package ports

import (
	"time"

	"candleBacktest/internal/domain"
)

// Recorder receives backtest and fetch events for metrics collection.
type Recorder interface {
	CandleProcessed()
	PlaceholderSkipped()
	StepFailed(strategy string)
	TradeExecuted(side domain.OrderSide)
	FetchCompleted(source string, candles int, elapsed time.Duration, err error)
}

// NopRecorder discards all events.
type NopRecorder struct{}

func (NopRecorder) CandleProcessed()                                 {}
func (NopRecorder) PlaceholderSkipped()                              {}
func (NopRecorder) StepFailed(string)                                {}
func (NopRecorder) TradeExecuted(domain.OrderSide)                   {}
func (NopRecorder) FetchCompleted(string, int, time.Duration, error) {}
