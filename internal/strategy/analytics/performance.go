// Package analytics derives round-trip statistics from a backtest trade log.
package analytics

import (
	"math"
	"sort"
	"time"

	"candleBacktest/internal/domain"
)

// RoundTrip is one BUY followed by its SELL, or by the end of the data.
type RoundTrip struct {
	EntryPrice float64
	ExitPrice  float64
	Units      float64
	PNL        float64
	EntryTime  time.Time
	ExitTime   time.Time
	Open       bool // Still held at the end; ExitPrice is the mark price
}

// PerformanceMetrics holds performance metrics for one backtest
type PerformanceMetrics struct {
	// Basic Metrics
	TotalTrades        int
	WinningTrades      int
	LosingTrades       int
	WinRate            float64
	TotalProfit        float64
	MaxDrawdown        float64
	ProfitFactor       float64
	AverageWin         float64
	AverageLoss        float64
	FinalBalance       float64
	ReturnOnInvestment float64

	// Advanced Metrics
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageTradeDuration time.Duration
	Expectancy           float64
	MonthlyReturns       map[string]float64
	RoundTrips           []RoundTrip
	EquityCurve          []EquityPoint
}

// EquityPoint represents a point on the equity curve
type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64
}

// PairTrades matches BUY events with the following SELL.
// A trailing BUY becomes an open round trip valued at lastPrice.
func PairTrades(trades []domain.TradeEvent, lastPrice float64, lastTime time.Time) []RoundTrip {
	var trips []RoundTrip
	var entry *domain.TradeEvent
	for i := range trades {
		tr := &trades[i]
		switch tr.Side {
		case domain.Buy:
			entry = tr
		case domain.Sell:
			if entry == nil {
				continue
			}
			trips = append(trips, newRoundTrip(entry, tr.Price, tr.ExecutedAt(), false))
			entry = nil
		}
	}
	if entry != nil && lastPrice > 0 {
		trips = append(trips, newRoundTrip(entry, lastPrice, lastTime, true))
	}
	return trips
}

func newRoundTrip(entry *domain.TradeEvent, exitPrice float64, exitTime time.Time, open bool) RoundTrip {
	return RoundTrip{
		EntryPrice: entry.Price,
		ExitPrice:  exitPrice,
		Units:      entry.Position,
		PNL:        entry.Position * (exitPrice - entry.Price),
		EntryTime:  entry.ExecutedAt(),
		ExitTime:   exitTime,
		Open:       open,
	}
}

// AnalyzePerformance calculates performance metrics from a trade log.
// lastPrice and lastTime mark any position still open at the end of the data.
func AnalyzePerformance(trades []domain.TradeEvent, initialBalance, lastPrice float64, lastTime time.Time) *PerformanceMetrics {
	metrics := &PerformanceMetrics{
		FinalBalance:   initialBalance,
		MonthlyReturns: make(map[string]float64),
		EquityCurve:    make([]EquityPoint, 0),
	}

	trips := PairTrades(trades, lastPrice, lastTime)
	metrics.RoundTrips = trips
	if len(trips) == 0 {
		return metrics
	}

	currentBalance := initialBalance
	peakBalance := initialBalance
	var grossWin, grossLoss float64
	var consecutiveWins, consecutiveLosses int
	var totalDuration time.Duration

	for _, trip := range trips {
		metrics.TotalTrades++
		if trip.PNL > 0 {
			metrics.WinningTrades++
			grossWin += trip.PNL
			consecutiveWins++
			consecutiveLosses = 0
		} else {
			metrics.LosingTrades++
			grossLoss += trip.PNL
			consecutiveLosses++
			consecutiveWins = 0
		}
		metrics.MaxConsecutiveWins = max(metrics.MaxConsecutiveWins, consecutiveWins)
		metrics.MaxConsecutiveLosses = max(metrics.MaxConsecutiveLosses, consecutiveLosses)

		currentBalance += trip.PNL
		metrics.TotalProfit += trip.PNL
		metrics.MonthlyReturns[trip.ExitTime.Format("2006-01")] += trip.PNL
		totalDuration += trip.ExitTime.Sub(trip.EntryTime)

		peakBalance = math.Max(peakBalance, currentBalance)
		drawdown := (peakBalance - currentBalance) / peakBalance
		metrics.MaxDrawdown = math.Max(metrics.MaxDrawdown, drawdown)

		metrics.EquityCurve = append(metrics.EquityCurve, EquityPoint{
			Time:     trip.ExitTime,
			Value:    currentBalance,
			Drawdown: drawdown,
		})
	}

	metrics.FinalBalance = currentBalance
	metrics.WinRate = float64(metrics.WinningTrades) / float64(metrics.TotalTrades)
	if metrics.WinningTrades > 0 {
		metrics.AverageWin = grossWin / float64(metrics.WinningTrades)
	}
	if metrics.LosingTrades > 0 {
		metrics.AverageLoss = grossLoss / float64(metrics.LosingTrades)
	}
	if grossLoss != 0 {
		metrics.ProfitFactor = grossWin / -grossLoss
	}
	metrics.ReturnOnInvestment = (metrics.FinalBalance - initialBalance) / initialBalance
	metrics.AverageTradeDuration = totalDuration / time.Duration(len(trips))
	metrics.Expectancy = metrics.WinRate*metrics.AverageWin + (1-metrics.WinRate)*metrics.AverageLoss

	return metrics
}

// GetMonthlyReturns returns the monthly returns as a sorted slice
func (m *PerformanceMetrics) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(m.MonthlyReturns))
	for month, profit := range m.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{
			Month:  date,
			Return: profit,
		})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}

// MonthlyReturn represents a monthly return value
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}
