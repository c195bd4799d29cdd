package domain

import "time"

// TradeEvent records one executed BUY or SELL transition of a backtest.
type TradeEvent struct {
	Side     OrderSide // BUY or SELL
	Price    float64   // Close price the trade executed at
	Time     int64     // Close time of the triggering candle (ms)
	Index    int       // Position of the triggering candle in the series
	Balance  float64   // Quote balance after the trade
	Position float64   // Units of the asset held after the trade
	Reason   string    // Human readable signal description
}

// ExecutedAt returns the trade time as a UTC time.Time.
func (t TradeEvent) ExecutedAt() time.Time {
	return time.UnixMilli(t.Time).UTC()
}
