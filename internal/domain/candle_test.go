package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandle_Tradable(t *testing.T) {
	valid := Candle{OpenTime: 1000, CloseTime: 1999, Open: 10, High: 12, Low: 9, Close: 11, Volume: 1}

	tests := []struct {
		name   string
		mutate func(c *Candle)
		want   bool
	}{
		{"valid", func(c *Candle) {}, true},
		{"placeholder", func(c *Candle) { *c = Placeholder() }, false},
		{"zero close", func(c *Candle) { c.Close = 0 }, false},
		{"negative close", func(c *Candle) { c.Close = -1 }, false},
		{"infinite close", func(c *Candle) { c.Close = math.Inf(1) }, false},
		{"NaN close", func(c *Candle) { c.Close = math.NaN() }, false},
		{"infinite high", func(c *Candle) { c.High = math.Inf(1) }, false},
		{"NaN low", func(c *Candle) { c.Low = math.NaN() }, false},
		{"infinite volume", func(c *Candle) { c.Volume = math.Inf(1) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Equal(t, tt.want, c.Tradable())
		})
	}
}

func TestCandle_Times(t *testing.T) {
	c := Candle{OpenTime: 1690848000000, CloseTime: 1690851599999}
	assert.Equal(t, "2023-08-01T00:00:00Z", c.OpenAt().Format("2006-01-02T15:04:05Z07:00"))
	assert.Equal(t, "2023-08-01T00:59:59.999Z", c.CloseAt().Format("2006-01-02T15:04:05.000Z07:00"))
}
