package optimization

import (
	"context"
	"testing"
	"time"

	"candleBacktest/internal/domain"
	"candleBacktest/internal/ports"
	"candleBacktest/internal/strategy"
	"candleBacktest/internal/strategy/backtesting"
	"candleBacktest/internal/strategy/indicators"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatCandles(closes ...float64) []domain.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		open := start + int64(i)*time.Hour.Milliseconds()
		out[i] = domain.Candle{OpenTime: open, CloseTime: open + time.Hour.Milliseconds() - 1, Open: c, High: c, Low: c, Close: c}
	}
	return out
}

func baseConfig() backtesting.Config {
	params := strategy.DefaultConfig()
	params.Keltner = indicators.KeltnerConfig{
		ATRLength:           1,
		MovingAverageLength: 2,
		MovingAverageType:   indicators.SimpleMovingAverage,
	}
	return backtesting.Config{
		Strategy:       strategy.KeltnerChannel,
		Params:         params,
		InitialBalance: 1000,
		Symbol:         "BTCUSDC",
	}
}

func TestOptimizer(t *testing.T) {
	config := OptimizerConfig{
		ParameterRanges: []ParameterRange{
			{Name: ParamATRMultiplierMin, Min: 0.25, Max: 1.25, Step: 1},
			{Name: ParamATRMultiplierMax, Min: 0.25, Max: 1.25, Step: 1},
		},
		Base:       baseConfig(),
		MaxWorkers: 2,
	}
	optimizer, err := NewOptimizer(config, ports.NopLogger{})
	require.NoError(t, err)

	results, err := optimizer.Optimize(context.Background(), flatCandles(100, 80, 120))
	require.NoError(t, err)

	// (1.25, 0.25) is skipped because min exceeds max
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}

	// (0.25, 0.25) buys at 80 and sells at 120; (0.25, 1.25) buys at 80 and
	// is marked to 120 at the end. Both make 500.
	assert.InDelta(t, 500.0, results[0].Score, 1e-9)
	assert.InDelta(t, 500.0, results[1].Score, 1e-9)
	for _, r := range results[:2] {
		assert.Equal(t, 0.25, r.Parameters[ParamATRMultiplierMin])
		require.NotNil(t, r.Metrics)
		assert.Equal(t, 1, r.Metrics.WinningTrades)
		if r.Parameters[ParamATRMultiplierMax] == 0.25 {
			assert.Equal(t, 2, r.Report.TradeCount)
		} else {
			assert.Equal(t, 1, r.Report.TradeCount)
		}
	}

	// with a 1.25 bottom multiplier the lower band is never crossed
	worst := results[2]
	assert.Equal(t, 1.25, worst.Parameters[ParamATRMultiplierMin])
	assert.Equal(t, 0, worst.Report.TradeCount)
	assert.Equal(t, 0.0, worst.Score)
}

func TestOptimizer_EmptySeries(t *testing.T) {
	optimizer, err := NewOptimizer(OptimizerConfig{Base: baseConfig()}, ports.NopLogger{})
	require.NoError(t, err)

	_, err = optimizer.Optimize(context.Background(), nil)
	assert.ErrorIs(t, err, ports.ErrDataUnavailable)
}

func TestNewOptimizer_Validation(t *testing.T) {
	tests := []struct {
		name    string
		ranges  []ParameterRange
		wantErr bool
	}{
		{name: "valid", ranges: []ParameterRange{{Name: ParamATRLength, Min: 1, Max: 10, Step: 1, IsInt: true}}},
		{name: "zero step", ranges: []ParameterRange{{Name: ParamATRLength, Min: 1, Max: 10, Step: 0}}, wantErr: true},
		{name: "inverted range", ranges: []ParameterRange{{Name: ParamATRLength, Min: 10, Max: 1, Step: 1}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOptimizer(OptimizerConfig{ParameterRanges: tt.ranges, Base: baseConfig()}, ports.NopLogger{})
			if (err != nil) != tt.wantErr {
				t.Errorf("NewOptimizer() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateParameterCombinations(t *testing.T) {
	o := &Optimizer{config: OptimizerConfig{
		ParameterRanges: []ParameterRange{
			{Name: "a", Min: 1, Max: 3, Step: 1, IsInt: true},
			{Name: "b", Min: 0.1, Max: 0.3, Step: 0.1},
		},
	}}

	combinations := o.generateParameterCombinations()
	if len(combinations) != 9 {
		t.Fatalf("Expected 9 combinations, got %d", len(combinations))
	}
	for _, c := range combinations {
		if c["a"] < 1 || c["a"] > 3 {
			t.Errorf("param a out of range: %v", c["a"])
		}
		if c["b"] < 0.1-1e-9 || c["b"] > 0.3+1e-9 {
			t.Errorf("param b out of range: %v", c["b"])
		}
	}
}

func TestApplyParams(t *testing.T) {
	cfg, err := applyParams(baseConfig(), map[string]float64{
		ParamATRMultiplierMin:    1,
		ParamATRMultiplierMax:    2,
		ParamATRLength:           14,
		ParamMovingAverageLength: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.Params.Keltner.ATRLength)
	assert.Equal(t, 20, cfg.Params.Keltner.MovingAverageLength)
	assert.Equal(t, 2.0, cfg.Params.Keltner.ATRMultiplierMax)

	// the base config is not mutated
	assert.Equal(t, 1, baseConfig().Params.Keltner.ATRLength)

	_, err = applyParams(baseConfig(), map[string]float64{"leverage": 3})
	assert.Error(t, err)
}
