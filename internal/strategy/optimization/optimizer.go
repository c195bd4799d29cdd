// Package optimization sweeps Keltner Channel parameters over one candle series.
package optimization

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"candleBacktest/internal/domain"
	"candleBacktest/internal/ports"
	"candleBacktest/internal/strategy/analytics"
	"candleBacktest/internal/strategy/backtesting"
)

// Parameter names understood by the optimizer.
const (
	ParamATRMultiplierMin    = "atrMultiplierMin"
	ParamATRMultiplierMax    = "atrMultiplierMax"
	ParamATRLength           = "atrLength"
	ParamMovingAverageLength = "movingAverageLength"
)

// ParameterRange defines a range for a parameter to optimize
type ParameterRange struct {
	Name  string
	Min   float64
	Max   float64
	Step  float64
	IsInt bool
}

// OptimizationResult holds the outcome of one parameter combination
type OptimizationResult struct {
	Parameters map[string]float64
	Report     *backtesting.Report
	Metrics    *analytics.PerformanceMetrics
	Score      float64
}

// OptimizerConfig holds configuration for the optimizer
type OptimizerConfig struct {
	ParameterRanges []ParameterRange
	Base            backtesting.Config // Strategy and non-swept parameters
	MaxWorkers      int                // Defaults to runtime.NumCPU()
	ScoreFunction   func(*backtesting.Report, *analytics.PerformanceMetrics) float64
}

// Optimizer runs one independent backtest per parameter combination
type Optimizer struct {
	config OptimizerConfig
	logger ports.Logger
}

// NewOptimizer creates a new optimizer instance
func NewOptimizer(config OptimizerConfig, logger ports.Logger) (*Optimizer, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for optimizer")
	}
	for _, r := range config.ParameterRanges {
		if r.Step <= 0 {
			return nil, fmt.Errorf("parameter %s: step must be positive", r.Name)
		}
		if r.Min > r.Max {
			return nil, fmt.Errorf("parameter %s: min %v above max %v", r.Name, r.Min, r.Max)
		}
	}
	if config.ScoreFunction == nil {
		config.ScoreFunction = DefaultScoreFunction
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}
	return &Optimizer{config: config, logger: logger}, nil
}

// Optimize backtests every combination concurrently and returns the results
// sorted by score, best first. Combinations that fail validation are skipped.
func (o *Optimizer) Optimize(ctx context.Context, candles []domain.Candle) ([]OptimizationResult, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("optimize: %w", ports.ErrDataUnavailable)
	}

	combinations := o.generateParameterCombinations()
	results := make([]OptimizationResult, 0, len(combinations))

	resultChan := make(chan OptimizationResult, len(combinations))
	sem := make(chan struct{}, o.config.MaxWorkers)
	var wg sync.WaitGroup

	for _, params := range combinations {
		wg.Add(1)
		go func(params map[string]float64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			cfg, err := applyParams(o.config.Base, params)
			if err != nil {
				o.logger.Debug(ctx, "Skipping parameter combination", map[string]interface{}{"params": params, "error": err.Error()})
				return
			}
			sim, err := backtesting.NewSimulator(cfg, ports.NopLogger{}, nil)
			if err != nil {
				o.logger.Debug(ctx, "Skipping parameter combination", map[string]interface{}{"params": params, "error": err.Error()})
				return
			}
			report, err := sim.Run(ctx, candles)
			if err != nil {
				o.logger.Warn(ctx, "Backtest failed for parameter combination", map[string]interface{}{"params": params, "error": err.Error()})
				return
			}

			metrics := analytics.AnalyzePerformance(report.Trades, cfg.InitialBalance, report.FinalPrice, time.UnixMilli(report.FinalTime).UTC())
			resultChan <- OptimizationResult{
				Parameters: params,
				Report:     report,
				Metrics:    metrics,
				Score:      o.config.ScoreFunction(report, metrics),
			}
		}(params)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for result := range resultChan {
		results = append(results, result)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("optimize: %w: %w", ports.ErrContextCanceled, err)
	}

	sortResultsByScore(results)
	o.logger.Info(ctx, "Optimization finished", map[string]interface{}{
		"combinations": len(combinations),
		"completed":    len(results),
	})
	return results, nil
}

// generateParameterCombinations generates all possible parameter combinations
func (o *Optimizer) generateParameterCombinations() []map[string]float64 {
	var combinations []map[string]float64
	currentCombination := make(map[string]float64)

	var generate func(int)
	generate = func(paramIndex int) {
		if paramIndex == len(o.config.ParameterRanges) {
			combination := make(map[string]float64, len(currentCombination))
			for k, v := range currentCombination {
				combination[k] = v
			}
			combinations = append(combinations, combination)
			return
		}

		param := o.config.ParameterRanges[paramIndex]
		steps := int(math.Floor((param.Max-param.Min)/param.Step + 1e-9))
		for i := 0; i <= steps; i++ {
			value := param.Min + float64(i)*param.Step
			if param.IsInt {
				value = math.Round(value)
			}
			currentCombination[param.Name] = value
			generate(paramIndex + 1)
		}
	}

	generate(0)
	return combinations
}

// applyParams copies base and overrides the Keltner parameters named in params.
func applyParams(base backtesting.Config, params map[string]float64) (backtesting.Config, error) {
	cfg := base
	k := &cfg.Params.Keltner
	for name, v := range params {
		switch name {
		case ParamATRMultiplierMin:
			k.ATRMultiplierMin = v
		case ParamATRMultiplierMax:
			k.ATRMultiplierMax = v
		case ParamATRLength:
			k.ATRLength = int(v)
		case ParamMovingAverageLength:
			k.MovingAverageLength = int(v)
		default:
			return cfg, fmt.Errorf("unknown parameter %q", name)
		}
	}
	if k.ATRMultiplierMin > k.ATRMultiplierMax {
		return cfg, fmt.Errorf("atr multiplier min %v above max %v", k.ATRMultiplierMin, k.ATRMultiplierMax)
	}
	return cfg, nil
}

// sortResultsByScore sorts optimization results by score in descending order
func sortResultsByScore(results []OptimizationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// DefaultScoreFunction ranks runs by absolute profit.
func DefaultScoreFunction(report *backtesting.Report, _ *analytics.PerformanceMetrics) float64 {
	return report.Profit
}

// RiskAdjustedScoreFunction blends win rate, profit factor, drawdown and return.
func RiskAdjustedScoreFunction(_ *backtesting.Report, metrics *analytics.PerformanceMetrics) float64 {
	score := 0.0
	score += metrics.WinRate * 0.3
	score += math.Min(metrics.ProfitFactor, 10) * 0.2
	score += (1 - metrics.MaxDrawdown) * 0.2
	score += metrics.ReturnOnInvestment * 0.3
	return score
}
