// Package strategy turns indicator output into buy/sell/hold decisions.
package strategy

import (
	"fmt"
	"strings"

	"candleBacktest/internal/domain"
	"candleBacktest/internal/ports"
	"candleBacktest/internal/strategy/indicators"
)

// Name identifies one of the built-in signal strategies.
type Name string

const (
	KeltnerChannel         Name = "keltnerChannel"
	MovingAverageCrossover Name = "movingAverageCrossover"
	RSIOverboughtOversold  Name = "rsiOverboughtOversold"
)

// Names lists every supported strategy.
func Names() []Name {
	return []Name{KeltnerChannel, MovingAverageCrossover, RSIOverboughtOversold}
}

// ParseName resolves a configured strategy name. Matching ignores case.
func ParseName(s string) (Name, error) {
	for _, n := range Names() {
		if strings.EqualFold(string(n), strings.TrimSpace(s)) {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ports.ErrUnknownStrategy, s)
}

func (n Name) String() string { return string(n) }

// Config groups the parameters of all strategies.
type Config struct {
	Keltner   indicators.KeltnerConfig
	RSI       indicators.RSIConfig
	Crossover indicators.CrossoverConfig
}

// DefaultConfig returns the parameters used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Keltner:   indicators.DefaultKeltnerConfig(),
		RSI:       indicators.DefaultRSIConfig(),
		Crossover: indicators.DefaultCrossoverConfig(),
	}
}

// Validate checks only the parameters that name depends on.
func (c Config) Validate(name Name) error {
	switch name {
	case KeltnerChannel:
		return c.Keltner.Validate()
	case MovingAverageCrossover:
		return c.Crossover.Validate()
	case RSIOverboughtOversold:
		if c.RSI.Oversold >= c.RSI.Overbought {
			return fmt.Errorf("rsi oversold %.2f must be below overbought %.2f", c.RSI.Oversold, c.RSI.Overbought)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ports.ErrUnknownStrategy, string(name))
	}
}

// RequiredDataPoints is the shortest valid prefix name can evaluate.
func (c Config) RequiredDataPoints(name Name) int {
	switch name {
	case KeltnerChannel:
		return c.Keltner.RequiredDataPoints()
	case MovingAverageCrossover:
		return c.Crossover.LongLength
	default:
		return 2
	}
}

// Result is the outcome of evaluating a strategy on one prefix.
// Keltner is set for the channel strategy; the others set Signal directly.
type Result struct {
	Signal  domain.Signal
	Keltner *indicators.KeltnerResult
	RSI     float64
}

// Action converts the result into a decision for a candle closing at price.
func (r Result) Action(price float64) domain.Signal {
	if r.Keltner != nil {
		switch {
		case price < r.Keltner.BottomMin:
			return domain.SignalBuy
		case price > r.Keltner.TopMax:
			return domain.SignalSell
		default:
			return domain.SignalHold
		}
	}
	if r.Signal == "" {
		return domain.SignalHold
	}
	return r.Signal
}

// Reason describes why Action returned a buy or sell.
func (r Result) Reason(name Name, action domain.Signal) string {
	switch name {
	case KeltnerChannel:
		if action == domain.SignalBuy {
			return "Keltner Channel below bottomMin"
		}
		return "Keltner Channel above topMax"
	case RSIOverboughtOversold:
		if action == domain.SignalBuy {
			return fmt.Sprintf("RSI %.2f below oversold", r.RSI)
		}
		return fmt.Sprintf("RSI %.2f above overbought", r.RSI)
	default:
		if action == domain.SignalBuy {
			return "short MA above long MA"
		}
		return "short MA below long MA"
	}
}

// Fields renders the result for structured logs.
func (r Result) Fields() map[string]interface{} {
	fields := map[string]interface{}{"signal": string(r.Signal)}
	if r.Keltner != nil {
		fields["mid"] = r.Keltner.Mid
		fields["topMax"] = r.Keltner.TopMax
		fields["bottomMin"] = r.Keltner.BottomMin
	}
	if r.RSI != 0 {
		fields["rsi"] = r.RSI
	}
	return fields
}

// Evaluator computes strategy results from a full candle prefix.
type Evaluator struct {
	cfg Config
}

// NewEvaluator creates an evaluator for cfg.
func NewEvaluator(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Config returns the evaluator's parameters.
func (e *Evaluator) Config() Config { return e.cfg }

// Evaluate recomputes name over prefix from scratch.
// Indicator failures are wrapped in ports.ErrIndicatorEvaluation and keep their cause.
func (e *Evaluator) Evaluate(name Name, prefix []domain.Candle) (Result, error) {
	var (
		res Result
		err error
	)
	switch name {
	case KeltnerChannel:
		var k indicators.KeltnerResult
		k, err = indicators.Keltner(prefix, e.cfg.Keltner)
		res.Keltner = &k
	case MovingAverageCrossover:
		res.Signal, err = indicators.MovingAverageCrossover(prefix, e.cfg.Crossover)
	case RSIOverboughtOversold:
		res.RSI, err = indicators.RSI(prefix)
		res.Signal = indicators.RSISignal(res.RSI, e.cfg.RSI)
	default:
		return Result{}, fmt.Errorf("%w: %q", ports.ErrUnknownStrategy, string(name))
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ports.ErrIndicatorEvaluation, name, err)
	}
	return res, nil
}

// Tracker is the incremental counterpart of Evaluate.
// After Update has seen a prefix, Value matches Evaluate on that prefix.
type Tracker interface {
	Update(c domain.Candle)
	Value() (Result, error)
}

// NewTracker returns an empty tracker for name.
func (e *Evaluator) NewTracker(name Name) (Tracker, error) {
	switch name {
	case KeltnerChannel:
		t, err := indicators.NewKeltnerTracker(e.cfg.Keltner)
		if err != nil {
			return nil, err
		}
		return &keltnerTracker{t: t}, nil
	case MovingAverageCrossover:
		t, err := indicators.NewCrossoverTracker(e.cfg.Crossover)
		if err != nil {
			return nil, err
		}
		return &crossoverTracker{t: t}, nil
	case RSIOverboughtOversold:
		return &rsiTracker{t: indicators.NewRSITracker(), cfg: e.cfg.RSI}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ports.ErrUnknownStrategy, string(name))
	}
}

type keltnerTracker struct{ t *indicators.KeltnerTracker }

func (k *keltnerTracker) Update(c domain.Candle) { k.t.Update(c) }

func (k *keltnerTracker) Value() (Result, error) {
	v, err := k.t.Value()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ports.ErrIndicatorEvaluation, KeltnerChannel, err)
	}
	return Result{Keltner: &v}, nil
}

type crossoverTracker struct{ t *indicators.CrossoverTracker }

func (m *crossoverTracker) Update(c domain.Candle) { m.t.Update(c) }

func (m *crossoverTracker) Value() (Result, error) {
	sig, err := m.t.Value()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ports.ErrIndicatorEvaluation, MovingAverageCrossover, err)
	}
	return Result{Signal: sig}, nil
}

type rsiTracker struct {
	t   *indicators.RSITracker
	cfg indicators.RSIConfig
}

func (r *rsiTracker) Update(c domain.Candle) { r.t.Update(c) }

func (r *rsiTracker) Value() (Result, error) {
	v, err := r.t.Value()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ports.ErrIndicatorEvaluation, RSIOverboughtOversold, err)
	}
	return Result{Signal: indicators.RSISignal(v, r.cfg), RSI: v}, nil
}
