// Package backtesting replays a candle series through a strategy with an
// all-in/all-out position and reports the outcome against buy-and-hold.
package backtesting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"candleBacktest/internal/domain"
	"candleBacktest/internal/ports"
	"candleBacktest/internal/strategy"

	"github.com/google/uuid"
)

// Mode selects how indicator values are produced at each step.
type Mode string

const (
	// ModeIncremental feeds each candle to a strategy tracker once.
	ModeIncremental Mode = "incremental"
	// ModeRecompute re-evaluates the whole prefix at every step.
	ModeRecompute Mode = "recompute"
)

// ParseMode resolves a configured evaluation mode. Empty means incremental.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeIncremental:
		return ModeIncremental, nil
	case ModeRecompute:
		return ModeRecompute, nil
	default:
		return "", fmt.Errorf("unknown evaluation mode %q", s)
	}
}

// Config holds configuration for a backtest run.
type Config struct {
	Strategy       strategy.Name
	Params         strategy.Config
	InitialBalance float64
	Mode           Mode
	Symbol         string
	Interval       string

	// Carried into the report. The simulation does not charge them.
	FeeMaker float64
	FeeTaker float64
	Slippage float64
}

// Report is the outcome of one backtest run.
type Report struct {
	RunID            string
	Symbol           string
	Interval         string
	Strategy         strategy.Name
	Mode             Mode
	InitialBalance   float64
	FinalBalance     float64
	Profit           float64
	BuyAndHoldProfit float64
	InitialPrice     float64
	FinalPrice       float64
	InitialTime      int64
	FinalTime        int64
	TradeCount       int
	Trades           []domain.TradeEvent
	CandleCount      int
	PlaceholderCount int
	FailedSteps      int
	FeeMaker         float64
	FeeTaker         float64
	Slippage         float64
}

// state is the FLAT/LONG account. Exactly one of balance and position is positive.
type state struct {
	balance  float64
	position float64
}

func (s state) flat() bool { return s.position == 0 }

// Simulator runs backtests for one configuration. A Simulator holds no
// per-run state, so one value may serve concurrent Run calls.
type Simulator struct {
	cfg       Config
	evaluator *strategy.Evaluator
	logger    ports.Logger
	recorder  ports.Recorder
}

// NewSimulator validates cfg and creates a Simulator. A nil recorder discards events.
func NewSimulator(cfg Config, logger ports.Logger, recorder ports.Recorder) (*Simulator, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for simulator")
	}
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	if cfg.InitialBalance <= 0 {
		return nil, fmt.Errorf("initial balance must be positive, got %v", cfg.InitialBalance)
	}
	if err := cfg.Params.Validate(cfg.Strategy); err != nil {
		return nil, err
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode

	return &Simulator{
		cfg:       cfg,
		evaluator: strategy.NewEvaluator(cfg.Params),
		logger:    logger,
		recorder:  recorder,
	}, nil
}

// Config returns the validated configuration.
func (s *Simulator) Config() Config { return s.cfg }

// stepFunc evaluates the strategy with c appended to the valid prefix.
type stepFunc func(c domain.Candle) (strategy.Result, error)

func (s *Simulator) newStepFunc() (stepFunc, error) {
	if s.cfg.Mode == ModeRecompute {
		var prefix []domain.Candle
		return func(c domain.Candle) (strategy.Result, error) {
			prefix = append(prefix, c)
			return s.evaluator.Evaluate(s.cfg.Strategy, prefix)
		}, nil
	}

	tracker, err := s.evaluator.NewTracker(s.cfg.Strategy)
	if err != nil {
		return nil, err
	}
	return func(c domain.Candle) (strategy.Result, error) {
		tracker.Update(c)
		return tracker.Value()
	}, nil
}

// Run simulates the strategy over candles in order. Each step only sees
// candles up to and including the current one.
func (s *Simulator) Run(ctx context.Context, candles []domain.Candle) (*Report, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("backtest %s: %w", s.cfg.Symbol, ports.ErrDataUnavailable)
	}

	step, err := s.newStepFunc()
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:          uuid.NewString(),
		Symbol:         s.cfg.Symbol,
		Interval:       s.cfg.Interval,
		Strategy:       s.cfg.Strategy,
		Mode:           s.cfg.Mode,
		InitialBalance: s.cfg.InitialBalance,
		FeeMaker:       s.cfg.FeeMaker,
		FeeTaker:       s.cfg.FeeTaker,
		Slippage:       s.cfg.Slippage,
	}
	st := state{balance: s.cfg.InitialBalance}
	var first, last *domain.Candle

	s.logger.Info(ctx, "Starting backtest", map[string]interface{}{
		"runID":    report.RunID,
		"symbol":   s.cfg.Symbol,
		"strategy": s.cfg.Strategy.String(),
		"mode":     string(s.cfg.Mode),
		"candles":  len(candles),
	})

	for i := range candles {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest interrupted at candle %d: %w: %w", i, ports.ErrContextCanceled, err)
		}

		c := candles[i]
		report.CandleCount++
		s.recorder.CandleProcessed()

		if !c.Tradable() {
			report.PlaceholderCount++
			s.recorder.PlaceholderSkipped()
			s.logger.Debug(ctx, "Skipping placeholder candle", map[string]interface{}{"index": i})
			continue
		}
		if first == nil {
			first = &candles[i]
		}
		last = &candles[i]

		res, err := step(c)
		if err != nil {
			report.FailedSteps++
			s.recorder.StepFailed(s.cfg.Strategy.String())
			fields := map[string]interface{}{"index": i, "error": err.Error()}
			if errors.Is(err, ports.ErrInsufficientData) {
				s.logger.Debug(ctx, "Not enough candles for strategy evaluation", fields)
			} else {
				s.logger.Warn(ctx, "Strategy evaluation failed, skipping step", fields)
			}
			continue
		}

		switch action := res.Action(c.Close); {
		case action == domain.SignalBuy && st.flat():
			st.position = st.balance / c.Close
			st.balance = 0
			report.Trades = append(report.Trades, s.trade(ctx, domain.Buy, i, c, st, res, action))
		case action == domain.SignalSell && !st.flat():
			st.balance = st.position * c.Close
			st.position = 0
			report.Trades = append(report.Trades, s.trade(ctx, domain.Sell, i, c, st, res, action))
		}
	}

	if first == nil {
		return nil, fmt.Errorf("backtest %s: no valid candles among %d: %w", s.cfg.Symbol, len(candles), ports.ErrDataUnavailable)
	}

	report.TradeCount = len(report.Trades)
	report.FinalBalance = st.balance + st.position*last.Close
	report.Profit = report.FinalBalance - s.cfg.InitialBalance
	report.InitialPrice = first.Close
	report.FinalPrice = last.Close
	report.InitialTime = first.CloseTime
	report.FinalTime = last.CloseTime
	report.BuyAndHoldProfit = (last.Close - first.Close) / first.Close * s.cfg.InitialBalance

	s.logger.Info(ctx, "Backtest finished", map[string]interface{}{
		"runID":        report.RunID,
		"from":         first.OpenAt().Format(time.RFC3339),
		"to":           last.CloseAt().Format(time.RFC3339),
		"finalBalance": report.FinalBalance,
		"profit":       report.Profit,
		"buyAndHold":   report.BuyAndHoldProfit,
		"trades":       report.TradeCount,
		"failedSteps":  report.FailedSteps,
		"placeholders": report.PlaceholderCount,
	})
	return report, nil
}

func (s *Simulator) trade(ctx context.Context, side domain.OrderSide, index int, c domain.Candle, st state, res strategy.Result, action domain.Signal) domain.TradeEvent {
	reason := res.Reason(s.cfg.Strategy, action)
	event := domain.TradeEvent{
		Side:     side,
		Price:    c.Close,
		Time:     c.CloseTime,
		Index:    index,
		Balance:  st.balance,
		Position: st.position,
		Reason:   reason,
	}
	verb := "Buy"
	if side == domain.Sell {
		verb = "Sell"
	}
	fields := res.Fields()
	fields["balance"] = st.balance
	fields["position"] = st.position
	fields["index"] = index
	s.logger.Info(ctx, fmt.Sprintf("%s at %v on %s (Signal: %s)", verb, c.Close, event.ExecutedAt().Format("2006-01-02T15:04:05.000Z"), reason), fields)
	s.recorder.TradeExecuted(side)
	return event
}
