package utils

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"candleBacktest/internal/strategy/analytics"
	"candleBacktest/internal/strategy/backtesting"
	"candleBacktest/internal/strategy/optimization"
)

const reportTimeLayout = "2006-01-02T15:04:05.000Z"

// money renders v with two fixed decimals, avoiding float formatting noise.
func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func price(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(4)
}

func pct(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + "%"
}

func millis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(reportTimeLayout)
}

// RenderReport writes a human readable summary of one backtest. perf may be nil.
func RenderReport(w io.Writer, r *backtesting.Report, perf *analytics.PerformanceMetrics) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Run\t%s\n", r.RunID)
	fmt.Fprintf(tw, "Symbol\t%s (%s)\n", r.Symbol, r.Interval)
	fmt.Fprintf(tw, "Strategy\t%s [%s]\n", r.Strategy, r.Mode)
	fmt.Fprintf(tw, "Period\t%s -> %s\n", millis(r.InitialTime), millis(r.FinalTime))
	fmt.Fprintf(tw, "Candles\t%d (placeholders %d, failed steps %d)\n", r.CandleCount, r.PlaceholderCount, r.FailedSteps)
	fmt.Fprintf(tw, "Initial Balance\t%s\n", money(r.InitialBalance))
	fmt.Fprintf(tw, "Final Balance\t%s\n", money(r.FinalBalance))
	fmt.Fprintf(tw, "Profit\t%s\n", money(r.Profit))
	fmt.Fprintf(tw, "Buy and Hold Profit\t%s\n", money(r.BuyAndHoldProfit))
	fmt.Fprintf(tw, "Initial Price\t%s\n", price(r.InitialPrice))
	fmt.Fprintf(tw, "Final Price\t%s\n", price(r.FinalPrice))
	fmt.Fprintf(tw, "Trades\t%d\n", r.TradeCount)
	fmt.Fprintf(tw, "Fees (maker/taker)\t%s / %s (not applied)\n", pct(r.FeeMaker), pct(r.FeeTaker))
	fmt.Fprintf(tw, "Slippage\t%s (not applied)\n", pct(r.Slippage))

	if perf != nil {
		fmt.Fprintf(tw, "Round Trips\t%d (won %d, lost %d)\n", perf.TotalTrades, perf.WinningTrades, perf.LosingTrades)
		fmt.Fprintf(tw, "Win Rate\t%s\n", pct(perf.WinRate*100))
		fmt.Fprintf(tw, "Max Drawdown\t%s\n", pct(perf.MaxDrawdown*100))
		fmt.Fprintf(tw, "Return on Investment\t%s\n", pct(perf.ReturnOnInvestment*100))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Trades) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tSide\tTime\tPrice\tBalance\tPosition\t")
	for i, t := range r.Trades {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t\n",
			i+1, t.Side, millis(t.Time), price(t.Price), money(t.Balance),
			decimal.NewFromFloat(t.Position).StringFixed(8))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if perf == nil || len(perf.MonthlyReturns) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Month\tProfit\t")
	for _, m := range perf.GetMonthlyReturns() {
		fmt.Fprintf(tw, "%s\t%s\t\n", m.Month.Format("2006-01"), money(m.Return))
	}
	return tw.Flush()
}

// RenderSweep writes one line per optimization result, best first.
func RenderSweep(w io.Writer, results []optimization.OptimizationResult, paramNames []string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', tabwriter.AlignRight)
	for _, name := range paramNames {
		fmt.Fprintf(tw, "%s\t", name)
	}
	fmt.Fprintln(tw, "Trades\tProfit\tBuyAndHold\tWinRate\tMaxDD\tScore\t")

	for _, res := range results {
		for _, name := range paramNames {
			fmt.Fprintf(tw, "%s\t", decimal.NewFromFloat(res.Parameters[name]).String())
		}
		winRate, maxDD := 0.0, 0.0
		if res.Metrics != nil {
			winRate, maxDD = res.Metrics.WinRate*100, res.Metrics.MaxDrawdown*100
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t\n",
			res.Report.TradeCount, money(res.Report.Profit), money(res.Report.BuyAndHoldProfit),
			pct(winRate), pct(maxDD), money(res.Score))
	}
	return tw.Flush()
}
