// Package dashboard provides the view-model shared by the CLI, the terminal
// dashboard and the mock backend: metric aggregation, heatmaps, status badges,
// catalog filtering and number formatting.
package dashboard

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"backdash/internal/domain"
)

// profitFactorCap stands in for an infinite profit factor (no losses).
const profitFactorCap = 999.99

// Closed reports whether a trade result counts toward metrics. Entries that
// never closed (no TP/SL/EOD) are ignored.
func Closed(t domain.Trade) bool {
	switch strings.ToUpper(t.Result) {
	case "TP", "SL", "EOD", "WIN", "LOSS", "TRUE", "FALSE":
		return true
	}
	return false
}

// Curves holds the cumulative equity and drawdown series of a trade list.
type Curves struct {
	Equity   []float64
	Drawdown []float64
}

// ComputeMetrics aggregates closed trades into run metrics and curves. Sums
// are accumulated in decimal so large trade lists do not drift.
func ComputeMetrics(trades []domain.Trade) (domain.RunMetrics, Curves) {
	var m domain.RunMetrics
	var c Curves
	net, profit, loss := decimal.Zero, decimal.Zero, decimal.Zero
	peak, maxDD := decimal.Zero, decimal.Zero
	started := false

	for _, t := range trades {
		if !Closed(t) {
			continue
		}
		pnl := decimal.NewFromFloat(t.PnLUSD)
		m.TotalTrades++
		if t.IsWin() {
			m.WinningTrades++
			profit = profit.Add(pnl)
		} else {
			m.LosingTrades++
			loss = loss.Sub(pnl)
		}

		net = net.Add(pnl)
		if !started || net.GreaterThan(peak) {
			peak = net
			started = true
		}
		dd := net.Sub(peak)
		if dd.LessThan(maxDD) {
			maxDD = dd
		}
		c.Equity = append(c.Equity, net.InexactFloat64())
		c.Drawdown = append(c.Drawdown, dd.InexactFloat64())
	}

	if m.TotalTrades == 0 {
		return m, c
	}

	n := decimal.NewFromInt(int64(m.TotalTrades))
	m.NetPnL = net.InexactFloat64()
	m.GrossProfit = profit.InexactFloat64()
	m.GrossLoss = loss.InexactFloat64()
	m.MaxDrawdown = maxDD.InexactFloat64()
	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	m.Expectancy = net.Div(n).InexactFloat64()

	if m.WinningTrades > 0 {
		m.AvgWin = profit.Div(decimal.NewFromInt(int64(m.WinningTrades))).InexactFloat64()
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = loss.Neg().Div(decimal.NewFromInt(int64(m.LosingTrades))).InexactFloat64()
	}

	switch {
	case loss.IsPositive():
		m.ProfitFactor = profit.Div(loss).InexactFloat64()
	case profit.IsPositive():
		m.ProfitFactor = profitFactorCap
	}
	return m, c
}

// SumPnL totals trade P&L exactly.
func SumPnL(trades []domain.Trade) float64 {
	sum := decimal.Zero
	for _, t := range trades {
		sum = sum.Add(decimal.NewFromFloat(t.PnLUSD))
	}
	return sum.InexactFloat64()
}

// KPI is one headline figure of the results page.
type KPI struct {
	Title    string
	Value    string
	Positive bool // drives green/red colouring
}

// KPIs returns the headline cards for a results page.
func KPIs(m domain.RunMetrics) []KPI {
	return []KPI{
		{Title: "Net P&L", Value: FormatPnL(m.NetPnL), Positive: m.NetPnL >= 0},
		{Title: "Win Rate", Value: FormatPercent(m.WinRate), Positive: m.WinRate >= 0.5},
		{Title: "Profit Factor", Value: FormatProfitFactor(m.ProfitFactor), Positive: m.ProfitFactor >= 1},
		{Title: "Max Drawdown", Value: FormatUSD(m.MaxDrawdown), Positive: m.MaxDrawdown == 0},
		{Title: "Trades", Value: FormatInt(m.TotalTrades), Positive: true},
		{Title: "Expectancy", Value: FormatPnL(m.Expectancy), Positive: m.Expectancy >= 0},
	}
}

// Slice is one segment of a two-way split chart.
type Slice struct {
	Name  string
	Value float64
	Share float64 // fraction of the total, 0 when the total is 0
}

// WinLossSplit returns the winning/losing trade counts as pie segments.
func WinLossSplit(m domain.RunMetrics) [2]Slice {
	return split("Gagnants", float64(m.WinningTrades), "Perdants", float64(m.LosingTrades))
}

// ProfitLossBars returns gross profit against absolute gross loss.
func ProfitLossBars(m domain.RunMetrics) [2]Slice {
	return split("Profit Brut", m.GrossProfit, "Perte Brute", math.Abs(m.GrossLoss))
}

func split(aName string, a float64, bName string, b float64) [2]Slice {
	out := [2]Slice{{Name: aName, Value: a}, {Name: bName, Value: b}}
	if total := a + b; total > 0 {
		out[0].Share = a / total
		out[1].Share = b / total
	}
	return out
}

// Bar renders a horizontal bar of the given share within width cells.
func Bar(share float64, width int) string {
	if width <= 0 {
		return ""
	}
	n := int(math.Round(share * float64(width)))
	if n < 0 {
		n = 0
	}
	if n > width {
		n = width
	}
	return strings.Repeat("█", n) + strings.Repeat("░", width-n)
}

// Sparkline renders a series as a single line of block characters.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}
	ticks := []rune("▁▂▃▄▅▆▇█")
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	var b strings.Builder
	for i := 0; i < width && i < len(values); i++ {
		// Sample evenly when the series is longer than the line.
		idx := i
		if len(values) > width && width > 1 {
			idx = i * (len(values) - 1) / (width - 1)
		}
		pos := 0
		if hi > lo {
			pos = int((values[idx] - lo) / (hi - lo) * float64(len(ticks)-1))
		}
		b.WriteRune(ticks[pos])
	}
	return b.String()
}
