package mockapi

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"backdash/internal/dashboard"
	"backdash/internal/domain"
)

// DefaultStrategies is the catalog served when Options.Strategies is nil.
func DefaultStrategies() []domain.Strategy {
	return []domain.Strategy{
		{
			ID:          "rsi-v2",
			Name:        "RSI Reversal v2",
			Description: "Mean reversion on RSI extremes with a fixed 1R target",
			Timeframe:   "15m",
			RiskModel:   "fixed_1r",
			Parameters:  domain.Params{"period": domain.NumberParam(14), "oversold": domain.NumberParam(30), "overbought": domain.NumberParam(70)},
			ScriptPath:  "strategies/BACKTEST_RSI_v2.py",
			Category:    "mean-reversion",
			Tags:        []string{"nq", "rsi", "intraday"},
		},
		{
			ID:          "supertrend_scalein",
			Name:        "SuperTrend ScaleIn",
			Description: "SuperTrend trend following with progressive scale-in and no cut",
			Timeframe:   "30m",
			RiskModel:   "scale_in",
			Parameters:  domain.Params{"atr_period": domain.NumberParam(10), "multiplier": domain.NumberParam(3)},
			ScriptPath:  "strategies/BACKTEST_SuperTrend_ScaleIn_NoCut.py",
			Category:    "trend",
			Tags:        []string{"nq", "supertrend", "scale-in"},
		},
		{
			ID:          "30sec_1r",
			Name:        "30sec 1R",
			Description: "Opening-range breakout on 30 second candles, 1R target",
			Timeframe:   "30s",
			RiskModel:   "fixed_1r",
			Parameters:  domain.Params{"range_minutes": domain.NumberParam(15), "session": domain.StringParam("US")},
			ScriptPath:  "strategies/BACKTEST_30sec_1R_PARAM.py",
			Category:    "breakout",
			Tags:        []string{"nq", "orb"},
		},
	}
}

// DefaultDataRange is the market data span the mock backend reports.
var DefaultDataRange = domain.DataRange{StartDate: "2024-01-02", EndDate: "2024-09-30", TotalDays: 272}

func seedFor(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// generateResults produces a deterministic backtest outcome for a run.
func generateResults(runID string, strat domain.Strategy, dr domain.DataRange) *domain.RunResults {
	rng := rand.New(rand.NewPCG(seedFor(runID), seedFor(strat.ID)))

	start, err := time.Parse("2006-01-02", dr.StartDate)
	if err != nil {
		start = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	}
	span := max(dr.TotalDays, 1)

	n := 20 + rng.IntN(40)
	trades := make([]domain.Trade, 0, n)
	for i := 0; i < n; i++ {
		day := start.AddDate(0, 0, rng.IntN(span))
		for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = day.AddDate(0, 0, 1)
		}
		entry := time.Date(day.Year(), day.Month(), day.Day(), 13+rng.IntN(8), rng.IntN(2)*30, 0, 0, time.UTC)
		exit := entry.Add(time.Duration(5+rng.IntN(55)) * time.Minute)

		dir := domain.Long
		sign := 1.0
		if rng.IntN(2) == 1 {
			dir, sign = domain.Short, -1
		}
		price := 18000 + math.Round(rng.Float64()*2000*4)/4

		var result string
		var points float64
		switch r := rng.Float64(); {
		case r < 0.55:
			result, points = "TP", 20
		case r < 0.9:
			result, points = "SL", -20
		default:
			result, points = "EOD", math.Round((rng.Float64()*20-10)*4)/4
		}

		trades = append(trades, domain.Trade{
			Date:      entry.Format("2006-01-02"),
			EntryTime: entry.Format("15:04"),
			ExitTime:  exit.Format("15:04"),
			Direction: dir,
			Entry:     price,
			Exit:      price + sign*points,
			Points:    points,
			PnLUSD:    points * 20,
			Result:    result,
		})
	}
	sortTrades(trades)
	for i := range trades {
		trades[i].ID = i + 1
	}

	m, c := dashboard.ComputeMetrics(trades)
	return &domain.RunResults{
		RunID:         runID,
		Strategy:      strat.Name,
		Metrics:       m,
		EquityCurve:   c.Equity,
		DrawdownCurve: c.Drawdown,
		Trades:        trades,
		Files:         []string{fmt.Sprintf("trades_%s.csv", runID)},
	}
}

func sortTrades(trades []domain.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Date+" "+trades[i].EntryTime < trades[j].Date+" "+trades[j].EntryTime
	})
}

// generateOHLC produces days of 30 minute candles ending at the data range's
// last day.
func generateOHLC(days int, dr domain.DataRange) domain.OHLCData {
	end, err := time.Parse("2006-01-02", dr.EndDate)
	if err != nil {
		end = time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC)
	}
	end = end.Add(24 * time.Hour)
	rng := rand.New(rand.NewPCG(42, uint64(days)))

	bars := make([]domain.OHLCBar, 0, days*48)
	price := 19500.0
	for ts := end.AddDate(0, 0, -days); ts.Before(end); ts = ts.Add(30 * time.Minute) {
		if ts.Weekday() == time.Saturday || ts.Weekday() == time.Sunday {
			continue
		}
		op := price
		cl := op + math.Round((rng.NormFloat64()*15)*4)/4
		bars = append(bars, domain.OHLCBar{
			Timestamp: ts.Format("2006-01-02T15:04:05"),
			Open:      op,
			High:      math.Max(op, cl) + math.Round(rng.Float64()*8*4)/4,
			Low:       math.Min(op, cl) - math.Round(rng.Float64()*8*4)/4,
			Close:     cl,
			Volume:    float64(500 + rng.IntN(4500)),
		})
		price = cl
	}
	return domain.OHLCData{
		Data:      bars,
		Symbol:    "NQ",
		Timeframe: "30m",
		Period:    fmt.Sprintf("%d days", days),
		TotalBars: len(bars),
	}
}

// ninjaExport is an imported NinjaTrader trade list.
type ninjaExport struct {
	meta    domain.NinjaStrategy
	columns []string
	rows    [][]string
}

var ninjaColumns = []string{"Trade number", "Instrument", "Market pos.", "Entry time", "Exit time", "Profit"}

func defaultNinja() []*ninjaExport {
	mk := func(id, name, market string, seed uint64) *ninjaExport {
		rng := rand.New(rand.NewPCG(seed, seed))
		e := &ninjaExport{columns: ninjaColumns}
		start := time.Date(2024, 3, 4, 15, 30, 0, 0, time.UTC)
		for i := 0; i < 25; i++ {
			entry := start.AddDate(0, 0, i)
			pos := "Long"
			if rng.IntN(2) == 1 {
				pos = "Short"
			}
			profit := math.Round((rng.Float64()*900-350)*100) / 100
			e.rows = append(e.rows, []string{
				fmt.Sprint(i + 1), market + " 09-24", pos,
				entry.Format("2006-01-02 15:04:05"),
				entry.Add(45 * time.Minute).Format("2006-01-02 15:04:05"),
				fmt.Sprintf("%.2f", profit),
			})
		}
		e.meta = domain.NinjaStrategy{ID: id, Name: name, Filename: id + ".csv", Market: market, Stats: e.stats()}
		return e
	}
	return []*ninjaExport{
		mk("nq_supertrend", "NQ SuperTrend", "NQ", 7),
		mk("es_breakout", "ES Breakout", "ES", 11),
	}
}

func (e *ninjaExport) profits() []float64 {
	out := make([]float64, 0, len(e.rows))
	for _, r := range e.rows {
		var p float64
		fmt.Sscanf(r[len(r)-1], "%g", &p)
		out = append(out, p)
	}
	return out
}

func (e *ninjaExport) stats() domain.NinjaStats {
	var s domain.NinjaStats
	trades := make([]domain.Trade, 0, len(e.rows))
	for _, p := range e.profits() {
		trades = append(trades, domain.Trade{PnLUSD: p})
		s.TotalTrades++
		if p > 0 {
			s.WinningTrades++
		} else {
			s.LosingTrades++
		}
	}
	s.TotalPnL = dashboard.SumPnL(trades)
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades) * 100
	}
	return s
}

func (e *ninjaExport) data() domain.NinjaStrategyData {
	d := domain.NinjaStrategyData{
		ID:      e.meta.ID,
		Name:    e.meta.Name,
		Stats:   e.meta.Stats,
		Columns: e.columns,
	}
	var equity float64
	for _, r := range e.rows {
		row := make(map[string]any, len(e.columns))
		for j, col := range e.columns {
			row[col] = r[j]
		}
		d.Trades = append(d.Trades, row)
	}
	for i, p := range e.profits() {
		equity += p
		d.EquityCurve = append(d.EquityCurve, domain.EquityPoint{Trade: i + 1, Equity: math.Round(equity*100) / 100})
	}
	return d
}
