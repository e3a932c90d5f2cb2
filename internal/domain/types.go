// Package domain defines the core types shared across backdash: strategies,
// backtest runs, results, market data, imported NinjaTrader exports, and the
// analyst chat payloads. Field names follow the backend's JSON wire format.
package domain

import (
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Strategies
// ---------------------------------------------------------------------------

// Strategy is a catalog entry describing a backtestable trading strategy.
type Strategy struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Timeframe   string   `json:"timeframe"`
	RiskModel   string   `json:"risk_model"`
	Parameters  Params   `json:"parameters"`
	ScriptPath  string   `json:"script_path"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
}

// CatalogStats summarises the strategy catalog and the runs made against it.
type CatalogStats struct {
	TotalStrategies int     `json:"total_strategies"`
	TotalRuns       int     `json:"total_runs"`
	TotalTrades     int     `json:"total_trades"`
	AvgWinRate      float64 `json:"avg_winrate"`
}

// StrategyListResponse is returned by GET /api/strategies.
type StrategyListResponse struct {
	Strategies []Strategy    `json:"strategies"`
	Stats      *CatalogStats `json:"stats,omitempty"`
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// RunState is the backend's lifecycle status string for a run.
type RunState string

const (
	RunPending   RunState = "pending"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
)

// Terminal reports whether no further status change is expected.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// CreateRunRequest is the body of POST /api/runs.
type CreateRunRequest struct {
	StrategyID string `json:"strategy_id"`
	Parameters Params `json:"parameters"`
	Name       string `json:"name,omitempty"`
}

// RunResponse is returned when a run is created.
type RunResponse struct {
	RunID     string   `json:"run_id"`
	Status    RunState `json:"status"`
	Message   string   `json:"message"`
	Name      string   `json:"name,omitempty"`
	StartedAt string   `json:"started_at,omitempty"`
}

// RunInfo is one entry of the run history.
type RunInfo struct {
	RunID           string   `json:"run_id"`
	Status          RunState `json:"status"`
	Message         string   `json:"message"`
	Name            string   `json:"name,omitempty"`
	StartedAt       string   `json:"started_at,omitempty"`
	CompletedAt     string   `json:"completed_at,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
}

// DisplayName returns the user-given name, or the run id when unnamed.
func (r RunInfo) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.RunID
}

// RunListResponse is returned by GET /api/runs.
type RunListResponse struct {
	Runs  []RunInfo `json:"runs"`
	Total int       `json:"total"`
}

// Contains reports whether the list holds a run with the given id.
func (l *RunListResponse) Contains(runID string) bool {
	for _, r := range l.Runs {
		if r.RunID == runID {
			return true
		}
	}
	return false
}

// RunStatus is the polled status of a run. Progress is in [0,1].
type RunStatus struct {
	RunID       string   `json:"run_id"`
	Status      RunState `json:"status"`
	Progress    float64  `json:"progress"`
	Message     string   `json:"message"`
	Name        string   `json:"name,omitempty"`
	Logs        []string `json:"logs"`
	StartedAt   string   `json:"started_at,omitempty"`
	CompletedAt string   `json:"completed_at,omitempty"`
}

// DeleteRunResponse is returned by DELETE /api/runs/{id}.
type DeleteRunResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// RunMetrics are the aggregate statistics of a completed backtest.
type RunMetrics struct {
	TotalTrades   int     `json:"total_trades"`
	WinRate       float64 `json:"win_rate"`
	NetPnL        float64 `json:"net_pnl"`
	ProfitFactor  float64 `json:"profit_factor"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	AvgWin        float64 `json:"avg_win"`
	AvgLoss       float64 `json:"avg_loss"`
	Expectancy    float64 `json:"expectancy"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	GrossProfit   float64 `json:"gross_profit"`
	GrossLoss     float64 `json:"gross_loss"`
}

// Consistent reports whether winning and losing trades add up to the total.
// The backend does not guarantee it; callers decide what to do when it fails.
func (m RunMetrics) Consistent() bool {
	return m.WinningTrades+m.LosingTrades == m.TotalTrades
}

// Direction is the side of a trade.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Trade is one closed position of a backtest.
type Trade struct {
	ID        int       `json:"id"`
	Date      string    `json:"date"`
	EntryTime string    `json:"entry_time"`
	ExitTime  string    `json:"exit_time"`
	Direction Direction `json:"direction"`
	Entry     float64   `json:"entry"`
	Exit      float64   `json:"exit"`
	Points    float64   `json:"points"`
	PnLUSD    float64   `json:"pnl_usd"`
	Result    string    `json:"result"`
}

// IsWin interprets the boolean-equivalent result field. Take-profit exits and
// explicit wins count; anything else is a loss.
func (t Trade) IsWin() bool {
	switch strings.ToUpper(strings.TrimSpace(t.Result)) {
	case "TP", "WIN", "TRUE", "1":
		return true
	}
	return false
}

// EntryAt parses the trade's date and entry time. The second return value is
// false when either field is malformed.
func (t Trade) EntryAt() (time.Time, bool) {
	ts, err := time.Parse("2006-01-02 15:04:05", t.Date+" "+normalizeClock(t.EntryTime))
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func normalizeClock(s string) string {
	s = strings.TrimSpace(s)
	if strings.Count(s, ":") == 1 {
		return s + ":00"
	}
	return s
}

// RunResults is the full output of a completed run.
type RunResults struct {
	RunID         string     `json:"run_id"`
	Strategy      string     `json:"strategy"`
	Metrics       RunMetrics `json:"metrics"`
	EquityCurve   []float64  `json:"equity_curve"`
	DrawdownCurve []float64  `json:"drawdown_curve"`
	Trades        []Trade    `json:"trades"`
	Files         []string   `json:"files"`
}

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// DataRange is the span of market data available to backtests.
type DataRange struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	TotalDays int    `json:"total_days"`
}

// OHLCBar is a single candle.
type OHLCBar struct {
	Timestamp string  `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// OHLCData is returned by GET /api/runs/ohlc-data.
type OHLCData struct {
	Data      []OHLCBar `json:"data"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Period    string    `json:"period"`
	TotalBars int       `json:"total_bars"`
}

// HeatmapCell aggregates the trades entered on one weekday and hour.
type HeatmapCell struct {
	Day     string  `json:"day"`
	Hour    int     `json:"hour"`
	Value   float64 `json:"value"`
	Trades  int     `json:"trades"`
	WinRate float64 `json:"winRate"`
}

// HeatmapResponse is returned by GET /api/runs/{id}/heatmap.
type HeatmapResponse struct {
	RunID   string        `json:"run_id"`
	Heatmap []HeatmapCell `json:"heatmap"`
}

// ---------------------------------------------------------------------------
// NinjaTrader imports
// ---------------------------------------------------------------------------

// NinjaStats summarises an imported NinjaTrader trade export.
type NinjaStats struct {
	TotalTrades   int     `json:"total_trades"`
	TotalPnL      float64 `json:"total_pnl"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"winrate"`
}

// NinjaStrategy is a catalog entry for an imported export.
type NinjaStrategy struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Filename string     `json:"filename"`
	Market   string     `json:"market"`
	Stats    NinjaStats `json:"stats"`
	Error    string     `json:"error,omitempty"`
}

// NinjaStrategyList is returned by GET /api/ninja-strategies.
type NinjaStrategyList struct {
	Strategies []NinjaStrategy `json:"strategies"`
	Markets    []string        `json:"markets"`
}

// EquityPoint is the cumulative equity after a given trade number.
type EquityPoint struct {
	Trade  int     `json:"trade"`
	Equity float64 `json:"equity"`
}

// NinjaStrategyData is the detailed view of an imported export. Trades keep
// the export's own columns, so rows are left as open JSON objects.
type NinjaStrategyData struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Stats       NinjaStats       `json:"stats"`
	Trades      []map[string]any `json:"trades"`
	Columns     []string         `json:"columns"`
	EquityCurve []EquityPoint    `json:"equity_curve"`
}

// ---------------------------------------------------------------------------
// Analyst
// ---------------------------------------------------------------------------

// ChatRequest is the body of POST /api/ai/chat.
type ChatRequest struct {
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
	RunID   string         `json:"run_id,omitempty"`
}

// ChatResponse is the analyst's answer. Response is markdown.
type ChatResponse struct {
	Response string         `json:"response"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AnalystRun is a run the analyst can discuss.
type AnalystRun struct {
	RunID     string `json:"run_id"`
	Strategy  string `json:"strategy"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

// AnalystRunList is returned by GET /api/ai/runs.
type AnalystRunList struct {
	Runs []AnalystRun `json:"runs"`
}
