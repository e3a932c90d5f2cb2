package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"backdash/internal/dashboard"
	"backdash/internal/domain"
)

var _ ExportStore = (*ParquetStore)(nil)

// ParquetStore implements ExportStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// TradeRecord is the Parquet schema for one backtest trade.
type TradeRecord struct {
	RunID     string  `parquet:"run_id"`
	TradeID   int64   `parquet:"trade_id"`
	Date      string  `parquet:"date"`
	EntryTime string  `parquet:"entry_time"`
	ExitTime  string  `parquet:"exit_time"`
	Direction string  `parquet:"direction"`
	Entry     float64 `parquet:"entry"`
	Exit      float64 `parquet:"exit"`
	Points    float64 `parquet:"points"`
	PnLUSD    float64 `parquet:"pnl_usd"`
	Result    string  `parquet:"result"`
}

// CurveRecord is the Parquet schema for one point of a run's curves.
type CurveRecord struct {
	RunID    string  `parquet:"run_id"`
	Index    int64   `parquet:"index"`
	Equity   float64 `parquet:"equity"`
	Drawdown float64 `parquet:"drawdown"`
}

// BarRecord is the Parquet schema for OHLC bars.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timeframe string  `parquet:"timeframe"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// WriteRun writes the trades and curves of a run, replacing any earlier
// export of the same run:
//
//	<DataDir>/runs/<run_id>/trades.parquet
//	<DataDir>/runs/<run_id>/curves.parquet
func (s *ParquetStore) WriteRun(_ context.Context, res *domain.RunResults) (string, error) {
	if res == nil || res.RunID == "" {
		return "", fmt.Errorf("export: results without run id")
	}

	trades := make([]TradeRecord, len(res.Trades))
	for i, t := range res.Trades {
		trades[i] = TradeRecord{
			RunID:     res.RunID,
			TradeID:   int64(t.ID),
			Date:      t.Date,
			EntryTime: t.EntryTime,
			ExitTime:  t.ExitTime,
			Direction: string(t.Direction),
			Entry:     t.Entry,
			Exit:      t.Exit,
			Points:    t.Points,
			PnLUSD:    t.PnLUSD,
			Result:    t.Result,
		}
	}

	curves := make([]CurveRecord, len(res.EquityCurve))
	for i, eq := range res.EquityCurve {
		curves[i] = CurveRecord{RunID: res.RunID, Index: int64(i), Equity: eq}
		if i < len(res.DrawdownCurve) {
			curves[i].Drawdown = res.DrawdownCurve[i]
		}
	}

	dir := s.runDir(res.RunID)
	if err := writeParquetFile(filepath.Join(dir, "trades.parquet"), trades); err != nil {
		return "", fmt.Errorf("writing trades for %s: %w", res.RunID, err)
	}
	if err := writeParquetFile(filepath.Join(dir, "curves.parquet"), curves); err != nil {
		return "", fmt.Errorf("writing curves for %s: %w", res.RunID, err)
	}
	return dir, nil
}

// ReadRunTrades reads the exported trades of a run.
func (s *ParquetStore) ReadRunTrades(_ context.Context, runID string) ([]domain.Trade, error) {
	records, err := readParquetFile[TradeRecord](filepath.Join(s.runDir(runID), "trades.parquet"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	trades := make([]domain.Trade, len(records))
	for i, r := range records {
		trades[i] = domain.Trade{
			ID:        int(r.TradeID),
			Date:      r.Date,
			EntryTime: r.EntryTime,
			ExitTime:  r.ExitTime,
			Direction: domain.Direction(r.Direction),
			Entry:     r.Entry,
			Exit:      r.Exit,
			Points:    r.Points,
			PnLUSD:    r.PnLUSD,
			Result:    r.Result,
		}
	}
	return trades, nil
}

// ReadRunCurves reads the exported equity and drawdown curves of a run.
func (s *ParquetStore) ReadRunCurves(_ context.Context, runID string) (equity, drawdown []float64, err error) {
	records, err := readParquetFile[CurveRecord](filepath.Join(s.runDir(runID), "curves.parquet"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Index < records[j].Index })
	equity = make([]float64, len(records))
	drawdown = make([]float64, len(records))
	for i, r := range records {
		equity[i] = r.Equity
		drawdown[i] = r.Drawdown
	}
	return equity, drawdown, nil
}

// ListRuns lists the runs that have been exported.
func (s *ParquetStore) ListRuns(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "runs"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ---------------------------------------------------------------------------
// OHLC
// ---------------------------------------------------------------------------

// WriteOHLC merges bars into <DataDir>/ohlc/<SYMBOL>/<timeframe>.parquet.
// Bars whose timestamp cannot be parsed are skipped.
func (s *ParquetStore) WriteOHLC(_ context.Context, data *domain.OHLCData) (string, error) {
	if data == nil || data.Symbol == "" {
		return "", fmt.Errorf("export: bars without symbol")
	}
	records := make([]BarRecord, 0, len(data.Data))
	for _, b := range data.Data {
		ts, ok := dashboard.ParseTimestamp(b.Timestamp)
		if !ok {
			continue
		}
		records = append(records, BarRecord{
			Symbol:    data.Symbol,
			Timeframe: data.Timeframe,
			Timestamp: ts.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}

	path := s.barPath(data.Symbol, data.Timeframe)
	existing, _ := readParquetFile[BarRecord](path)
	if err := writeParquetFile(path, mergeBarRecords(existing, records)); err != nil {
		return "", fmt.Errorf("writing bars for %s/%s: %w", data.Symbol, data.Timeframe, err)
	}
	return path, nil
}

// ReadOHLC reads bars within [start, end]. A zero start or end leaves that
// side open.
func (s *ParquetStore) ReadOHLC(_ context.Context, symbol, timeframe string, start, end time.Time) ([]domain.OHLCBar, error) {
	records, err := readParquetFile[BarRecord](s.barPath(symbol, timeframe))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var bars []domain.OHLCBar
	for _, r := range records {
		ts := time.UnixMilli(r.Timestamp).UTC()
		if !start.IsZero() && ts.Before(start) {
			continue
		}
		if !end.IsZero() && ts.After(end) {
			continue
		}
		bars = append(bars, domain.OHLCBar{
			Timestamp: ts.Format("2006-01-02T15:04:05"),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	return bars, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

func (s *ParquetStore) runDir(runID string) string {
	return filepath.Join(s.DataDir, "runs", filepath.Base(runID))
}

// barPath returns <dataDir>/ohlc/<SYMBOL>/<timeframe>.parquet.
func (s *ParquetStore) barPath(symbol, timeframe string) string {
	if timeframe == "" {
		timeframe = "unknown"
	}
	return filepath.Join(s.DataDir, "ohlc", strings.ToUpper(symbol), filepath.Base(timeframe)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates bars by timestamp, preferring incoming
// records, and sorts them by time.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
