package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"backdash/internal/domain"
)

func TestParquetStorePaths(t *testing.T) {
	ps := NewParquetStore("/data")

	if got, want := ps.runDir("abc123"), filepath.Join("/data", "runs", "abc123"); got != want {
		t.Errorf("runDir = %s, want %s", got, want)
	}
	if got, want := ps.runDir("../etc"), filepath.Join("/data", "runs", "etc"); got != want {
		t.Errorf("runDir escapes data dir: %s", got)
	}
	if got, want := ps.barPath("nq", "30m"), filepath.Join("/data", "ohlc", "NQ", "30m.parquet"); got != want {
		t.Errorf("barPath = %s, want %s", got, want)
	}
}

func sampleResults() *domain.RunResults {
	return &domain.RunResults{
		RunID:    "abc123",
		Strategy: "RSI v2",
		Trades: []domain.Trade{
			{ID: 1, Date: "2024-09-02", EntryTime: "14:30", ExitTime: "15:00", Direction: domain.Long, Entry: 19000, Exit: 19005, Points: 5, PnLUSD: 100, Result: "TP"},
			{ID: 2, Date: "2024-09-03", EntryTime: "10:00", ExitTime: "10:30", Direction: domain.Short, Entry: 19010, Exit: 19012.5, Points: -2.5, PnLUSD: -50, Result: "SL"},
		},
		EquityCurve:   []float64{100, 50},
		DrawdownCurve: []float64{0, -50},
	}
}

func TestParquetStoreWriteReadRun(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()
	res := sampleResults()

	dir, err := ps.WriteRun(ctx, res)
	if err != nil {
		t.Fatalf("WriteRun: %v", err)
	}
	if filepath.Base(dir) != "abc123" {
		t.Errorf("WriteRun dir = %s", dir)
	}

	trades, err := ps.ReadRunTrades(ctx, "abc123")
	if err != nil {
		t.Fatalf("ReadRunTrades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("ReadRunTrades returned %d trades, want 2", len(trades))
	}
	if trades[1] != res.Trades[1] {
		t.Errorf("trade 2 = %+v, want %+v", trades[1], res.Trades[1])
	}

	eq, dd, err := ps.ReadRunCurves(ctx, "abc123")
	if err != nil {
		t.Fatalf("ReadRunCurves: %v", err)
	}
	if len(eq) != 2 || eq[1] != 50 || dd[1] != -50 {
		t.Errorf("curves = %v / %v", eq, dd)
	}

	ids, err := ps.ListRuns(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "abc123" {
		t.Errorf("ListRuns = %v, %v", ids, err)
	}

	if _, err := ps.ReadRunTrades(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadRunTrades(missing) err = %v, want ErrNotFound", err)
	}
	if _, err := ps.WriteRun(ctx, &domain.RunResults{}); err == nil {
		t.Error("WriteRun without run id succeeded")
	}
}

func TestLoadRunFromExport(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()
	if _, err := ps.WriteRun(ctx, sampleResults()); err != nil {
		t.Fatal(err)
	}

	res, err := LoadRun(ctx, ps, "abc123")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if res.RunID != "abc123" || len(res.Trades) != 2 {
		t.Fatalf("LoadRun = %+v", res)
	}
	m := res.Metrics
	if m.TotalTrades != 2 || m.WinningTrades != 1 || m.LosingTrades != 1 || m.NetPnL != 50 {
		t.Errorf("metrics = %+v, want 2 trades, 1 win, net 50", m)
	}
	if len(res.EquityCurve) != 2 || res.EquityCurve[1] != 50 || res.DrawdownCurve[1] != -50 {
		t.Errorf("curves = %v / %v", res.EquityCurve, res.DrawdownCurve)
	}

	if _, err := LoadRun(ctx, ps, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadRun(missing) err = %v, want ErrNotFound", err)
	}
}

func TestParquetStoreMergeOHLC(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	first := &domain.OHLCData{Symbol: "NQ", Timeframe: "30m", Data: []domain.OHLCBar{
		{Timestamp: "2024-09-30T14:00:00", Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
		{Timestamp: "2024-09-30T14:30:00", Open: 1.5, High: 2, Low: 1, Close: 1.8, Volume: 120},
	}}
	if _, err := ps.WriteOHLC(ctx, first); err != nil {
		t.Fatalf("WriteOHLC (first): %v", err)
	}

	// Overlapping bar should replace, new bar should append.
	second := &domain.OHLCData{Symbol: "NQ", Timeframe: "30m", Data: []domain.OHLCBar{
		{Timestamp: "2024-09-30T14:30:00", Open: 1.5, High: 2.2, Low: 1, Close: 2.1, Volume: 130},
		{Timestamp: "2024-09-30T15:00:00", Open: 2.1, High: 2.5, Low: 2, Close: 2.4, Volume: 90},
		{Timestamp: "garbage"},
	}}
	if _, err := ps.WriteOHLC(ctx, second); err != nil {
		t.Fatalf("WriteOHLC (second): %v", err)
	}

	bars, err := ps.ReadOHLC(ctx, "nq", "30m", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ReadOHLC: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("ReadOHLC returned %d bars after merge, want 3", len(bars))
	}
	if bars[1].Close != 2.1 {
		t.Errorf("merged bar Close = %v, want 2.1", bars[1].Close)
	}
	if bars[2].Timestamp != "2024-09-30T15:00:00" {
		t.Errorf("last bar Timestamp = %s", bars[2].Timestamp)
	}

	start := time.Date(2024, 9, 30, 14, 15, 0, 0, time.UTC)
	bars, _ = ps.ReadOHLC(ctx, "NQ", "30m", start, time.Time{})
	if len(bars) != 2 {
		t.Errorf("ReadOHLC from %v returned %d bars, want 2", start, len(bars))
	}
}

func TestSQLiteStoreSubscriptions(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q) returned error: %v", dbPath, err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	}()

	if v, err := store.SchemaVersion(ctx); err != nil || v != len(migrations) {
		t.Errorf("SchemaVersion = %d, %v; want %d", v, err, len(migrations))
	}

	if _, err := store.GetSubscription(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSubscription(unknown) err = %v, want ErrNotFound", err)
	}

	if err := store.SetSubscription(ctx, &Subscription{UserID: "alice", Tier: "free"}); err != nil {
		t.Fatalf("SetSubscription: %v", err)
	}
	if err := store.SetSubscription(ctx, &Subscription{UserID: "alice", Tier: "pro", Products: []string{"ninja"}}); err != nil {
		t.Fatalf("SetSubscription (upgrade): %v", err)
	}
	if err := store.SetSubscription(ctx, &Subscription{UserID: "bob", Tier: "premium"}); err != nil {
		t.Fatalf("SetSubscription: %v", err)
	}

	sub, err := store.GetSubscription(ctx, "alice")
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if sub.Tier != "pro" || len(sub.Products) != 1 || sub.Products[0] != "ninja" {
		t.Errorf("alice = %+v", sub)
	}
	if sub.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}

	all, err := store.ListSubscriptions(ctx)
	if err != nil {
		t.Fatalf("ListSubscriptions: %v", err)
	}
	if len(all) != 2 || all[0].UserID != "alice" || all[1].UserID != "bob" {
		t.Errorf("ListSubscriptions = %+v", all)
	}

	if err := store.SetSubscription(ctx, &Subscription{Tier: "pro"}); err == nil {
		t.Error("SetSubscription without user id succeeded")
	}
}

func TestSQLiteStoreReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	s1.SetSubscription(ctx, &Subscription{UserID: "carol", Tier: "premium"})
	s1.Close()

	s2, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	sub, err := s2.GetSubscription(ctx, "carol")
	if err != nil || sub.Tier != "premium" {
		t.Errorf("after reopen = %+v, %v", sub, err)
	}
}
