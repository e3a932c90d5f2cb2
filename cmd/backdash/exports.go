package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"backdash/internal/dashboard"
	"backdash/internal/store"
)

func cmdExports(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("exports", "[-trades N] [-bars SYMBOL/TF [-days N]] [run id]")
	trades := fs.Int("trades", 10, "number of trades to list for a run")
	bars := fs.String("bars", "", "show exported OHLC bars, e.g. NQ/30m")
	days := fs.Int("days", 0, "with -bars, only the last N days (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return errors.New("expected at most one run id")
	}
	ps := store.NewParquetStore(a.cfg.Storage.ExportDir)

	if *bars != "" {
		return a.printExportedBars(ctx, ps, *bars, *days)
	}
	if id := fs.Arg(0); id != "" {
		res, err := store.LoadRun(ctx, ps, id)
		if err != nil {
			return err
		}
		a.printResults(res, *trades)
		return nil
	}

	ids, err := ps.ListRuns(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		a.printf("No exports in %s\n", ps.DataDir)
		return nil
	}
	a.printf("%-10s %-28s %7s %12s %9s\n", "RUN", "ID", "TRADES", "NET P&L", "WIN RATE")
	for _, id := range ids {
		res, err := store.LoadRun(ctx, ps, id)
		if err != nil {
			a.log.Warn("skipping unreadable export", "run_id", id, "error", err)
			continue
		}
		m := res.Metrics
		a.printf("%-10s %-28s %7d %12s %9s\n", dashboard.ShortID(id), truncate(id, 28), m.TotalTrades,
			dashboard.FormatPnL(m.NetPnL), dashboard.FormatPercent(m.WinRate))
	}
	return nil
}

func (a *app) printExportedBars(ctx context.Context, ps *store.ParquetStore, spec string, days int) error {
	symbol, timeframe, ok := strings.Cut(spec, "/")
	if !ok || symbol == "" || timeframe == "" {
		return errors.New("-bars wants SYMBOL/TIMEFRAME, e.g. NQ/30m")
	}
	var start time.Time
	if days > 0 {
		start = time.Now().UTC().AddDate(0, 0, -days)
	}
	list, err := ps.ReadOHLC(ctx, symbol, timeframe, start, time.Time{})
	if err != nil {
		return err
	}
	a.printf("%s %s: %s exported bars\n", strings.ToUpper(symbol), timeframe, dashboard.FormatCount(len(list)))
	if len(list) == 0 {
		return nil
	}
	closes := make([]float64, len(list))
	for i, b := range list {
		closes[i] = b.Close
	}
	first, last := list[0], list[len(list)-1]
	a.printf("  %s  %s\n", first.Timestamp, last.Timestamp)
	a.printf("  %s\n", dashboard.Sparkline(closes, 60))
	a.printf("  open %.2f  close %.2f\n", first.Open, last.Close)
	return nil
}
