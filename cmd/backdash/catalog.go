package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"backdash/internal/dashboard"
	"backdash/internal/store"
	"backdash/internal/util"
	"backdash/pkg/backdash"
)

func cmdHealth(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("health", "[-wait N]")
	wait := fs.Int("wait", 1, "attempts before giving up")
	if err := fs.Parse(args); err != nil {
		return err
	}
	err := util.Retry(ctx, *wait, time.Second, func() error {
		err := a.client.Health(ctx)
		if err != nil && backdash.StatusCode(err) >= 400 && backdash.StatusCode(err) < 500 {
			return util.Permanent(err)
		}
		return err
	})
	if err != nil {
		return err
	}
	a.printf("backend %s: ok\n", a.client.BaseURL())
	return nil
}

func cmdStrategies(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("strategies", "[-category C] [-q text]")
	category := fs.String("category", "", "only strategies in this category")
	query := fs.String("q", "", "search name, id, description and tags")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resp, err := a.client.ListStrategies(ctx)
	if err != nil {
		return err
	}
	list := dashboard.FilterStrategies(resp.Strategies, *category, *query)

	a.printf("%-24s %-28s %-10s %-8s %s\n", "ID", "NAME", "CATEGORY", "TF", "TAGS")
	a.printf("%s\n", strings.Repeat("-", 90))
	for _, s := range list {
		a.printf("%-24s %-28s %-10s %-8s %s\n", s.ID, s.Name, s.Category, s.Timeframe, strings.Join(s.Tags, ","))
	}
	a.printf("\n%d of %d strategies", len(list), len(resp.Strategies))
	if cats := dashboard.Categories(resp.Strategies); len(cats) > 0 {
		a.printf(" (categories: %s)", strings.Join(cats, ", "))
	}
	a.printf("\n")
	if st := resp.Stats; st != nil {
		a.printf("Runs: %s  Trades: %s  Avg win rate: %s\n",
			dashboard.FormatCount(st.TotalRuns), dashboard.FormatCount(st.TotalTrades), dashboard.FormatPercent(st.AvgWinRate))
	}
	return nil
}

func cmdStrategy(ctx context.Context, a *app, args []string) error {
	id, err := oneArg(newFlagSet("strategy", "<id>"), args, "strategy id")
	if err != nil {
		return err
	}
	s, err := a.client.GetStrategy(ctx, id)
	if err != nil {
		return err
	}

	a.printf("%s (%s)\n", s.Name, s.ID)
	if s.Description != "" {
		a.printf("  %s\n", s.Description)
	}
	a.printf("  Category:   %s\n", s.Category)
	a.printf("  Timeframe:  %s\n", s.Timeframe)
	a.printf("  Risk model: %s\n", s.RiskModel)
	if len(s.Tags) > 0 {
		a.printf("  Tags:       %s\n", strings.Join(s.Tags, ", "))
	}
	a.printf("  Parameters:\n")
	for _, k := range s.Parameters.Keys() {
		v := s.Parameters[k]
		a.printf("    %-20s %-10s (%s)\n", k, v, v.Kind())
	}
	return nil
}

func cmdRange(ctx context.Context, a *app, args []string) error {
	if err := newFlagSet("range", "").Parse(args); err != nil {
		return err
	}
	dr, err := a.client.GetDataRange(ctx)
	if err != nil {
		return err
	}
	a.printf("Data from %s to %s (%d days)\n", dashboard.FormatDate(dr.StartDate), dashboard.FormatDate(dr.EndDate), dr.TotalDays)
	return nil
}

func cmdOHLC(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("ohlc", "[-days N] [-export]")
	days := fs.Int("days", 7, "days of bars to fetch")
	export := fs.Bool("export", false, "merge the bars into the local parquet store")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := a.client.GetOHLCData(ctx, *days)
	if err != nil {
		return err
	}
	a.printf("%s %s, %s: %s bars\n", data.Symbol, data.Timeframe, data.Period, dashboard.FormatCount(data.TotalBars))
	if n := len(data.Data); n > 0 {
		closes := make([]float64, n)
		for i, b := range data.Data {
			closes[i] = b.Close
		}
		first, last := data.Data[0], data.Data[n-1]
		a.printf("  %s  %s\n", first.Timestamp, last.Timestamp)
		a.printf("  %s\n", dashboard.Sparkline(closes, 60))
		a.printf("  open %.2f  close %.2f\n", first.Open, last.Close)
	}

	if *export {
		path, err := store.NewParquetStore(a.cfg.Storage.ExportDir).WriteOHLC(ctx, data)
		if err != nil {
			return err
		}
		a.printf("Bars merged into %s\n", path)
	}
	return nil
}

func cmdNinja(ctx context.Context, a *app, args []string) error {
	if err := newFlagSet("ninja", "").Parse(args); err != nil {
		return err
	}
	list, err := a.client.ListNinjaStrategies(ctx)
	if err != nil {
		return err
	}
	a.printf("%-24s %-28s %-8s %8s %12s %8s\n", "ID", "NAME", "MARKET", "TRADES", "P&L", "WIN%")
	a.printf("%s\n", strings.Repeat("-", 94))
	for _, s := range list.Strategies {
		if s.Error != "" {
			a.printf("%-24s %-28s %-8s  error: %s\n", s.ID, s.Name, s.Market, s.Error)
			continue
		}
		a.printf("%-24s %-28s %-8s %8d %12s %8s\n", s.ID, s.Name, s.Market,
			s.Stats.TotalTrades, dashboard.FormatPnL(s.Stats.TotalPnL), dashboard.FormatPercent(s.Stats.WinRate))
	}
	if len(list.Markets) > 0 {
		a.printf("\nMarkets: %s\n", strings.Join(list.Markets, ", "))
	}
	return nil
}

func cmdNinjaData(ctx context.Context, a *app, args []string) error {
	id, err := oneArg(newFlagSet("ninja-data", "<id>"), args, "strategy id")
	if err != nil {
		return err
	}
	d, err := a.client.GetNinjaStrategyData(ctx, id)
	if err != nil {
		return err
	}

	a.printf("%s (%s)\n", d.Name, d.ID)
	a.printf("  Trades: %d (%d won, %d lost)  Win rate: %s  P&L: %s\n",
		d.Stats.TotalTrades, d.Stats.WinningTrades, d.Stats.LosingTrades,
		dashboard.FormatPercent(d.Stats.WinRate), dashboard.FormatPnL(d.Stats.TotalPnL))
	if len(d.EquityCurve) > 0 {
		eq := make([]float64, len(d.EquityCurve))
		for i, p := range d.EquityCurve {
			eq[i] = p.Equity
		}
		a.printf("  Equity: %s\n", dashboard.Sparkline(eq, 60))
	}
	if len(d.Columns) > 0 {
		a.printf("  Columns: %s\n", strings.Join(d.Columns, ", "))
	}
	return nil
}

func cmdNinjaDownload(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("ninja-download", "[-o file] <id>")
	output := fs.String("o", "", "output file (default <id>.csv, - for stdout)")
	id, err := oneArg(fs, args, "strategy id")
	if err != nil {
		return err
	}

	var w io.Writer = a.out
	path := *output
	if path == "" {
		path = id + ".csv"
	}
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	n, err := a.client.DownloadNinjaStrategy(ctx, id, w)
	if err != nil {
		if path != "-" {
			os.Remove(path)
		}
		return err
	}
	if path != "-" {
		fmt.Fprintf(os.Stderr, "Wrote %d bytes to %s\n", n, path)
	}
	return nil
}
