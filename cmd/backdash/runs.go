package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"backdash/internal/compare"
	"backdash/internal/dashboard"
	"backdash/internal/domain"
	"backdash/internal/lifecycle"
	"backdash/internal/relay"
	"backdash/internal/results"
	"backdash/internal/store"
)

// paramFlags collects repeated -p key=value overrides.
type paramFlags domain.Params

func (p paramFlags) String() string {
	parts := make([]string, 0, len(p))
	for _, k := range domain.Params(p).Keys() {
		parts = append(parts, k+"="+p[k].String())
	}
	return strings.Join(parts, ",")
}

func (p paramFlags) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	p[strings.TrimSpace(k)] = domain.ParseParam(v)
	return nil
}

func cmdRuns(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("runs", "[-limit N] [-sort recent|name|status|duration]")
	limit := fs.Int("limit", 20, "maximum number of runs")
	sortBy := fs.String("sort", "recent", "sort order")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mode := -1
	for m := 0; m < dashboard.SortModeCount; m++ {
		if dashboard.SortModeLabel(m) == *sortBy {
			mode = m
		}
	}
	if mode < 0 {
		return &domain.ValidationError{Field: "sort", Reason: fmt.Sprintf("unknown order %q", *sortBy)}
	}

	resp, err := a.client.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	runs := resp.Runs
	dashboard.SortRuns(runs, mode)

	a.printf("%-10s %-30s %-12s %-18s %10s\n", "RUN", "NAME", "STATUS", "STARTED", "DURATION")
	a.printf("%s\n", strings.Repeat("-", 84))
	for _, r := range runs {
		dur := "-"
		if r.DurationSeconds != nil {
			dur = dashboard.FormatDuration(*r.DurationSeconds)
		}
		a.printf("%-10s %-30s %-12s %-18s %10s\n", compare.Label(r.RunID), truncate(r.DisplayName(), 30),
			dashboard.StatusBadge(r.Status).Text(), dashboard.FormatAgo(r.StartedAt), dur)
	}
	c := dashboard.CountRuns(runs)
	a.printf("\n%d shown of %d  (running %d, completed %d, failed %d)\n", c.Total, resp.Total, c.Running, c.Completed, c.Failed)
	return nil
}

func cmdRun(ctx context.Context, a *app, args []string) error {
	overrides := paramFlags{}
	fs := newFlagSet("run", "-strategy ID [-p key=value ...] [-name N] [-period P] [-start D -end D] [-export]")
	strategyID := fs.String("strategy", "", "strategy id")
	fs.Var(overrides, "p", "parameter override, repeatable")
	name := fs.String("name", "", "display name of the run")
	periodFlag := fs.String("period", "all", "all, last_month, experimental or custom")
	start := fs.String("start", "", "custom period start, YYYY-MM-DD")
	end := fs.String("end", "", "custom period end, YYYY-MM-DD")
	export := fs.Bool("export", false, "write trades and curves to the parquet store")
	serve := fs.Bool("relay", a.cfg.Relay.Enabled, "serve progress to backdash watch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *strategyID == "" {
		fs.Usage()
		return &domain.ValidationError{Field: "strategy", Reason: "required"}
	}

	params, err := a.buildParams(ctx, *strategyID, domain.Params(overrides), *periodFlag, *start, *end)
	if err != nil {
		return err
	}

	ctrl := lifecycle.New(a.client,
		lifecycle.WithInterval(a.cfg.Polling.Interval),
		lifecycle.WithLogger(a.log),
	)
	defer ctrl.Dispose()

	if *serve {
		lis, err := relay.Listen(a.cfg.Relay.Addr, ctrl, a.log)
		if err != nil {
			return fmt.Errorf("starting relay: %w", err)
		}
		defer lis.Stop(2 * time.Second)
		a.printf("Relay on %s\n", lis.Addr())
	}

	subID, events := ctrl.Subscribe(16)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		a.follow(events)
	}()

	if _, err := ctrl.Submit(ctx, *strategyID, params, *name); err != nil {
		ctrl.Unsubscribe(subID)
		<-printed
		return err
	}
	snap, err := ctrl.Wait(ctx)
	ctrl.Unsubscribe(subID)
	<-printed
	if err != nil {
		return err
	}
	for _, v := range ctrl.Violations() {
		a.log.Warn("backend changed a finished run", "run_id", v.RunID, "had", v.Had, "got", v.Got)
	}
	if snap.State == lifecycle.Failed {
		return fmt.Errorf("run %s failed: %s", snap.RunID, snap.Message)
	}

	res, err := results.NewFetcher(a.client).FetchCompleted(ctx, snap)
	if err != nil {
		return err
	}
	a.printResults(res, 10)

	if *export {
		dir, err := store.NewParquetStore(a.cfg.Storage.ExportDir).WriteRun(ctx, res)
		if err != nil {
			return err
		}
		a.printf("\nExported to %s\n", dir)
	}
	return nil
}

// buildParams merges the strategy defaults, the overrides and the period
// dates, in increasing priority.
func (a *app) buildParams(ctx context.Context, strategyID string, overrides domain.Params, periodName, start, end string) (domain.Params, error) {
	period, err := lifecycle.ParsePeriod(periodName)
	if err != nil {
		return nil, err
	}
	strat, err := a.client.GetStrategy(ctx, strategyID)
	if err != nil {
		return nil, err
	}

	var dr *domain.DataRange
	if period == lifecycle.PeriodLastMonth || period == lifecycle.PeriodExperimental {
		if dr, err = a.client.GetDataRange(ctx); err != nil {
			a.log.Warn("data range unavailable, using fallback window", "error", err)
			dr = nil
		}
	}
	dates, err := period.Resolve(dr, start, end)
	if err != nil {
		return nil, err
	}
	if len(dates) > 0 {
		a.printf("Period: %s (%s .. %s)\n", period.Label(), dates["START_DATE"], dates["END_DATE"])
	}
	return strat.Parameters.Merge(overrides).Merge(dates), nil
}

// follow prints snapshots until events is closed.
func (a *app) follow(events <-chan lifecycle.Snapshot) {
	var logs int
	for s := range events {
		switch s.State {
		case lifecycle.Creating:
			a.printf("Creating run...\n")
		case lifecycle.Idle:
			if s.Err != nil {
				a.printf("Creation failed\n")
			}
		default:
			a.printf("[%s] %-10s %s %3.0f%%  %s\n", s.ObservedAt.Format("15:04:05"), compare.Label(s.RunID),
				dashboard.StatusBadge(s.Status).Text(), s.Progress*100, s.Message)
		}
		// Logs accumulate on the backend; print only the new lines.
		if len(s.Logs) > logs {
			for _, line := range s.Logs[logs:] {
				a.printf("    %s\n", line)
			}
			logs = len(s.Logs)
		}
	}
}

func cmdStatus(ctx context.Context, a *app, args []string) error {
	id, err := oneArg(newFlagSet("status", "<run id>"), args, "run id")
	if err != nil {
		return err
	}
	st, err := a.client.GetRunStatus(ctx, id)
	if err != nil {
		return err
	}
	a.printf("%s  %s\n", st.RunID, dashboard.StatusBadge(st.Status).Render(st.Message, 0))
	if st.Name != "" {
		a.printf("  Name:     %s\n", st.Name)
	}
	a.printf("  Progress: %s %.0f%%\n", dashboard.Bar(st.Progress, 30), st.Progress*100)
	if st.StartedAt != "" {
		a.printf("  Started:  %s\n", dashboard.FormatDate(st.StartedAt))
	}
	if st.CompletedAt != "" {
		a.printf("  Finished: %s\n", dashboard.FormatDate(st.CompletedAt))
	}
	for _, line := range st.Logs {
		a.printf("    %s\n", line)
	}
	return nil
}

func cmdResults(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("results", "[-trades N] [-export] <run id>")
	trades := fs.Int("trades", 10, "number of trades to list")
	export := fs.Bool("export", false, "write trades and curves to the parquet store")
	id, err := oneArg(fs, args, "run id")
	if err != nil {
		return err
	}
	res, err := results.NewFetcher(a.client).Fetch(ctx, id)
	if err != nil {
		return err
	}
	a.printResults(res, *trades)
	if *export {
		dir, err := store.NewParquetStore(a.cfg.Storage.ExportDir).WriteRun(ctx, res)
		if err != nil {
			return err
		}
		a.printf("\nExported to %s\n", dir)
	}
	return nil
}

func (a *app) printResults(res *domain.RunResults, maxTrades int) {
	m := res.Metrics
	a.printf("\n%s  (%s)\n", res.Strategy, res.RunID)
	for _, k := range dashboard.KPIs(m) {
		a.printf("  %-14s %s\n", k.Title, k.Value)
	}
	if !m.Consistent() {
		a.log.Warn("metrics do not add up", "run_id", res.RunID,
			"total", m.TotalTrades, "winning", m.WinningTrades, "losing", m.LosingTrades)
	}

	for _, s := range dashboard.WinLossSplit(m) {
		a.printf("  %-12s %s %5.1f%%\n", s.Name, dashboard.Bar(s.Share, 30), s.Share*100)
	}
	for _, s := range dashboard.ProfitLossBars(m) {
		a.printf("  %-12s %s %s\n", s.Name, dashboard.Bar(s.Share, 30), dashboard.FormatUSD(s.Value))
	}
	if len(res.EquityCurve) > 0 {
		a.printf("  Equity    %s\n", dashboard.Sparkline(res.EquityCurve, 60))
	}
	if len(res.DrawdownCurve) > 0 {
		a.printf("  Drawdown  %s\n", dashboard.Sparkline(res.DrawdownCurve, 60))
	}

	if maxTrades <= 0 || len(res.Trades) == 0 {
		return
	}
	a.printf("\n  %-4s %-10s %-6s %-6s %-6s %10s %10s %8s %10s %s\n",
		"#", "DATE", "IN", "OUT", "SIDE", "ENTRY", "EXIT", "POINTS", "P&L", "RESULT")
	for i, t := range res.Trades {
		if i == maxTrades {
			a.printf("  ... %d more\n", len(res.Trades)-maxTrades)
			break
		}
		a.printf("  %-4d %-10s %-6s %-6s %-6s %10.2f %10.2f %8.2f %10s %s\n",
			t.ID, t.Date, t.EntryTime, t.ExitTime, t.Direction, t.Entry, t.Exit, t.Points, dashboard.FormatPnL(t.PnLUSD), t.Result)
	}
	if files := res.Files; len(files) > 0 {
		a.printf("\n  Files: %s\n", strings.Join(files, ", "))
	}
}

func cmdDelete(ctx context.Context, a *app, args []string) error {
	id, err := oneArg(newFlagSet("delete", "<run id>"), args, "run id")
	if err != nil {
		return err
	}
	resp, err := a.client.DeleteRun(ctx, id)
	if err != nil {
		return err
	}
	msg := resp.Message
	if msg == "" {
		msg = "deleted"
	}
	a.printf("%s: %s\n", id, msg)
	return nil
}

func cmdHeatmap(ctx context.Context, a *app, args []string) error {
	id, err := oneArg(newFlagSet("heatmap", "<run id>"), args, "run id")
	if err != nil {
		return err
	}
	resp, err := a.client.GetRunHeatmap(ctx, id)
	if err != nil {
		return err
	}
	grid := dashboard.NewHeatmapGrid(resp.Heatmap)
	if len(grid.Days) == 0 {
		a.printf("No trades.\n")
		return nil
	}

	a.printf("%-4s", "")
	for _, h := range grid.Hours {
		a.printf(" %7dh", h)
	}
	a.printf("\n")
	for _, d := range grid.Days {
		a.printf("%-4s", d)
		for _, h := range grid.Hours {
			if c, ok := grid.Cell(d, h); ok {
				a.printf(" %8s", dashboard.FormatPnL(c.Value))
			} else {
				a.printf(" %8s", ".")
			}
		}
		a.printf("\n")
	}
	if best, ok := grid.Best(); ok {
		a.printf("\nBest slot: %s %dh, %s mean over %d trades, win rate %s\n",
			best.Day, best.Hour, dashboard.FormatPnL(best.Value), best.Trades, dashboard.FormatPercent(best.WinRate))
	}
	return nil
}

func cmdCompare(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("compare", "<run id>...")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return &domain.ValidationError{Field: "runs", Reason: "at least one run id required"}
	}

	var sel compare.Selection
	for _, id := range fs.Args() {
		if sel.Contains(id) {
			continue
		}
		if sel.Len() >= a.cfg.Compare.MaxSelected || !sel.Toggle(id) {
			a.printf("Skipping %s: at most %d runs\n", id, a.cfg.Compare.MaxSelected)
		}
	}
	ids := sel.IDs()

	loader := compare.NewLoader(a.client, a.log)
	if err := loader.Load(ctx, ids); err != nil {
		return err
	}
	loaded := loader.Results()
	for id, err := range loader.Failed() {
		a.printf("%s unavailable: %s\n", compare.Label(id), describe(err))
	}
	if len(loaded) == 0 {
		return fmt.Errorf("no results available to compare")
	}

	a.printf("\n%-16s", "")
	for _, id := range ids {
		a.printf(" %12s", compare.Label(id))
	}
	a.printf("\n")
	for _, row := range compare.MetricRows(ids, loaded) {
		a.printf("%-16s", row.Metric)
		for _, cell := range row.Cells {
			a.printf(" %12s", cell)
		}
		a.printf("\n")
	}

	points := compare.Align(ids, loaded)
	a.printf("\nEquity (%d points)\n", len(points))
	for _, id := range ids {
		if loaded[id] == nil {
			continue
		}
		series := make([]float64, 0, len(points))
		for _, p := range points {
			if v, ok := p.Values[compare.Label(id)]; ok {
				series = append(series, v)
			}
		}
		a.printf("  %-10s %s\n", compare.Label(id), dashboard.Sparkline(series, 60))
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
