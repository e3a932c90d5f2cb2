package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"backdash/internal/config"
	"backdash/internal/session"
	"backdash/internal/store"
	"backdash/internal/util"
	"backdash/pkg/backdash"
)

const version = "0.1.0"

type command struct {
	summary string
	gated   bool // requires a paid plan
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"health":         {summary: "Check that the backend is reachable", run: cmdHealth},
	"strategies":     {summary: "List the strategy catalog", gated: true, run: cmdStrategies},
	"strategy":       {summary: "Show one strategy and its default parameters", gated: true, run: cmdStrategy},
	"runs":           {summary: "List recent runs", gated: true, run: cmdRuns},
	"run":            {summary: "Launch a backtest and follow it to completion", gated: true, run: cmdRun},
	"status":         {summary: "Show the status of a run", gated: true, run: cmdStatus},
	"results":        {summary: "Show the results of a completed run", gated: true, run: cmdResults},
	"delete":         {summary: "Delete a run", gated: true, run: cmdDelete},
	"compare":        {summary: "Compare up to five completed runs", gated: true, run: cmdCompare},
	"heatmap":        {summary: "Show P&L by weekday and hour for a run", gated: true, run: cmdHeatmap},
	"ohlc":           {summary: "Fetch recent OHLC bars", gated: true, run: cmdOHLC},
	"range":          {summary: "Show the available data range", gated: true, run: cmdRange},
	"ninja":          {summary: "List imported NinjaTrader strategies", gated: true, run: cmdNinja},
	"ninja-data":     {summary: "Show an imported NinjaTrader strategy", gated: true, run: cmdNinjaData},
	"ninja-download": {summary: "Download a NinjaTrader export as CSV", gated: true, run: cmdNinjaDownload},
	"chat":           {summary: "Ask the analyst a question", gated: true, run: cmdChat},
	"ai-runs":        {summary: "List runs the analyst can discuss", gated: true, run: cmdAIRuns},
	"exports":        {summary: "Read back runs and bars exported to parquet", run: cmdExports},
	"watch":          {summary: "Follow a run through the relay", gated: true, run: cmdWatch},
	"grant":          {summary: "Set the plan of a user", run: cmdGrant},
}

var commandOrder = []string{
	"health", "strategies", "strategy", "runs", "run", "status", "results",
	"delete", "compare", "heatmap", "ohlc", "range", "ninja", "ninja-data",
	"ninja-download", "chat", "ai-runs", "exports", "watch", "grant",
}

func main() {
	configPath := flag.String("config", "", "path to config file (default "+config.DefaultPath+")")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: backdash [-config path] <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  %-15s %s\n", "version", "Print the CLI version")
		for _, name := range commandOrder {
			fmt.Fprintf(os.Stderr, "  %-15s %s\n", name, commands[name].summary)
		}
		fmt.Fprintf(os.Stderr, "\n")
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(*configPath, flag.Arg(0), flag.Args()[1:]))
}

func run(configPath, name string, args []string) int {
	if name == "version" {
		fmt.Printf("backdash %s\n", version)
		return 0
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", name)
		flag.Usage()
		return 1
	}

	cfg, err := config.Load(config.Path(configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		return 1
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, logger)
	defer a.close()

	if cmd.gated {
		if err := a.authorize(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "error: %s\n", describe(err))
			return 1
		}
	}
	if err := cmd.run(ctx, a, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %s\n", describe(err))
		return 1
	}
	return 0
}

// app carries what every subcommand needs.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	client *backdash.Client
	out    io.Writer

	subs *store.SQLiteStore
	sess *session.Session
}

func newApp(cfg *config.Config, logger *slog.Logger) *app {
	opts := []backdash.Option{
		backdash.WithTimeout(cfg.API.Timeout),
		backdash.WithLogger(logger),
		backdash.WithUserAgent(cfg.API.UserAgent),
	}
	if cfg.API.RateLimitPerMin > 0 {
		opts = append(opts, backdash.WithRateLimit(cfg.API.RateLimitPerMin))
	}
	return &app{
		cfg:    cfg,
		log:    logger,
		client: backdash.NewClient(cfg.API.BaseURL, opts...),
		out:    os.Stdout,
	}
}

// subscriptions opens the local subscription database on first use.
func (a *app) subscriptions() (*store.SQLiteStore, error) {
	if a.subs != nil {
		return a.subs, nil
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.Storage.SQLitePath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	subs, err := store.NewSQLiteStore(a.cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", a.cfg.Storage.SQLitePath, err)
	}
	a.subs = subs
	return subs, nil
}

// authorize opens the session for the configured user and checks its plan.
func (a *app) authorize(ctx context.Context) error {
	if a.cfg.Session.User == "" {
		return fmt.Errorf("no user configured: set session.user or BACKDASH_USER")
	}
	subs, err := a.subscriptions()
	if err != nil {
		return err
	}
	sess, err := session.Open(ctx, subs, a.cfg.Session.User, a.log)
	a.sess = sess
	if err != nil {
		return err
	}
	return sess.Require()
}

func (a *app) close() {
	if a.sess != nil {
		a.sess.Close()
	}
	if a.subs != nil {
		if err := a.subs.Close(); err != nil {
			a.log.Warn("closing subscription store", "error", err)
		}
	}
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// describe turns errors into a message for the terminal.
func describe(err error) string {
	switch {
	case errors.Is(err, session.ErrNoAccess):
		return err.Error() + "; ask an administrator to run `backdash grant`"
	case errors.Is(err, context.Canceled):
		return "interrupted"
	case errors.Is(err, store.ErrNotFound):
		return "nothing exported under that name; export with `backdash results -export <run id>` or `backdash ohlc -export`"
	}
	return backdash.Describe(err)
}

// newFlagSet returns a flag set for a subcommand that reports errors instead
// of exiting.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: backdash %s %s\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

// oneArg parses fs and returns its single positional argument.
func oneArg(fs *flag.FlagSet, args []string, what string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return "", fmt.Errorf("expected one %s", what)
	}
	return fs.Arg(0), nil
}
