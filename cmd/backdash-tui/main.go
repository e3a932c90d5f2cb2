package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"backdash/internal/analyst"
	"backdash/internal/compare"
	"backdash/internal/config"
	"backdash/internal/lifecycle"
	"backdash/internal/relay"
	"backdash/internal/results"
	"backdash/internal/session"
	"backdash/internal/store"
	"backdash/internal/util"
	"backdash/pkg/backdash"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	serveRelay := flag.Bool("relay", false, "serve run progress to backdash watch (also relay.enabled)")
	flag.Parse()

	cfg, err := config.Load(config.Path(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logPath := fmt.Sprintf("/tmp/backdash-tui-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := util.NewLoggerTo(logFile, cfg.Logging.Level, "text")
	util.SetDefault(logger)

	if cfg.Session.User == "" {
		fmt.Fprintln(os.Stderr, "no user configured: set session.user or BACKDASH_USER")
		os.Exit(1)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "creating database directory: %v\n", err)
		os.Exit(1)
	}
	subs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening subscription store: %v\n", err)
		os.Exit(1)
	}
	defer subs.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := session.Open(ctx, subs, cfg.Session.User, logger)
	if err != nil {
		logger.Error("checking subscription", "error", err)
	}
	if sess == nil || !sess.HasAccess() {
		plan := "unknown"
		if sess != nil {
			plan = sess.TierLabel()
		}
		fmt.Fprintf(os.Stderr, "Backtesting is reserved for Premium and Pro plans (current plan: %s).\n", plan)
		os.Exit(1)
	}
	defer sess.Close()

	opts := []backdash.Option{
		backdash.WithTimeout(cfg.API.Timeout),
		backdash.WithLogger(logger),
		backdash.WithUserAgent(cfg.API.UserAgent),
	}
	if cfg.API.RateLimitPerMin > 0 {
		opts = append(opts, backdash.WithRateLimit(cfg.API.RateLimitPerMin))
	}
	client := backdash.NewClient(cfg.API.BaseURL, opts...)

	ctrl := lifecycle.New(client,
		lifecycle.WithInterval(cfg.Polling.Interval),
		lifecycle.WithLogger(logger),
	)
	defer ctrl.Dispose()

	relayAddr := ""
	if *serveRelay || cfg.Relay.Enabled {
		lis, err := relay.Listen(cfg.Relay.Addr, ctrl, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "starting relay: %v\n", err)
			os.Exit(1)
		}
		defer lis.Stop(2 * time.Second)
		relayAddr = lis.Addr()
	}

	d := &deps{
		ctx:       ctx,
		client:    client,
		ctrl:      ctrl,
		fetcher:   results.NewFetcher(client),
		loader:    compare.NewLoader(client, logger),
		asst:      analyst.NewAssistant(client, logger),
		exports:   store.NewParquetStore(cfg.Storage.ExportDir),
		sess:      sess,
		log:       logger,
		relayAddr: relayAddr,
		maxSelect: cfg.Compare.MaxSelected,
	}

	p := tea.NewProgram(
		initialModel(d),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
